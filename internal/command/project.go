package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/rustbridge/internal/cargo"
)

func registerProject(r *Registry) {
	r.mustRegister(&Descriptor{
		Name: "analyze_manifest",
		Schema: Schema{
			{Name: "manifest_path", Type: TString, Required: true},
		},
		Class: ClassProject,
		Local: true,
		Run:   runAnalyzeManifest,
	})
	r.mustRegister(&Descriptor{
		Name: "run_cargo_check",
		Schema: Schema{
			{Name: "workspace_path", Type: TString, Required: false},
		},
		Class: ClassProject,
		Local: true,
		Run:   runCargoCheck,
	})
	r.mustRegister(&Descriptor{
		Name: "suggest_dependencies",
		Schema: Schema{
			{Name: "query", Type: TString, Required: true},
			{Name: "workspace_path", Type: TString, Required: false},
		},
		Class: ClassProject,
		Local: true,
		Run:   runSuggestDependencies,
	})
}

func runAnalyzeManifest(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("manifest_path"))
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "Cargo.toml")
	}

	m, err := cargo.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	report := cargo.Summarize(m)

	summary := fmt.Sprintf("%s %s: %d dependencies", report.Name, report.Version, len(report.Dependencies))
	if report.Name == "" {
		summary = fmt.Sprintf("workspace manifest with %d members", len(report.Workspace))
	}
	return &Result{Summary: summary, Data: report}, nil
}

func runCargoCheck(ctx context.Context, e *Execution) (*Result, error) {
	dir := e.Session.Root()
	if ws := e.Args.Str("workspace_path"); ws != "" {
		dir = e.Path(ws)
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	result, err := cargo.Check(checkCtx, dir, e.Logger)
	if err != nil {
		return nil, err
	}

	summary := "cargo check passed"
	if !result.Success {
		summary = fmt.Sprintf("cargo check failed: %d errors, %d warnings", result.Errors, result.Warnings)
	} else if result.Warnings > 0 {
		summary = fmt.Sprintf("cargo check passed with %d warnings", result.Warnings)
	}
	return &Result{Summary: summary, Data: result}, nil
}

func runSuggestDependencies(ctx context.Context, e *Execution) (*Result, error) {
	dir := e.Session.Root()
	if ws := e.Args.Str("workspace_path"); ws != "" {
		dir = e.Path(ws)
	}

	// The manifest is optional context: with it, suggestions note what is
	// already installed.
	var manifest *cargo.Manifest
	if m, err := cargo.LoadManifest(filepath.Join(dir, "Cargo.toml")); err == nil {
		manifest = m
	}

	suggestions := cargo.Suggest(e.Args.Str("query"), manifest)
	summary := fmt.Sprintf("%d crates match %q", len(suggestions), e.Args.Str("query"))
	if len(suggestions) == 0 {
		summary = fmt.Sprintf("no catalog matches for %q", e.Args.Str("query"))
	}
	return &Result{Summary: summary, Data: suggestions}, nil
}
