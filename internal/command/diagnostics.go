package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/rustbridge/internal/analyzer"
)

func registerDiagnostics(r *Registry) {
	r.mustRegister(&Descriptor{
		Name: "get_diagnostics",
		Schema: Schema{
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassNavigation,
		Run:   runGetDiagnostics,
	})
	r.mustRegister(&Descriptor{
		Name: "validate_lifetimes",
		Schema: Schema{
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassNavigation,
		Run:   runValidateLifetimes,
	})
}

// runGetDiagnostics reports the latest diagnostics published for a file.
// A file with no findings yields an empty list, not an error.
func runGetDiagnostics(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	diags := e.Session.Diagnostics(path)
	infos := make([]DiagnosticInfo, 0, len(diags))
	errors := 0
	for _, d := range diags {
		if d.Severity == analyzer.SeverityError {
			errors++
		}
		infos = append(infos, diagnosticInfo(d))
	}
	return &Result{
		Summary: fmt.Sprintf("%d diagnostics (%d errors)", len(infos), errors),
		Data:    infos,
	}, nil
}

// lifetimeErrorCodes are the rustc codes that indicate borrow and lifetime
// violations.
var lifetimeErrorCodes = map[string]bool{
	"E0106": true, // missing lifetime specifier
	"E0261": true, // undeclared lifetime
	"E0495": true, // cannot infer lifetime
	"E0499": true, // second mutable borrow
	"E0502": true, // borrow conflicts with mutable borrow
	"E0505": true, // move out of borrowed value
	"E0506": true, // assignment to borrowed value
	"E0597": true, // value does not live long enough
	"E0621": true, // explicit lifetime required
	"E0716": true, // temporary dropped while borrowed
}

// runValidateLifetimes filters the file's diagnostics down to borrow-checker
// and lifetime findings.
func runValidateLifetimes(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	var findings []DiagnosticInfo
	for _, d := range e.Session.Diagnostics(path) {
		code := d.CodeString()
		if lifetimeErrorCodes[code] || mentionsLifetime(d.Message) {
			findings = append(findings, diagnosticInfo(d))
		}
	}

	summary := "no lifetime issues found"
	if len(findings) > 0 {
		summary = fmt.Sprintf("%d lifetime issues", len(findings))
	}
	if findings == nil {
		findings = []DiagnosticInfo{}
	}
	return &Result{Summary: summary, Data: findings}, nil
}

func mentionsLifetime(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "lifetime") ||
		strings.Contains(m, "does not live long enough") ||
		strings.Contains(m, "borrowed value") ||
		strings.Contains(m, "cannot borrow")
}
