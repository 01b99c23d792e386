// Package cargo reads Cargo manifests, runs cargo itself for whole-project
// checks, and suggests crates for a described need.
package cargo

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// Manifest is the subset of Cargo.toml the bridge reports on.
type Manifest struct {
	Package           Package               `toml:"package"`
	Dependencies      map[string]Dependency `toml:"dependencies"`
	DevDependencies   map[string]Dependency `toml:"dev-dependencies"`
	BuildDependencies map[string]Dependency `toml:"build-dependencies"`
	Features          map[string][]string   `toml:"features"`
	Workspace         *Workspace            `toml:"workspace"`
}

// Package is the [package] section.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

// Workspace is the [workspace] section of a virtual manifest.
type Workspace struct {
	Members []string `toml:"members"`
}

// Dependency is one dependency entry, either the shorthand version string or
// the detailed table form.
type Dependency struct {
	Version  string
	Path     string
	Git      string
	Features []string
	Optional bool
}

// UnmarshalTOML accepts both `dep = "1.0"` and the table form.
func (d *Dependency) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		d.Version = val
		return nil
	case map[string]any:
		if s, ok := val["version"].(string); ok {
			d.Version = s
		}
		if s, ok := val["path"].(string); ok {
			d.Path = s
		}
		if s, ok := val["git"].(string); ok {
			d.Git = s
		}
		if b, ok := val["optional"].(bool); ok {
			d.Optional = b
		}
		if feats, ok := val["features"].([]any); ok {
			for _, f := range feats {
				if s, ok := f.(string); ok {
					d.Features = append(d.Features, s)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported dependency shape %T", v)
	}
}

// LoadManifest parses a Cargo.toml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// DependencyInfo is one dependency in report form.
type DependencyInfo struct {
	Name     string   `json:"name"`
	Version  string   `json:"version,omitempty"`
	Source   string   `json:"source,omitempty"` // path or git when not crates.io
	Features []string `json:"features,omitempty"`
	Optional bool     `json:"optional,omitempty"`
	Kind     string   `json:"kind"` // normal, dev, build
}

// Report is the manifest summary handed back to callers.
type Report struct {
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	Edition      string           `json:"edition"`
	Dependencies []DependencyInfo `json:"dependencies"`
	Features     []string         `json:"features,omitempty"`
	Workspace    []string         `json:"workspace_members,omitempty"`
}

// Summarize flattens a manifest into a Report with dependencies sorted by
// kind then name.
func Summarize(m *Manifest) *Report {
	r := &Report{
		Name:    m.Package.Name,
		Version: m.Package.Version,
		Edition: m.Package.Edition,
	}

	appendDeps := func(deps map[string]Dependency, kind string) {
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d := deps[name]
			info := DependencyInfo{
				Name:     name,
				Version:  d.Version,
				Features: d.Features,
				Optional: d.Optional,
				Kind:     kind,
			}
			switch {
			case d.Path != "":
				info.Source = "path:" + d.Path
			case d.Git != "":
				info.Source = "git:" + d.Git
			}
			r.Dependencies = append(r.Dependencies, info)
		}
	}
	appendDeps(m.Dependencies, "normal")
	appendDeps(m.DevDependencies, "dev")
	appendDeps(m.BuildDependencies, "build")

	for feature := range m.Features {
		r.Features = append(r.Features, feature)
	}
	sort.Strings(r.Features)

	if m.Workspace != nil {
		r.Workspace = m.Workspace.Members
	}
	return r
}
