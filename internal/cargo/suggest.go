package cargo

import (
	"sort"
	"strings"
)

// Suggestion is one crate recommendation for a described need.
type Suggestion struct {
	Crate       string `json:"crate"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Installed   bool   `json:"installed"`
}

// crateEntry maps need keywords to a well-known crate.
type crateEntry struct {
	crate       string
	version     string
	description string
	keywords    []string
}

// crateCatalog is a static table of the crates most commonly reached for.
var crateCatalog = []crateEntry{
	{"serde", "1", "serialization and deserialization framework", []string{"serialize", "deserialize", "serde"}},
	{"serde_json", "1", "JSON support for serde", []string{"json"}},
	{"tokio", "1", "asynchronous runtime", []string{"async", "runtime", "tokio"}},
	{"reqwest", "0.12", "high-level HTTP client", []string{"http", "client", "request", "fetch"}},
	{"axum", "0.8", "web application framework", []string{"web", "server", "rest", "api"}},
	{"clap", "4", "command-line argument parser", []string{"cli", "argument", "command line", "flags"}},
	{"anyhow", "1", "flexible error handling for applications", []string{"error"}},
	{"thiserror", "2", "derive macro for error types", []string{"error", "derive"}},
	{"tracing", "0.1", "structured logging and diagnostics", []string{"log", "logging", "tracing"}},
	{"regex", "1", "regular expressions", []string{"regex", "pattern", "match"}},
	{"chrono", "0.4", "date and time handling", []string{"date", "time", "timestamp"}},
	{"rand", "0.9", "random number generation", []string{"random", "rng"}},
	{"rayon", "1", "data parallelism", []string{"parallel", "threads"}},
	{"sqlx", "0.8", "async SQL toolkit", []string{"sql", "database", "postgres", "sqlite", "mysql"}},
	{"uuid", "1", "UUID generation and parsing", []string{"uuid", "identifier"}},
	{"itertools", "0.14", "extra iterator adaptors", []string{"iterator", "itertools"}},
	{"crossbeam", "0.8", "concurrency primitives and channels", []string{"channel", "concurrency", "lock-free"}},
	{"toml", "0.8", "TOML parsing", []string{"toml", "config"}},
	{"hyper", "1", "low-level HTTP implementation", []string{"http", "protocol"}},
	{"walkdir", "2", "recursive directory traversal", []string{"directory", "filesystem", "walk"}},
}

// Suggest matches a free-form need description against the catalog and marks
// crates the manifest already carries. The manifest may be nil.
func Suggest(query string, m *Manifest) []Suggestion {
	q := strings.ToLower(query)

	type scored struct {
		Suggestion
		score int
	}
	var hits []scored
	for _, entry := range crateCatalog {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if strings.Contains(q, entry.crate) {
			score += 2
		}
		if score == 0 {
			continue
		}
		hits = append(hits, scored{
			Suggestion: Suggestion{
				Crate:       entry.crate,
				Version:     entry.version,
				Description: entry.description,
				Installed:   m != nil && hasDependency(m, entry.crate),
			},
			score: score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]Suggestion, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Suggestion)
	}
	return out
}

func hasDependency(m *Manifest, name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	if _, ok := m.DevDependencies[name]; ok {
		return true
	}
	_, ok := m.BuildDependencies[name]
	return ok
}
