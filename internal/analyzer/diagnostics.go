package analyzer

import "sync"

// diagnosticsCache stores the latest published diagnostics per document.
// Each publishDiagnostics notification replaces the entry wholesale; entries
// are never merged across versions.
type diagnosticsCache struct {
	mu    sync.RWMutex
	byURI map[DocumentURI][]Diagnostic
}

func newDiagnosticsCache() *diagnosticsCache {
	return &diagnosticsCache{byURI: make(map[DocumentURI][]Diagnostic)}
}

// replace installs the latest diagnostics for a document.
func (c *diagnosticsCache) replace(uri DocumentURI, diags []Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(diags) == 0 {
		delete(c.byURI, uri)
		return
	}
	c.byURI[uri] = diags
}

// get returns the cached diagnostics for a document; nil if none arrived yet.
func (c *diagnosticsCache) get(uri DocumentURI) []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	diags := c.byURI[uri]
	out := make([]Diagnostic, len(diags))
	copy(out, diags)
	return out
}

// all returns a snapshot of every document's diagnostics keyed by file path.
func (c *diagnosticsCache) all() map[string][]Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]Diagnostic, len(c.byURI))
	for uri, diags := range c.byURI {
		cp := make([]Diagnostic, len(diags))
		copy(cp, diags)
		out[URIToFilePath(uri)] = cp
	}
	return out
}

// clear drops all cached diagnostics, used on restart.
func (c *diagnosticsCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byURI = make(map[DocumentURI][]Diagnostic)
}
