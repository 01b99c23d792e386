package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dshills/rustbridge/internal/analyzer"
)

// fakeSession is a scripted Session: each method records its use, and
// Request answers from per-method response queues.
type fakeSession struct {
	root string

	responses map[string][]string // method -> queued raw results
	requests  []string            // methods in call order
	diags     map[string][]analyzer.Diagnostic
	updated   map[string]string // path -> last content written

	initialized int
	opened      []string
	acquired    int
	released    int

	failRequest error
	failOn      map[string]error
	unsupported map[string]bool
}

func newFakeSession(root string) *fakeSession {
	return &fakeSession{
		root:      root,
		responses: make(map[string][]string),
		diags:     make(map[string][]analyzer.Diagnostic),
		updated:   make(map[string]string),
	}
}

// respond queues one raw JSON result for a method.
func (f *fakeSession) respond(method, raw string) {
	f.responses[method] = append(f.responses[method], raw)
}

func (f *fakeSession) EnsureInitialized(ctx context.Context) error {
	f.initialized++
	return nil
}

func (f *fakeSession) EnsureOpen(ctx context.Context, path string) error {
	f.opened = append(f.opened, path)
	return nil
}

func (f *fakeSession) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	f.requests = append(f.requests, method)
	if err, ok := f.failOn[method]; ok {
		return nil, err
	}
	if f.failRequest != nil {
		return nil, f.failRequest
	}
	queue := f.responses[method]
	if len(queue) == 0 {
		return nil, fmt.Errorf("unexpected request %s", method)
	}
	raw := queue[0]
	f.responses[method] = queue[1:]
	return json.RawMessage(raw), nil
}

func (f *fakeSession) Notify(method string, params any) error { return nil }

func (f *fakeSession) Diagnostics(path string) []analyzer.Diagnostic {
	return f.diags[path]
}

func (f *fakeSession) AllDiagnostics() map[string][]analyzer.Diagnostic {
	out := make(map[string][]analyzer.Diagnostic, len(f.diags))
	for path, d := range f.diags {
		out[path] = d
	}
	return out
}

func (f *fakeSession) UpdateFile(ctx context.Context, path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	f.updated[path] = content
	return nil
}

func (f *fakeSession) Supports(capability string) bool {
	return !f.unsupported[capability]
}

func (f *fakeSession) Root() string { return f.root }

func (f *fakeSession) Acquire(ctx context.Context) error {
	f.acquired++
	return nil
}

func (f *fakeSession) Release() { f.released++ }
