package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the session's lifecycle state.
type Status int

const (
	// StatusNotStarted means the process has not been spawned.
	StatusNotStarted Status = iota
	// StatusSpawned means the process is running but the handshake has
	// not happened yet.
	StatusSpawned
	// StatusInitializing means the handshake is in progress.
	StatusInitializing
	// StatusReady means the handshake completed and requests are allowed.
	StatusReady
	// StatusFailed means the process died or the stream closed; the
	// session must be restarted before accepting commands again.
	StatusFailed
	// StatusStopped means the session was shut down deliberately.
	StatusStopped
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusSpawned:
		return "spawned"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config describes one analyzer session.
type Config struct {
	// Process describes how to spawn the analyzer.
	Process ProcessConfig

	// Workspace is the project root; it doubles as the process's working
	// directory when Process.Dir is empty.
	Workspace string

	// HandshakeTimeout bounds the initialize exchange.
	HandshakeTimeout time.Duration

	// ShutdownGrace bounds how long Stop waits after the protocol
	// shutdown sequence before killing the process.
	ShutdownGrace time.Duration

	// MaxDecodeErrors is the number of consecutive malformed messages
	// tolerated before the session is considered broken.
	MaxDecodeErrors int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 60 * time.Second
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if cfg.MaxDecodeErrors == 0 {
		cfg.MaxDecodeErrors = 5
	}
	if cfg.Process.Dir == "" {
		cfg.Process.Dir = cfg.Workspace
	}
	return cfg
}

// Session owns one analyzer process and everything attached to it: the
// transport, the open-document table, and the diagnostics cache. Command
// execution against a Session is serialized through Acquire/Release; the
// read loop runs independently.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex // guards process/transport/status transitions and the handshake
	process *Process
	tr      *Transport
	status  atomic.Int32

	caps       ServerCapabilities
	serverInfo *ServerInfo

	docs  *DocumentStore
	diags *diagnosticsCache

	// execCh is the exclusive ownership token for command execution:
	// one command's whole multi-step exchange holds it at a time.
	execCh chan struct{}

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewSession creates a session; the analyzer is not spawned until Start.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		cfg:    cfg.withDefaults(),
		logger: logger,
		docs:   NewDocumentStore(logger),
		diags:  newDiagnosticsCache(),
		execCh: make(chan struct{}, 1),
	}
	s.status.Store(int32(StatusNotStarted))
	return s
}

// Status returns the current session status.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Root returns the workspace root path.
func (s *Session) Root() string {
	return s.cfg.Workspace
}

// ServerInfo returns the analyzer's name and version from the handshake, or
// nil before initialization.
func (s *Session) ServerInfo() *ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Start spawns the analyzer process and begins reading its output. The
// initialize handshake is performed lazily by EnsureInitialized so that
// startup cost is only paid when the first command arrives.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st != StatusNotStarted && st != StatusFailed && st != StatusStopped {
		return ErrAlreadyStarted
	}
	return s.spawnLocked(ctx)
}

// spawnLocked starts the process, transport, and monitor goroutines.
// Must hold mu.
func (s *Session) spawnLocked(ctx context.Context) error {
	proc, err := StartProcess(ctx, s.cfg.Process, s.logger)
	if err != nil {
		s.status.Store(int32(StatusFailed))
		return err
	}

	tr := NewTransport(proc.Stdout(), proc.Stdin(),
		WithTransportLogger(s.logger),
		WithMaxDecodeErrors(s.cfg.MaxDecodeErrors),
	)
	tr.OnNotification("textDocument/publishDiagnostics", s.onPublishDiagnostics)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, runCtx := errgroup.WithContext(runCtx)

	s.process = proc
	s.tr = tr
	s.cancel = cancel
	s.group = group
	s.status.Store(int32(StatusSpawned))

	readErr := tr.Start(runCtx)

	group.Go(func() error {
		select {
		case <-runCtx.Done():
			return nil
		case err := <-readErr:
			if err != nil && s.Status() != StatusStopped {
				s.logger.Error("read loop failed", zap.Error(err))
				s.terminate()
			}
			return nil
		}
	})
	group.Go(func() error {
		select {
		case <-runCtx.Done():
			return nil
		case <-proc.Exited():
			if s.Status() != StatusStopped {
				s.logger.Warn("analyzer exited unexpectedly")
				s.terminate()
			}
			return nil
		}
	})

	return nil
}

// terminate moves the session to Failed and rejects every pending request
// with ErrSessionTerminated.
func (s *Session) terminate() {
	s.status.Store(int32(StatusFailed))
	if s.tr != nil {
		_ = s.tr.Close()
	}
}

// onPublishDiagnostics replaces the cached diagnostics for a document.
func (s *Session) onPublishDiagnostics(_ string, params json.RawMessage) {
	var p PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad publishDiagnostics payload", zap.Error(err))
		return
	}
	s.diags.replace(p.URI, p.Diagnostics)
}

// EnsureInitialized performs the one-time initialize handshake. Concurrent
// callers block behind a single handshake; it never runs twice for one
// process.
func (s *Session) EnsureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusReady:
		return nil
	case StatusFailed:
		return ErrSessionTerminated
	case StatusStopped:
		return ErrNotStarted
	case StatusInitializing:
		// mu serializes callers, so observing Initializing here means the
		// previous handshake died mid-flight.
		return ErrSessionTerminated
	}
	if s.tr == nil {
		return ErrNotStarted
	}

	s.status.Store(int32(StatusInitializing))

	params := InitializeParams{
		ProcessID:    os.Getpid(),
		RootURI:      FilePathToURI(s.cfg.Workspace),
		Capabilities: DefaultClientCapabilities(),
		WorkspaceFolders: []WorkspaceFolder{{
			URI:  FilePathToURI(s.cfg.Workspace),
			Name: filepath.Base(s.cfg.Workspace),
		}},
	}

	var raw json.RawMessage
	if err := s.tr.Call(ctx, "initialize", params, s.cfg.HandshakeTimeout, &raw); err != nil {
		s.status.Store(int32(StatusFailed))
		return fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.status.Store(int32(StatusFailed))
		return fmt.Errorf("initialize result: %w: %v", ErrMalformedMessage, err)
	}

	if err := s.tr.Notify("initialized", InitializedParams{}); err != nil {
		s.status.Store(int32(StatusFailed))
		return fmt.Errorf("initialized notification: %w", err)
	}

	s.caps = result.Capabilities
	s.serverInfo = result.ServerInfo
	s.status.Store(int32(StatusReady))

	name, version := "unknown", ""
	if result.ServerInfo != nil {
		name, version = result.ServerInfo.Name, result.ServerInfo.Version
	}
	s.logger.Info("analyzer initialized", zap.String("name", name), zap.String("version", version))
	return nil
}

// Supports reports whether the analyzer advertised the named capability in
// the handshake. Meaningful only once the session is initialized.
func (s *Session) Supports(name string) bool {
	s.mu.Lock()
	caps := s.caps
	s.mu.Unlock()

	switch name {
	case "definition":
		return HasCapability(caps.DefinitionProvider)
	case "references":
		return HasCapability(caps.ReferencesProvider)
	case "workspaceSymbol":
		return HasCapability(caps.WorkspaceSymbolProvider)
	case "codeAction":
		return HasCapability(caps.CodeActionProvider)
	case "formatting":
		return HasCapability(caps.DocumentFormattingProvider)
	case "rename":
		return HasCapability(caps.RenameProvider)
	case "typeHierarchy":
		return HasCapability(caps.TypeHierarchyProvider)
	default:
		return false
	}
}

// EnsureOpen makes sure the analyzer has the current content of path before
// any command referencing it is sent: it opens the document on first touch
// and re-syncs it when the on-disk content changed since last observed.
func (s *Session) EnsureOpen(ctx context.Context, path string) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.cfg.Workspace, path)
	}

	state, content, err := s.docs.Check(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch state {
	case SyncCurrent:
		return nil
	case SyncOpen:
		params := DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        FilePathToURI(abs),
				LanguageID: "rust",
				Version:    1,
				Text:       content,
			},
		}
		if err := s.tr.Notify("textDocument/didOpen", params); err != nil {
			return err
		}
		s.docs.MarkOpen(abs, content)
		return nil
	default: // SyncChanged
		doc, _ := s.docs.Get(abs)
		params := DidChangeTextDocumentParams{
			TextDocument: VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: TextDocumentIdentifier{URI: FilePathToURI(abs)},
				Version:                doc.Version + 1,
			},
			ContentChanges: []TextDocumentContentChangeEvent{{Text: content}},
		}
		if err := s.tr.Notify("textDocument/didChange", params); err != nil {
			return err
		}
		s.docs.MarkChanged(abs, content)
		return nil
	}
}

// Request sends one protocol request and waits for its response.
func (s *Session) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if s.Status() != StatusReady {
		if s.Status() == StatusFailed {
			return nil, ErrSessionTerminated
		}
		return nil, ErrNotStarted
	}
	var raw json.RawMessage
	if err := s.tr.Call(ctx, method, params, timeout, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Notify sends one protocol notification.
func (s *Session) Notify(method string, params any) error {
	if s.Status() == StatusFailed {
		return ErrSessionTerminated
	}
	if s.tr == nil {
		return ErrNotStarted
	}
	return s.tr.Notify(method, params)
}

// Diagnostics returns the latest cached diagnostics for a file; empty if
// none have arrived yet.
func (s *Session) Diagnostics(path string) []Diagnostic {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.cfg.Workspace, path)
	}
	return s.diags.get(FilePathToURI(abs))
}

// AllDiagnostics returns every document's cached diagnostics by file path.
func (s *Session) AllDiagnostics() map[string][]Diagnostic {
	return s.diags.all()
}

// UpdateFile writes new content to disk and pushes it to the analyzer via
// didChange (didOpen first when the file was not yet open). Used by commands
// that generate or rewrite code.
func (s *Session) UpdateFile(ctx context.Context, path, content string) error {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.cfg.Workspace, path)
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if !s.docs.IsOpen(abs) {
		return s.EnsureOpen(ctx, abs)
	}

	doc, _ := s.docs.Get(abs)
	params := DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: FilePathToURI(abs)},
			Version:                doc.Version + 1,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: content}},
	}
	if err := s.tr.Notify("textDocument/didChange", params); err != nil {
		return err
	}
	s.docs.MarkChanged(abs, content)
	return nil
}

// Acquire takes exclusive ownership of the session for one command's whole
// request/await cycle. Waiters queue until the current owner releases or
// their context is cancelled.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.execCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release gives up exclusive ownership taken by Acquire.
func (s *Session) Release() {
	select {
	case <-s.execCh:
	default:
		// Release without Acquire is a programming error; ignore.
	}
}

// Restart stops whatever is left of the old process, spawns a fresh one,
// redoes the handshake, and re-opens every previously open document.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()

	openPaths := s.docs.Paths()
	for _, p := range openPaths {
		s.docs.Remove(p)
	}
	s.diags.clear()

	s.teardownLocked()

	if err := s.spawnLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	for _, p := range openPaths {
		if err := s.EnsureOpen(ctx, p); err != nil {
			s.logger.Warn("could not re-open document after restart", zap.String("path", p), zap.Error(err))
		}
	}
	s.logger.Info("session restarted", zap.Int("reopened", len(openPaths)))
	return nil
}

// teardownLocked releases the current process and transport. Must hold mu.
func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.tr != nil {
		_ = s.tr.Close()
	}
	if s.process != nil {
		_ = s.process.Stop(s.cfg.ShutdownGrace)
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	s.process = nil
	s.tr = nil
	s.cancel = nil
	s.group = nil
}

// Close shuts the session down: protocol shutdown/exit sequence, then a
// bounded wait, then force kill. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusStopped {
		return nil
	}
	s.status.Store(int32(StatusStopped))

	if s.tr != nil && !s.tr.IsClosed() {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
		var raw json.RawMessage
		_ = s.tr.Call(shutdownCtx, "shutdown", nil, s.cfg.ShutdownGrace, &raw)
		_ = s.tr.Notify("exit", nil)
		cancel()
	}

	s.teardownLocked()
	return s.docs.Close()
}
