package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not started", StatusNotStarted.String())
	assert.Equal(t, "spawned", StatusSpawned.String())
	assert.Equal(t, "initializing", StatusInitializing.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "stopped", StatusStopped.String())
	assert.Equal(t, "unknown", Status(99).String())
}

func TestSessionSpawnFailure(t *testing.T) {
	s := NewSession(Config{
		Process:   ProcessConfig{Command: "definitely-not-a-real-analyzer-binary"},
		Workspace: t.TempDir(),
	}, nil)

	err := s.Start(context.Background())
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "definitely-not-a-real-analyzer-binary", spawnErr.Command)
	assert.Equal(t, StatusFailed, s.Status())
}

func TestSessionStartTwice(t *testing.T) {
	// cat blocks on stdin, standing in for a long-lived analyzer.
	s := NewSession(Config{
		Process:       ProcessConfig{Command: "cat"},
		Workspace:     t.TempDir(),
		ShutdownGrace: 200 * time.Millisecond,
	}, nil)
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StatusSpawned, s.Status())

	pid := s.process.Pid()
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, pid, s.process.Pid())
}

func TestSessionRequestBeforeStart(t *testing.T) {
	s := NewSession(Config{Workspace: t.TempDir()}, nil)

	_, err := s.Request(context.Background(), "shutdown", nil, time.Second)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, s.Notify("exit", nil), ErrNotStarted)
}

func TestSessionAcquireSerializes(t *testing.T) {
	s := NewSession(Config{Workspace: t.TempDir()}, nil)

	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Acquire(ctx), context.DeadlineExceeded)

	s.Release()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()

	// Spurious release must not poison later acquisitions.
	s.Release()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
}

func TestSessionDiagnosticsCache(t *testing.T) {
	s := NewSession(Config{Workspace: t.TempDir()}, nil)

	assert.Empty(t, s.Diagnostics("/src/main.rs"))

	s.onPublishDiagnostics("textDocument/publishDiagnostics",
		[]byte(`{"uri":"file:///src/main.rs","diagnostics":[{"range":{"start":{"line":2,"character":4},"end":{"line":2,"character":9}},"severity":1,"message":"mismatched types"}]}`))

	diags := s.Diagnostics("/src/main.rs")
	require.Len(t, diags, 1)
	assert.Equal(t, "mismatched types", diags[0].Message)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Equal(t, 2, diags[0].Range.Start.Line)

	// A later empty publish clears the entry rather than merging.
	s.onPublishDiagnostics("textDocument/publishDiagnostics",
		[]byte(`{"uri":"file:///src/main.rs","diagnostics":[]}`))
	assert.Empty(t, s.Diagnostics("/src/main.rs"))
	assert.Empty(t, s.AllDiagnostics())
}

func TestSessionDiagnosticsBadPayload(t *testing.T) {
	s := NewSession(Config{Workspace: t.TempDir()}, nil)
	s.onPublishDiagnostics("textDocument/publishDiagnostics", []byte(`{]`))
	assert.Empty(t, s.AllDiagnostics())
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := NewSession(Config{Workspace: t.TempDir()}, nil)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, StatusStopped, s.Status())
	require.NoError(t, s.Close(context.Background()))
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{Workspace: "/ws"}).withDefaults()
	assert.Equal(t, "/ws", cfg.Process.Dir)
	assert.Equal(t, 60*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, 5, cfg.MaxDecodeErrors)

	custom := (&Config{Process: ProcessConfig{Dir: "/elsewhere"}, HandshakeTimeout: time.Second}).withDefaults()
	assert.Equal(t, "/elsewhere", custom.Process.Dir)
	assert.Equal(t, time.Second, custom.HandshakeTimeout)
}
