package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/rustbridge/internal/analyzer"
	"github.com/dshills/rustbridge/internal/command"
)

type fakeLifecycle struct {
	started   int
	restarted int
	closed    int
	startErr  error
}

func (f *fakeLifecycle) Start(ctx context.Context) error   { f.started++; return f.startErr }
func (f *fakeLifecycle) Restart(ctx context.Context) error { f.restarted++; return nil }
func (f *fakeLifecycle) Close(ctx context.Context) error   { f.closed++; return nil }
func (f *fakeLifecycle) Status() analyzer.Status           { return analyzer.StatusReady }

type fakeExecutor struct {
	results map[string]*command.Result
	errs    map[string]error
	calls   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*command.Result, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", command.ErrUnknownCommand, name)
}

func runServer(t *testing.T, input string, exec *fakeExecutor) (*fakeLifecycle, []gjson.Result) {
	t.Helper()
	lc := &fakeLifecycle{}
	srv := newServer(lc, exec, nil)

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(input), &out))

	var responses []gjson.Result
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		require.True(t, gjson.Valid(line), "response line must be JSON: %s", line)
		responses = append(responses, gjson.Parse(line))
	}
	return lc, responses
}

func TestServerHappyPath(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*command.Result{
		"find_definition": {Command: "find_definition", Summary: "definition at lib.rs:10"},
	}}

	lc, responses := runServer(t,
		`{"id":1,"command":"find_definition","args":{"file_path":"lib.rs","line":3,"character":4}}`+"\n",
		exec)

	require.Len(t, responses, 1)
	assert.True(t, responses[0].Get("ok").Bool())
	assert.EqualValues(t, 1, responses[0].Get("id").Int())
	assert.Equal(t, "definition at lib.rs:10", responses[0].Get("result.summary").String())

	assert.Equal(t, 1, lc.started)
	assert.Equal(t, 1, lc.closed)
}

func TestServerCommandFailureIsResponseNotExit(t *testing.T) {
	exec := &fakeExecutor{
		results: map[string]*command.Result{"status_ok": {Summary: "fine"}},
		errs: map[string]error{
			"boom": &analyzer.RPCError{Code: analyzer.CodeRequestFailed, Message: "rename conflict"},
		},
	}

	_, responses := runServer(t,
		`{"id":1,"command":"boom"}`+"\n"+`{"id":2,"command":"status_ok"}`+"\n",
		exec)

	require.Len(t, responses, 2)
	assert.False(t, responses[0].Get("ok").Bool())
	assert.Equal(t, "analyzer_error", responses[0].Get("error.kind").String())
	assert.EqualValues(t, analyzer.CodeRequestFailed, responses[0].Get("error.code").Int())
	// The loop keeps serving after a failure.
	assert.True(t, responses[1].Get("ok").Bool())
}

func TestServerBadJSONLine(t *testing.T) {
	_, responses := runServer(t, "{not json}\n", &fakeExecutor{})
	require.Len(t, responses, 1)
	assert.Equal(t, "bad_request", responses[0].Get("error.kind").String())
}

func TestServerMissingCommand(t *testing.T) {
	_, responses := runServer(t, `{"id":7,"args":{}}`+"\n", &fakeExecutor{})
	require.Len(t, responses, 1)
	assert.Equal(t, "bad_request", responses[0].Get("error.kind").String())
	assert.EqualValues(t, 7, responses[0].Get("id").Int())
}

func TestServerBuiltinCommands(t *testing.T) {
	lc, responses := runServer(t,
		`{"id":1,"command":"status"}`+"\n"+`{"id":2,"command":"restart_analyzer"}`+"\n",
		&fakeExecutor{})

	require.Len(t, responses, 2)
	assert.Equal(t, "ready", responses[0].Get("result.summary").String())
	assert.Equal(t, "analyzer restarted", responses[1].Get("result.summary").String())
	assert.Equal(t, 1, lc.restarted)
}

func TestServerStartFailure(t *testing.T) {
	lc := &fakeLifecycle{startErr: &analyzer.SpawnError{Command: "rust-analyzer", Err: errors.New("not found")}}
	srv := newServer(lc, &fakeExecutor{}, nil)

	err := srv.Run(context.Background(), strings.NewReader(""), &bytes.Buffer{})
	var spawnErr *analyzer.SpawnError
	assert.ErrorAs(t, err, &spawnErr)
	assert.Zero(t, lc.closed)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("%w: nope", command.ErrUnknownCommand), "unknown_command"},
		{&command.InvalidArgumentsError{Command: "x", Reason: "missing"}, "invalid_arguments"},
		{&analyzer.RPCError{Code: -32803, Message: "failed"}, "analyzer_error"},
		{fmt.Errorf("references: %w", analyzer.ErrRequestTimeout), "timeout"},
		{analyzer.ErrSessionTerminated, "session_terminated"},
		{&analyzer.SpawnError{Command: "ra", Err: errors.New("enoent")}, "spawn_failed"},
		{fmt.Errorf("%w: bad frame", analyzer.ErrMalformedMessage), "protocol_error"},
		{fmt.Errorf("%w: inline here", command.ErrNoActionAvailable), "no_action"},
		{fmt.Errorf("%w: typeHierarchy", command.ErrUnsupported), "unsupported"},
		{errors.New("anything else"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			assert.Equal(t, tc.kind, classify(tc.err).Kind)
		})
	}
}
