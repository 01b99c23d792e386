package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/rustbridge/internal/analyzer"
	"github.com/dshills/rustbridge/internal/command"
)

// request is one line read from stdin.
type request struct {
	ID      int64           `json:"id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args"`
}

// response is one line written to stdout.
type response struct {
	ID     int64           `json:"id"`
	OK     bool            `json:"ok"`
	Result *command.Result `json:"result,omitempty"`
	Error  *errorInfo      `json:"error,omitempty"`
}

// errorInfo renders a command failure without leaking Go error chains.
type errorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// lifecycle is the session surface the server drives directly; command
// execution goes through the dispatcher.
type lifecycle interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	Close(ctx context.Context) error
	Status() analyzer.Status
}

// executor runs one named command.
type executor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (*command.Result, error)
}

// server pumps newline-delimited JSON commands from a reader and writes one
// response line per request. Command failures are responses, never exits:
// only a broken input stream ends the loop.
type server struct {
	session    lifecycle
	dispatcher executor
	logger     *zap.Logger

	writeMu sync.Mutex
}

func newServer(session lifecycle, dispatcher executor, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{session: session, dispatcher: dispatcher, logger: logger}
}

// Run serves until the input closes or ctx is cancelled, then shuts the
// session down.
func (s *server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := s.session.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.session.Close(closeCtx); err != nil {
			s.logger.Warn("session close failed", zap.Error(err))
		}
	}()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down on signal")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			s.handleLine(ctx, out, line)
		}
	}
}

func (s *server) handleLine(ctx context.Context, out io.Writer, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.respond(out, response{Error: &errorInfo{
			Kind:    "bad_request",
			Message: fmt.Sprintf("request is not valid JSON: %v", err),
		}})
		return
	}
	if req.Command == "" {
		s.respond(out, response{ID: req.ID, Error: &errorInfo{
			Kind:    "bad_request",
			Message: "request has no command",
		}})
		return
	}

	result, err := s.execute(ctx, req)
	if err != nil {
		s.respond(out, response{ID: req.ID, Error: classify(err)})
		return
	}
	s.respond(out, response{ID: req.ID, OK: true, Result: result})
}

// execute runs one request, handling the server-level commands that address
// the session itself rather than the analyzer.
func (s *server) execute(ctx context.Context, req request) (*command.Result, error) {
	switch req.Command {
	case "restart_analyzer":
		if err := s.session.Restart(ctx); err != nil {
			return nil, err
		}
		return &command.Result{Command: req.Command, Summary: "analyzer restarted"}, nil
	case "status":
		return &command.Result{
			Command: req.Command,
			Summary: s.session.Status().String(),
			Data:    map[string]string{"status": s.session.Status().String()},
		}, nil
	default:
		return s.dispatcher.Execute(ctx, req.Command, req.Args)
	}
}

func (s *server) respond(out io.Writer, resp response) {
	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("cannot marshal response", zap.Error(err))
		body = []byte(`{"ok":false,"error":{"kind":"internal","message":"response marshaling failed"}}`)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := out.Write(append(body, '\n')); err != nil {
		s.logger.Error("cannot write response", zap.Error(err))
	}
}

// classify maps an execution error to its wire form.
func classify(err error) *errorInfo {
	var (
		argErr   *command.InvalidArgumentsError
		rpcErr   *analyzer.RPCError
		spawnErr *analyzer.SpawnError
	)
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return &errorInfo{Kind: "unknown_command", Message: err.Error()}
	case errors.As(err, &argErr):
		return &errorInfo{Kind: "invalid_arguments", Message: argErr.Error()}
	case errors.As(err, &rpcErr):
		return &errorInfo{Kind: "analyzer_error", Message: rpcErr.Message, Code: rpcErr.Code}
	case errors.Is(err, analyzer.ErrRequestTimeout):
		return &errorInfo{Kind: "timeout", Message: err.Error()}
	case errors.Is(err, analyzer.ErrSessionTerminated):
		return &errorInfo{Kind: "session_terminated", Message: err.Error()}
	case errors.As(err, &spawnErr):
		return &errorInfo{Kind: "spawn_failed", Message: spawnErr.Error()}
	case errors.Is(err, analyzer.ErrMalformedMessage):
		return &errorInfo{Kind: "protocol_error", Message: err.Error()}
	case errors.Is(err, command.ErrNoActionAvailable):
		return &errorInfo{Kind: "no_action", Message: err.Error()}
	case errors.Is(err, command.ErrUnsupported):
		return &errorInfo{Kind: "unsupported", Message: err.Error()}
	default:
		return &errorInfo{Kind: "internal", Message: err.Error()}
	}
}
