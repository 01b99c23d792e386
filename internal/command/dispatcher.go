package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/rustbridge/internal/analyzer"
)

// Session is the slice of the analyzer session commands use. It is satisfied
// by *analyzer.Session and by test fakes.
type Session interface {
	EnsureInitialized(ctx context.Context) error
	EnsureOpen(ctx context.Context, path string) error
	Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	Notify(method string, params any) error
	Diagnostics(path string) []analyzer.Diagnostic
	AllDiagnostics() map[string][]analyzer.Diagnostic
	UpdateFile(ctx context.Context, path, content string) error
	Supports(capability string) bool
	Root() string
	Acquire(ctx context.Context) error
	Release()
}

// Timeouts holds the per-class response deadlines.
type Timeouts struct {
	Navigation time.Duration
	Refactor   time.Duration
	Project    time.Duration
}

// DefaultTimeouts returns the standard deadlines per class.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation: 15 * time.Second,
		Refactor:   30 * time.Second,
		Project:    2 * time.Minute,
	}
}

func (t Timeouts) forClass(c TimeoutClass) time.Duration {
	switch c {
	case ClassRefactor:
		return t.Refactor
	case ClassProject:
		return t.Project
	default:
		return t.Navigation
	}
}

// Execution is the per-invocation context handed to a command's Run.
type Execution struct {
	Session Session
	Args    Args
	Timeout time.Duration
	Logger  *zap.Logger
}

// Request sends one analyzer request with the command's class timeout.
func (e *Execution) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return e.Session.Request(ctx, method, params, e.Timeout)
}

// requireCapability fails when the analyzer did not advertise a capability
// the command depends on.
func (e *Execution) requireCapability(name string) error {
	if !e.Session.Supports(name) {
		return fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	return nil
}

// Path resolves a possibly relative file argument against the workspace root.
func (e *Execution) Path(arg string) string {
	return resolvePath(e.Session.Root(), arg)
}

// Dispatcher validates, serializes, and runs commands against one session.
type Dispatcher struct {
	session  Session
	registry *Registry
	timeouts Timeouts
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(session Session, registry *Registry, timeouts Timeouts, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		session:  session,
		registry: registry,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Execute runs one command to completion. Lookup and argument validation
// happen before the session is locked or any analyzer traffic is sent;
// after that the command owns the session exclusively until it finishes.
func (d *Dispatcher) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (*Result, error) {
	desc, err := d.registry.Get(name)
	if err != nil {
		return nil, err
	}

	args, err := desc.Schema.Validate(name, rawArgs)
	if err != nil {
		return nil, err
	}

	if err := d.session.Acquire(ctx); err != nil {
		return nil, err
	}
	defer d.session.Release()

	if !desc.Local {
		if err := d.session.EnsureInitialized(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	exec := &Execution{
		Session: d.session,
		Args:    args,
		Timeout: d.timeouts.forClass(desc.Class),
		Logger:  d.logger.With(zap.String("command", name)),
	}

	result, err := desc.Run(ctx, exec)
	elapsed := time.Since(start)
	if err != nil {
		d.logger.Warn("command failed",
			zap.String("command", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	result.Command = name
	d.logger.Info("command completed",
		zap.String("command", name),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// Commands returns the sorted names the dispatcher accepts.
func (d *Dispatcher) Commands() []string {
	return d.registry.Names()
}
