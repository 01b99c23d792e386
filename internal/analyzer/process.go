package analyzer

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Process owns the analyzer executable: it spawns it with the workspace as
// working directory, exposes its stdio pipes, and reports exit.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *zap.Logger

	exitCh chan error
}

// ProcessConfig describes how to start the analyzer.
type ProcessConfig struct {
	// Command is the analyzer executable, e.g. "rust-analyzer".
	Command string

	// Args are extra command-line arguments.
	Args []string

	// Dir is the working directory, normally the target project root.
	Dir string

	// Env holds additional environment variables as KEY=VALUE pairs.
	Env []string
}

// StartProcess spawns the analyzer. It fails with *SpawnError when the
// executable is missing or cannot be started.
func StartProcess(ctx context.Context, cfg ProcessConfig, logger *zap.Logger) (*Process, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	// The analyzer's stderr is log chatter; keep it out of the protocol stream.
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}

	logger.Info("analyzer process started",
		zap.String("command", cfg.Command),
		zap.String("dir", cfg.Dir),
		zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		logger: logger,
		exitCh: make(chan error, 1),
	}
	go p.wait()
	return p, nil
}

// wait reaps the process and publishes its exit status.
func (p *Process) wait() {
	err := p.cmd.Wait()
	p.logger.Info("analyzer process exited", zap.Error(err))
	p.exitCh <- err
	close(p.exitCh)
}

// Stdin returns the process's input stream.
func (p *Process) Stdin() io.Writer {
	return p.stdin
}

// Stdout returns the process's output stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Exited returns a channel that receives the exit status once, then closes.
func (p *Process) Exited() <-chan error {
	return p.exitCh
}

// Pid returns the process id, or 0 if unavailable.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop closes stdin (which, combined with the protocol exit notification the
// session sends first, asks the analyzer to leave) and waits up to grace for
// the process to exit before killing it.
func (p *Process) Stop(grace time.Duration) error {
	p.stdin.Close()

	select {
	case err := <-p.exitCh:
		return err
	case <-time.After(grace):
	}

	p.logger.Warn("analyzer did not exit within grace period, killing", zap.Duration("grace", grace))
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return <-p.exitCh
}
