package cargo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Finding is one compiler message from a cargo check run.
type Finding struct {
	Level   string `json:"level"` // error, warning
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// CheckResult is the outcome of one cargo check run.
type CheckResult struct {
	Success  bool      `json:"success"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Findings []Finding `json:"findings"`
}

// Check runs `cargo check --message-format=json` in dir and parses the
// compiler messages off its stdout. A non-zero exit with findings is a
// normal outcome, not an execution error.
func Check(ctx context.Context, dir string, logger *zap.Logger) (*CheckResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, "cargo", "check", "--message-format=json", "--quiet")
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cargo check: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cargo check: %w", err)
	}
	logger.Info("cargo check started", zap.String("dir", dir))

	result := &CheckResult{Findings: []Finding{}}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}
		msg := gjson.ParseBytes(line)
		if msg.Get("reason").String() != "compiler-message" {
			continue
		}
		if f, ok := parseCompilerMessage(msg.Get("message")); ok {
			switch f.Level {
			case "error":
				result.Errors++
			case "warning":
				result.Warnings++
			}
			result.Findings = append(result.Findings, f)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if scanErr != nil {
		return nil, fmt.Errorf("cargo check output: %w", scanErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("cargo check: %w", waitErr)
		}
		// Compilation failure: the findings explain it.
	}
	result.Success = waitErr == nil

	logger.Info("cargo check finished",
		zap.Bool("success", result.Success),
		zap.Int("errors", result.Errors),
		zap.Int("warnings", result.Warnings))
	return result, nil
}

// parseCompilerMessage extracts one finding from a rustc diagnostic object.
// Sub-diagnostics (notes, helps) are skipped.
func parseCompilerMessage(msg gjson.Result) (Finding, bool) {
	level := msg.Get("level").String()
	if level != "error" && level != "warning" {
		return Finding{}, false
	}

	f := Finding{
		Level:   level,
		Code:    msg.Get("code.code").String(),
		Message: msg.Get("message").String(),
	}

	// Prefer the primary span for the location.
	msg.Get("spans").ForEach(func(_, span gjson.Result) bool {
		if !span.Get("is_primary").Bool() {
			return true
		}
		f.File = span.Get("file_name").String()
		f.Line = int(span.Get("line_start").Int())
		f.Column = int(span.Get("column_start").Int())
		return false
	})
	return f, true
}
