package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// CommandRunner executes an external tool. SubprocessRunner is the
// production implementation; tests substitute fakes.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (RunResult, error)
}

// SubprocessRunner runs commands with exec.CommandContext.
type SubprocessRunner struct {
	logger *slog.Logger
}

func NewSubprocessRunner(logger *slog.Logger) *SubprocessRunner {
	return &SubprocessRunner{logger: logger}
}

// Run executes name with args. Stdout is captured in full and stderr is
// bounded to its tail. A non-zero exit is reported as *CommandError
// alongside the populated RunResult.
func (r *SubprocessRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	r.logger.Debug("executing command", "tool", name, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{
		Stdout:     stdout.Bytes(),
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.ExitCode = -1
			return result, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, err
		}
	}

	if result.ExitCode != 0 {
		r.logger.Warn("command failed",
			"tool", name,
			"exit_code", result.ExitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		return result, &CommandError{Tool: name, ExitCode: result.ExitCode, StderrTail: result.StderrTail}
	}

	r.logger.Debug("command succeeded", "tool", name, "duration_ms", elapsed.Milliseconds())
	return result, nil
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
