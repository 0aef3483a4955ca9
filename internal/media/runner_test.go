package media

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRunner records invocations and answers from runFn.
type fakeRunner struct {
	calls atomic.Int32
	last  []string
	runFn func(name string, args []string) (RunResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	f.calls.Add(1)
	f.last = append([]string{name}, args...)
	if f.runFn != nil {
		return f.runFn(name, args)
	}
	return RunResult{}, nil
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	n, err := lw.Write([]byte(" brave new world"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 16 {
		t.Errorf("Write() n = %d, want 16", n)
	}
	if buf.String() != " new world" {
		t.Errorf("tail = %q, want %q", buf.String(), " new world")
	}
}

func TestSubprocessRunner_NonZeroExit(t *testing.T) {
	r := NewSubprocessRunner(testLogger())

	res, err := r.Run(context.Background(), "sh", "-c", "echo 'ERROR: Private video' >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error %T is not *CommandError", err)
	}
	if cmdErr.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", cmdErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(err.Error(), "Private video") {
		t.Errorf("error %q should carry the stderr tail", err.Error())
	}
}

func TestSubprocessRunner_CapturesStdout(t *testing.T) {
	r := NewSubprocessRunner(testLogger())

	res, err := r.Run(context.Background(), "sh", "-c", "printf '{\"ok\":true}'")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != `{"ok":true}` {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestSubprocessRunner_ContextCanceled(t *testing.T) {
	r := NewSubprocessRunner(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, "sh", "-c", "sleep 5")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCommandError_Message(t *testing.T) {
	err := &CommandError{Tool: "yt-dlp", ExitCode: 1, StderrTail: strings.Repeat("x", 600) + "HTTP Error 429"}
	msg := err.Error()
	if !strings.HasPrefix(msg, "yt-dlp exited 1: ...") {
		t.Errorf("unexpected prefix: %q", msg[:30])
	}
	if !strings.HasSuffix(msg, "HTTP Error 429") {
		t.Errorf("tail lost: %q", msg[len(msg)-20:])
	}
}
