package tactile

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestDirectExecutorCapturesOutput(t *testing.T) {
	requireShell(t)
	e := NewDirectExecutor()
	res, err := e.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo out; echo err 1>&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.ExitCode != 3 || !res.IsNonZeroExit() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if res.Output() != res.Stdout+"\n"+res.Stderr {
		t.Errorf("Output() = %q", res.Output())
	}
}

func TestDirectExecutorStdin(t *testing.T) {
	requireShell(t)
	res, err := NewDirectExecutor().Execute(context.Background(), Command{
		Binary: "cat",
		Stdin:  "payload",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Stdout != "payload" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestDirectExecutorKillsOnTimeout(t *testing.T) {
	requireShell(t)
	start := time.Now()
	res, err := NewDirectExecutor().Execute(context.Background(), Command{
		Binary:    "sleep",
		Arguments: []string{"5"},
		Timeout:   100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Killed || !strings.HasPrefix(res.KillReason, "timeout") {
		t.Fatalf("expected timeout kill, got %+v", res)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("kill took %s", time.Since(start))
	}
}

func TestDirectExecutorMissingBinary(t *testing.T) {
	res, err := NewDirectExecutor().Execute(context.Background(), Command{Binary: "definitely-not-a-binary-xyz"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError() {
		t.Errorf("expected infrastructure error, got %+v", res)
	}
	if _, err := NewDirectExecutor().Execute(context.Background(), Command{}); err == nil {
		t.Error("empty binary should fail validation")
	}
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 4}
	n, err := lw.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	lw.Write([]byte("gh"))
	if buf.String() != "abcd" || !lw.truncated || lw.discarded != 4 {
		t.Errorf("buf=%q truncated=%v discarded=%d", buf.String(), lw.truncated, lw.discarded)
	}
}

func TestMergeCapsTimeout(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.MaxTimeout = time.Second
	got := cfg.Merge(Command{Binary: "x", Timeout: time.Hour})
	if got.Timeout != time.Second || got.WorkingDirectory != "." || got.MaxOutputBytes != cfg.MaxOutputBytes {
		t.Errorf("Merge = %+v", got)
	}
}
