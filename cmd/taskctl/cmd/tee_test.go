package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Drives the structured log channel the way the assembled container command
// does: tee captures raw output, save-logs persists it, logs reads it back.
func TestTeeSaveLogsRoundTrip(t *testing.T) {
	resetViper()
	tmp := t.TempDir()
	sysroot := filepath.Join(tmp, "store")

	t.Setenv("TASKPLANE_DEFAULT_DATASTORE", "file")
	t.Setenv("TASKPLANE_DATASTORE_SYSROOT", sysroot)
	t.Setenv("TASKPLANE_PATHSPEC", "MyFlow/42/start/7")
	t.Setenv("TASKPLANE_ATTEMPT", "0")
	t.Setenv("TASKPLANE_STDOUT_PATH", filepath.Join(tmp, "task_stdout.log"))
	t.Setenv("TASKPLANE_STDERR_PATH", filepath.Join(tmp, "task_stderr.log"))

	// 1) Capture two raw lines on stdout.
	rootCmd.SetIn(strings.NewReader("hello\nworld\n"))
	rootCmd.SetArgs([]string{"tee", "stdout"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("tee failed: %v", err)
	}

	local, err := os.ReadFile(filepath.Join(tmp, "task_stdout.log"))
	if err != nil {
		t.Fatalf("local capture missing: %v", err)
	}
	if !strings.Contains(string(local), "|0|") {
		t.Errorf("local capture not provisional: %q", local)
	}

	// 2) While provisional, logs prefixes lines with the job name.
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"logs", "MyFlow/42/start/7"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(out.String(), "[myflow-42-start-7-0] hello") {
		t.Errorf("provisional logs not prefixed: %q", out.String())
	}

	// 3) Final flush flips every line to persisted.
	rootCmd.SetArgs([]string{"save-logs"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("save-logs failed: %v", err)
	}

	// 4) A fresh read now yields the payloads untouched.
	out.Reset()
	rootCmd.SetArgs([]string{"logs", "MyFlow/42/start/7"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("logs after save failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "hello\n") || !strings.Contains(got, "world\n") {
		t.Errorf("persisted logs incomplete: %q", got)
	}
	if strings.Contains(got, "[myflow-42-start-7-0] hello") {
		t.Errorf("persisted lines must not be re-decorated: %q", got)
	}
}

func TestTeeRejectsUnknownStream(t *testing.T) {
	resetViper()
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"tee", "sideband"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("tee with unknown stream must fail")
	}
}
