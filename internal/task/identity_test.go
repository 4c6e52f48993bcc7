package task

import (
	"strings"
	"testing"
)

func testIdentity() Identity {
	return Identity{
		FlowName: "LinearFlow",
		RunID:    "1771",
		StepName: "start",
		TaskID:   "3212",
		Attempt:  0,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Identity)
		wantErr bool
	}{
		{"valid", func(id *Identity) {}, false},
		{"missing flow", func(id *Identity) { id.FlowName = "" }, true},
		{"missing run", func(id *Identity) { id.RunID = "" }, true},
		{"missing step", func(id *Identity) { id.StepName = "" }, true},
		{"missing task", func(id *Identity) { id.TaskID = "" }, true},
		{"negative attempt", func(id *Identity) { id.Attempt = -1 }, true},
		{"later attempt", func(id *Identity) { id.Attempt = 3 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testIdentity()
			tt.mutate(&id)
			err := id.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobName(t *testing.T) {
	id := testIdentity()
	got := id.JobName()
	want := "linearflow-1771-start-3212-0"
	if got != want {
		t.Errorf("JobName() = %q, want %q", got, want)
	}

	// Names must be deterministic per attempt and distinct across attempts.
	if id.JobName() != got {
		t.Error("JobName() is not deterministic")
	}
	id.Attempt = 1
	if id.JobName() == got {
		t.Error("JobName() did not change with attempt")
	}
}

func TestJobNameLowercases(t *testing.T) {
	id := testIdentity()
	id.StepName = "TrainModel"
	if got := id.JobName(); strings.ToLower(got) != got {
		t.Errorf("JobName() = %q, want all lowercase", got)
	}
}

func TestPathspec(t *testing.T) {
	id := testIdentity()
	if got, want := id.Pathspec(), "LinearFlow/1771/start/3212"; got != want {
		t.Errorf("Pathspec() = %q, want %q", got, want)
	}
	if got, want := id.String(), "LinearFlow/1771/start/3212/0"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestLogLocation(t *testing.T) {
	id := testIdentity()
	sysroot := "s3://bucket/taskplane"

	out := id.LogLocation(sysroot, StreamStdout)
	want := LogLocation("s3://bucket/taskplane/LinearFlow/1771/start/3212/0/logs/task_stdout.log")
	if out != want {
		t.Errorf("LogLocation() = %q, want %q", out, want)
	}

	// Deterministic per (identity, stream).
	if out != id.LogLocation(sysroot, StreamStdout) {
		t.Error("LogLocation() is not deterministic")
	}

	// Distinct across streams of the same attempt.
	errLoc := id.LogLocation(sysroot, StreamStderr)
	if out == errLoc {
		t.Errorf("stdout and stderr map to the same location %q", out)
	}

	// Distinct across attempts.
	id.Attempt = 1
	if id.LogLocation(sysroot, StreamStdout) == out {
		t.Error("LogLocation() did not change with attempt")
	}

	if !strings.HasSuffix(string(out), "/1771/start/3212/0/logs/task_stdout.log") {
		t.Errorf("unexpected location %q", out)
	}
	if !strings.HasSuffix(string(errLoc), "/logs/task_stderr.log") {
		t.Errorf("unexpected location %q", errLoc)
	}
}

func TestParsePathspec(t *testing.T) {
	id, err := ParsePathspec("LinearFlow/1771/start/3212")
	if err != nil {
		t.Fatalf("ParsePathspec() error = %v", err)
	}
	want := testIdentity()
	if id != want {
		t.Errorf("ParsePathspec() = %+v, want %+v", id, want)
	}

	for _, bad := range []string{"", "a/b/c", "a/b/c/d/e", "a//c/d"} {
		if _, err := ParsePathspec(bad); err == nil {
			t.Errorf("ParsePathspec(%q) succeeded, want error", bad)
		}
	}
}

func TestLogLocationTrailingSlash(t *testing.T) {
	id := testIdentity()
	a := id.LogLocation("s3://bucket/taskplane", StreamStdout)
	b := id.LogLocation("s3://bucket/taskplane/", StreamStdout)
	if a != b {
		t.Errorf("trailing slash changed location: %q vs %q", a, b)
	}
}
