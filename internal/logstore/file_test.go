package logstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"taskplane/internal/task"
)

func TestFileStoreAppendRead(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	loc := task.LogLocation("flow/run/step/task/0/logs/task_stdout.log")

	got, err := store.Read(ctx, loc)
	if err != nil {
		t.Fatalf("Read() on missing entry error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Read() on missing entry = %q, want empty", got)
	}

	if err := store.Append(ctx, loc, []byte("one\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, loc, []byte("two\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err = store.Read(ctx, loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("Read() = %q, want %q", got, "one\ntwo\n")
	}
}

func TestFileStoreReplace(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	loc := task.LogLocation("flow/run/step/task/0/logs/task_stderr.log")

	if err := store.Append(ctx, loc, []byte("draft\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Replace(ctx, loc, []byte("final\n")); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := store.Read(ctx, loc)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "final\n" {
		t.Errorf("Read() = %q, want %q", got, "final\n")
	}
}

func TestFileStoreStripsScheme(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(root)
	loc := task.LogLocation("s3://bucket/taskplane/flow/run/step/task/0/logs/task_stdout.log")

	if err := store.Append(ctx, loc, []byte("x\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	want := filepath.Join(root, "bucket", "taskplane", "flow", "run", "step", "task", "0", "logs", "task_stdout.log")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected entry file at %s: %v", want, err)
	}
}
