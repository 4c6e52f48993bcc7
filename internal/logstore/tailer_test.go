package logstore

import (
	"context"
	"testing"

	"taskplane/internal/task"
)

func tailerFixture(t *testing.T) (context.Context, *FileStore, task.LogLocation, *Tailer) {
	t.Helper()
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	loc := task.LogLocation("flow/run/step/task/0/logs/task_stdout.log")
	return ctx, store, loc, NewTailer(store, loc)
}

func nextLines(t *testing.T, ctx context.Context, tailer *Tailer) []string {
	t.Helper()
	lines, err := tailer.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func TestTailerYieldsOnlyNewLines(t *testing.T) {
	ctx, store, loc, tailer := tailerFixture(t)

	if got := nextLines(t, ctx, tailer); len(got) != 0 {
		t.Fatalf("Next() on empty entry = %v, want none", got)
	}

	store.Append(ctx, loc, []byte("a\nb\n"))
	if got := nextLines(t, ctx, tailer); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Next() = %v, want [a b]", got)
	}

	if got := nextLines(t, ctx, tailer); len(got) != 0 {
		t.Fatalf("Next() with no new content = %v, want none", got)
	}

	store.Append(ctx, loc, []byte("c\n"))
	if got := nextLines(t, ctx, tailer); len(got) != 1 || got[0] != "c" {
		t.Fatalf("Next() = %v, want [c]", got)
	}
}

func TestTailerWithholdsUnterminatedLine(t *testing.T) {
	ctx, store, loc, tailer := tailerFixture(t)

	store.Append(ctx, loc, []byte("part"))
	if got := nextLines(t, ctx, tailer); len(got) != 0 {
		t.Fatalf("Next() = %v, want none while line unterminated", got)
	}

	store.Append(ctx, loc, []byte("ial\n"))
	if got := nextLines(t, ctx, tailer); len(got) != 1 || got[0] != "partial" {
		t.Fatalf("Next() = %v, want [partial]", got)
	}
}

// The final persistence flush rewrites every stored line in place (markers
// flip) and may add lines that were never mirrored. The tailer must deliver
// only the tail it has not yielded yet.
func TestTailerNoRedeliveryAcrossReplace(t *testing.T) {
	ctx, store, loc, tailer := tailerFixture(t)

	store.Append(ctx, loc, []byte("one provisional\ntwo provisional\n"))
	if got := nextLines(t, ctx, tailer); len(got) != 2 {
		t.Fatalf("Next() = %v, want 2 lines", got)
	}

	store.Replace(ctx, loc, []byte("one persisted\ntwo persisted\nthree persisted\n"))
	got := nextLines(t, ctx, tailer)
	if len(got) != 1 || got[0] != "three persisted" {
		t.Fatalf("Next() after replace = %v, want [three persisted]", got)
	}
}

func TestTailerResyncsAfterTruncation(t *testing.T) {
	ctx, store, loc, tailer := tailerFixture(t)

	store.Append(ctx, loc, []byte("a\nb\n"))
	nextLines(t, ctx, tailer)

	store.Replace(ctx, loc, []byte("a\n"))
	if got := nextLines(t, ctx, tailer); len(got) != 0 {
		t.Fatalf("Next() after truncation = %v, want none", got)
	}

	store.Append(ctx, loc, []byte("b2\n"))
	if got := nextLines(t, ctx, tailer); len(got) != 1 || got[0] != "b2" {
		t.Fatalf("Next() = %v, want [b2]", got)
	}
}
