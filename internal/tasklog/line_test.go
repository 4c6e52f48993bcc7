package tasklog

import (
	"bytes"
	"testing"
	"time"
)

var testTime = time.Date(2026, 8, 23, 10, 11, 12, 131415161, time.UTC)

func TestDecorateParseRoundTrip(t *testing.T) {
	raw := Decorate(SourceTask, false, testTime, []byte("hello world"))

	if !bytes.HasSuffix(raw, []byte("\n")) {
		t.Fatalf("Decorate() = %q, want trailing newline", raw)
	}

	line, ok := Parse(raw)
	if !ok {
		t.Fatalf("Parse(%q) not ok", raw)
	}
	if line.ShouldPersist {
		t.Error("ShouldPersist = true, want false")
	}
	if !line.Timestamp.Equal(testTime) {
		t.Errorf("Timestamp = %v, want %v", line.Timestamp, testTime)
	}
	if line.Source != SourceTask {
		t.Errorf("Source = %q, want %q", line.Source, SourceTask)
	}
	if string(line.Payload) != "hello world" {
		t.Errorf("Payload = %q, want %q", line.Payload, "hello world")
	}
}

func TestDecorateFlattensNewlines(t *testing.T) {
	raw := Decorate(SourceTask, false, testTime, []byte("a\nb\rc"))
	if n := bytes.Count(raw, []byte("\n")); n != 1 {
		t.Fatalf("Decorate() produced %d newlines, want 1: %q", n, raw)
	}
	line, _ := Parse(raw)
	if string(line.Payload) != "a b c" {
		t.Errorf("Payload = %q, want %q", line.Payload, "a b c")
	}
}

func TestParseRejectsUnstructured(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain text", "just some output\n"},
		{"empty", ""},
		{"wrong version", "[TLOG|2|0|2026-08-23T10:11:12Z|task]x\n"},
		{"bad marker", "[TLOG|1|9|2026-08-23T10:11:12Z|task]x\n"},
		{"bad timestamp", "[TLOG|1|0|yesterday|task]x\n"},
		{"missing source", "[TLOG|1|0|2026-08-23T10:11:12Z|]x\n"},
		{"no closing bracket", "[TLOG|1|0|2026-08-23T10:11:12Z|task"},
		{"truncated header", "[TLOG|1|0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Parse([]byte(tt.raw)); ok {
				t.Errorf("Parse(%q) ok, want not ok", tt.raw)
			}
		})
	}
}

func TestRefine(t *testing.T) {
	prefix := []byte("[pending] ")
	provisional := Decorate(SourceTask, false, testTime, []byte("working"))
	persisted := Decorate(SourceTask, true, testTime, []byte("working"))

	if got := Refine(provisional, prefix); string(got) != "[pending] working" {
		t.Errorf("Refine(provisional) = %q, want %q", got, "[pending] working")
	}
	if got := Refine(persisted, prefix); string(got) != "working" {
		t.Errorf("Refine(persisted) = %q, want %q", got, "working")
	}
	if got := Refine([]byte("bare output\n"), prefix); string(got) != "[pending] bare output" {
		t.Errorf("Refine(unstructured) = %q, want %q", got, "[pending] bare output")
	}
}

func TestSetShouldPersist(t *testing.T) {
	provisional := Decorate(SourceTask, false, testTime, []byte("almost done"))

	flipped := SetShouldPersist(provisional, SourceRuntime, time.Now())
	line, ok := Parse(flipped)
	if !ok {
		t.Fatalf("Parse(%q) not ok after flip", flipped)
	}
	if !line.ShouldPersist {
		t.Error("ShouldPersist = false after SetShouldPersist")
	}
	// The original timestamp and source survive the flip byte for byte.
	if !line.Timestamp.Equal(testTime) {
		t.Errorf("Timestamp = %v, want %v", line.Timestamp, testTime)
	}
	if line.Source != SourceTask {
		t.Errorf("Source = %q, want %q", line.Source, SourceTask)
	}

	// A second application changes nothing.
	again := SetShouldPersist(flipped, SourceRuntime, time.Now())
	if !bytes.Equal(again, flipped) {
		t.Errorf("second SetShouldPersist = %q, want %q", again, flipped)
	}
}

func TestSetShouldPersistWrapsUnstructured(t *testing.T) {
	wrapped := SetShouldPersist([]byte("raw print\n"), SourceRuntime, testTime)
	line, ok := Parse(wrapped)
	if !ok {
		t.Fatalf("Parse(%q) not ok", wrapped)
	}
	if !line.ShouldPersist {
		t.Error("ShouldPersist = false, want true")
	}
	if line.Source != SourceRuntime {
		t.Errorf("Source = %q, want %q", line.Source, SourceRuntime)
	}
	if string(line.Payload) != "raw print" {
		t.Errorf("Payload = %q, want %q", line.Payload, "raw print")
	}

	again := SetShouldPersist(wrapped, SourceRuntime, testTime.Add(time.Hour))
	if !bytes.Equal(again, wrapped) {
		t.Errorf("second pass re-decorated: %q vs %q", again, wrapped)
	}
}

// Once every line is persisted, refining is the identity on payloads: display
// output of the final log equals display output of the live tail minus the
// pending prefix.
func TestRefineAfterPersistRoundTrip(t *testing.T) {
	prefix := []byte("[pending] ")
	inputs := [][]byte{
		Decorate(SourceTask, false, testTime, []byte("line one")),
		Decorate(SourceRuntime, false, testTime, []byte("notice")),
		[]byte("stray write\n"),
	}
	wantPayloads := []string{"line one", "notice", "stray write"}

	for i, raw := range inputs {
		final := SetShouldPersist(raw, SourceRuntime, testTime)
		if got := Refine(final, prefix); string(got) != wantPayloads[i] {
			t.Errorf("Refine(SetShouldPersist(%q)) = %q, want %q", raw, got, wantPayloads[i])
		}
	}
}
