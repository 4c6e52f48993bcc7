// Package logstore provides durable append-only storage for task log
// streams, addressed by task.LogLocation, together with a tailer that turns
// a location into a stream of newly appended lines.
package logstore

import (
	"bytes"
	"context"

	"taskplane/internal/task"
)

// Store is one durable log backend. Entries are created on first write and
// missing entries read as empty.
type Store interface {
	// Append adds raw bytes to the end of the entry at loc.
	Append(ctx context.Context, loc task.LogLocation, p []byte) error
	// Replace atomically substitutes the entire content of the entry at
	// loc. Readers observe either the old content or the new, never a mix.
	Replace(ctx context.Context, loc task.LogLocation, p []byte) error
	// Read returns the full current content of the entry at loc.
	Read(ctx context.Context, loc task.LogLocation) ([]byte, error)
}

// Tailer yields newly appended complete lines from one location. The cursor
// counts lines, not bytes, so a Replace that rewrites earlier lines in place
// (the final persistence flush does) causes no re-delivery: a Tailer yields
// each line position exactly once for its lifetime.
type Tailer struct {
	store Store
	loc   task.LogLocation
	seen  int
}

// NewTailer returns a Tailer positioned at the start of loc.
func NewTailer(store Store, loc task.LogLocation) *Tailer {
	return &Tailer{store: store, loc: loc}
}

// Location returns the location this Tailer reads.
func (t *Tailer) Location() task.LogLocation {
	return t.loc
}

// Next returns the complete lines appended since the previous call, in
// order, without trailing newlines. A trailing unterminated line is withheld
// until it is terminated. An empty result means nothing new.
func (t *Tailer) Next(ctx context.Context) ([][]byte, error) {
	content, err := t.store.Read(ctx, t.loc)
	if err != nil {
		return nil, err
	}
	lines := splitLines(content)
	if len(lines) <= t.seen {
		// A rewrite may only grow or preserve the line count; anything
		// shorter is a truncated entry, so resync and wait for it to
		// catch back up.
		t.seen = len(lines)
		return nil, nil
	}
	fresh := lines[t.seen:]
	t.seen = len(lines)
	return fresh, nil
}

func splitLines(content []byte) [][]byte {
	var lines [][]byte
	for {
		i := bytes.IndexByte(content, '\n')
		if i < 0 {
			return lines
		}
		lines = append(lines, content[:i])
		content = content[i+1:]
	}
}
