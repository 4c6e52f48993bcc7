package tasklog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"taskplane/internal/logstore"
	"taskplane/internal/task"
)

// Mirror cadence defaults.
const (
	DefaultBatchSize  = 100
	DefaultFlushEvery = time.Second
)

// maxLineBytes bounds a single captured line; longer output is split by the
// scanner error and capture stops.
const maxLineBytes = 1024 * 1024

// Tee captures raw process output for one stream: every line is decorated as
// provisional, written to the local file immediately and mirrored to the
// durable store in batches of BatchSize lines or every FlushEvery, whichever
// comes first.
type Tee struct {
	Source   string
	Local    io.Writer
	Store    logstore.Store
	Location task.LogLocation

	BatchSize  int
	FlushEvery time.Duration
	Now        func() time.Time

	// OnMirrorError observes failed batch appends. The batch is retained
	// and retried, so the mirrored content stays a prefix of the local
	// file in line order.
	OnMirrorError func(error)
}

// Run consumes r until EOF or ctx cancellation. Local write failures stop
// capture and are returned; mirror failures never do.
func (t *Tee) Run(ctx context.Context, r io.Reader) error {
	batchSize := t.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	flushEvery := t.FlushEvery
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	now := t.Now
	if now == nil {
		now = time.Now
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	var pending []byte
	var pendingLines int

	flush := func(ctx context.Context) {
		if pendingLines == 0 || t.Store == nil {
			return
		}
		if err := t.Store.Append(ctx, t.Location, pending); err != nil {
			if t.OnMirrorError != nil {
				t.OnMirrorError(err)
			}
			return
		}
		pending = nil
		pendingLines = 0
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				flush(ctx)
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("scanning task output: %w", err)
					}
				default:
				}
				return nil
			}
			decorated := Decorate(t.Source, false, now(), line)
			if _, err := t.Local.Write(decorated); err != nil {
				return fmt.Errorf("writing local log: %w", err)
			}
			pending = append(pending, decorated...)
			pendingLines++
			if pendingLines >= batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			flush(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

// Save is the final flush for one stream: it reads the complete local
// capture, flips every line to persisted and atomically replaces the durable
// location content with the result. It never runs when the container is
// hard-killed, which is the accepted loss window of the channel.
func Save(ctx context.Context, store logstore.Store, loc task.LogLocation, local io.Reader, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	var out bytes.Buffer
	scanner := bufio.NewScanner(local)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		out.Write(SetShouldPersist(scanner.Bytes(), SourceRuntime, now()))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading local log: %w", err)
	}
	if err := store.Replace(ctx, loc, out.Bytes()); err != nil {
		return fmt.Errorf("persisting log: %w", err)
	}
	return nil
}
