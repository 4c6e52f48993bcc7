// Package tasklog implements the structured log channel between a remotely
// running task and the process monitoring it.
//
// Task output is captured line by line and decorated with a header recording
// when and where the line was produced and whether it has been persisted:
//
//	[TLOG|1|0|2026-08-23T10:11:12.131415161Z|task]hello world
//
// The header fields are format version, marker (0 provisional, 1 persisted),
// UTC timestamp and source. While the task runs its log locations hold
// provisional lines that may still disappear if the process is hard-killed;
// the final flush rewrites the content with every marker set to persisted.
// Readers use the marker to label output that is not yet durable.
package tasklog

import (
	"bytes"
	"time"
)

// Version is the structured line format version.
const Version = "1"

// Log source names.
const (
	// SourceTask marks output produced by the task process itself.
	SourceTask = "task"
	// SourceRuntime marks notices produced by the capture and monitoring
	// machinery around the task.
	SourceRuntime = "runtime"
)

const (
	markerProvisional = '0'
	markerPersisted   = '1'
)

var linePrefix = []byte("[TLOG|" + Version + "|")

// markerOffset is the byte index of the marker within a structured line.
const markerOffset = len("[TLOG|") + len(Version) + 1

// Line is one parsed structured log line.
type Line struct {
	ShouldPersist bool
	Timestamp     time.Time
	Source        string
	Payload       []byte
}

// Decorate renders payload as a single structured line from source. Newline
// bytes inside the payload are replaced with spaces so the result stays one
// line; the returned slice always ends in '\n'.
func Decorate(source string, persist bool, now time.Time, payload []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(payload) + 64)
	b.Write(linePrefix)
	if persist {
		b.WriteByte(markerPersisted)
	} else {
		b.WriteByte(markerProvisional)
	}
	b.WriteByte('|')
	b.WriteString(now.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(source)
	b.WriteByte(']')
	for _, c := range payload {
		if c == '\n' || c == '\r' {
			c = ' '
		}
		b.WriteByte(c)
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// Parse recovers the fields of a structured line. ok is false when raw is not
// a structured line of this format version.
func Parse(raw []byte) (line Line, ok bool) {
	raw = trimEOL(raw)
	rest, found := bytes.CutPrefix(raw, linePrefix)
	if !found {
		return Line{}, false
	}
	end := bytes.IndexByte(rest, ']')
	if end < 0 {
		return Line{}, false
	}
	header := rest[:end]
	fields := bytes.Split(header, []byte("|"))
	if len(fields) != 3 {
		return Line{}, false
	}
	marker, ts, source := fields[0], fields[1], fields[2]
	if len(marker) != 1 || (marker[0] != markerProvisional && marker[0] != markerPersisted) {
		return Line{}, false
	}
	if len(source) == 0 {
		return Line{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(ts))
	if err != nil {
		return Line{}, false
	}
	return Line{
		ShouldPersist: marker[0] == markerPersisted,
		Timestamp:     t.UTC(),
		Source:        string(source),
		Payload:       rest[end+1:],
	}, true
}

// Refine converts a stored line to display bytes. Provisional structured
// lines get prefix prepended to their payload, persisted lines yield their
// payload unchanged, and unstructured lines get prefix prepended whole. The
// result carries no trailing newline; callers add their own framing.
func Refine(raw, prefix []byte) []byte {
	line, ok := Parse(raw)
	if !ok {
		return append(append([]byte(nil), prefix...), trimEOL(raw)...)
	}
	if line.ShouldPersist {
		return line.Payload
	}
	return append(append([]byte(nil), prefix...), line.Payload...)
}

// SetShouldPersist returns raw with its marker forced to persisted.
// Structured input keeps its timestamp and source byte for byte;
// unstructured input is wrapped into a persisted line from source at now, so
// a second pass over mixed content cannot re-decorate anything.
func SetShouldPersist(raw []byte, source string, now time.Time) []byte {
	if _, ok := Parse(raw); !ok {
		return Decorate(source, true, now, trimEOL(raw))
	}
	out := append([]byte(nil), raw...)
	out[markerOffset] = markerPersisted
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
