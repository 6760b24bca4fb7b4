package logstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

// fakeEntry is one canned log line emitted after a delay.
type fakeEntry struct {
	delay time.Duration
	line  string
}

// fakeSource is a Source stub that emits canned lines as multiplexed frames.
// A line becomes tailable only once it has been streamed, and streaming picks
// up after the last line streamed so far. This mirrors how the tests exercise
// the real engine API without a daemon.
type fakeSource struct {
	entries []fakeEntry

	// holdOpen keeps the live stream open after the last line, so tests can
	// force a client-side timeout instead of a natural close.
	holdOpen time.Duration

	// tailErr makes Tail fail, for exercising best-effort diagnostics.
	tailErr error

	mu   sync.Mutex
	seen []string
}

var _ Source = (*fakeSource)(nil)

func (f *fakeSource) Tail(_ context.Context, opts TailOptions) ([]byte, error) {
	if f.tailErr != nil {
		return nil, f.tailErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	lines := f.seen
	if opts.Tail != TailAll {
		n, err := strconv.Atoi(opts.Tail)
		if err != nil {
			return nil, fmt.Errorf("bad tail value %q: %w", opts.Tail, err)
		}
		if n < len(lines) {
			lines = lines[len(lines)-n:]
		}
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
	}
	return buf.Bytes(), nil
}

func (f *fakeSource) Live(_ context.Context, _ StreamOptions) (io.ReadCloser, error) {
	pr, pw := io.Pipe()

	f.mu.Lock()
	start := len(f.seen)
	f.mu.Unlock()

	go func() {
		defer pw.Close()
		for _, entry := range f.entries[start:] {
			time.Sleep(entry.delay)
			if _, err := pw.Write(EncodeFrame(Stdout, []byte(entry.line))); err != nil {
				// Reader went away (closed early or timed out).
				return
			}
			f.mu.Lock()
			f.seen = append(f.seen, entry.line)
			f.mu.Unlock()
		}
		time.Sleep(f.holdOpen)
	}()

	return pr, nil
}

// streamAll drains a stream until natural end, returning the lines.
func streamAll(s *Stream) ([]string, error) {
	defer s.Close()

	var lines []string
	for {
		line, err := s.NextLine()
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, string(line))
	}
}
