// Package logstream streams container log output as discrete lines under a
// wall-clock deadline. It understands the engine's multiplexed framing,
// enforces a single end-to-end timeout across all reads, and feeds the
// wait-for-match engine that decides container readiness.
package logstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultTimeout bounds a streaming operation when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// TailAll requests all already-produced output when used as a tail value.
const TailAll = "all"

// Source is the log-source capability a container handle must provide. Both
// calls accept the same stdout/stderr selection; Tail additionally bounds how
// much history is returned.
type Source interface {
	// Tail fetches already-produced output as a single byte blob, without
	// streaming. Tail is bounded by opts.Tail ("all" or a line count).
	Tail(ctx context.Context, opts TailOptions) ([]byte, error)

	// Live opens a raw multiplexed byte stream carrying output produced from
	// now on. The returned handle is exclusively owned by the caller for the
	// duration of one streaming operation and is closed by it exactly once.
	Live(ctx context.Context, opts StreamOptions) (io.ReadCloser, error)
}

// TailOptions selects which output a non-streaming fetch returns.
type TailOptions struct {
	Stdout bool
	Stderr bool
	// Tail is the number of most recent lines to return, or TailAll.
	Tail string
}

// StreamOptions selects which output streams a live stream carries.
type StreamOptions struct {
	Stdout bool
	Stderr bool
}

// Options configures a Stream.
type Options struct {
	// Timeout is the overall wall-clock budget for consuming the stream,
	// DefaultTimeout if zero. The deadline is fixed when the stream opens.
	Timeout time.Duration

	// Stdout and Stderr select the output streams. Selecting neither means
	// both.
	Stdout bool
	Stderr bool

	// Tail, when non-empty and not "0", first fetches that much historical
	// output and emits it before switching to live frames.
	Tail string
}

// Stream is a lazy, non-restartable sequence of raw log lines from one
// container. Each line keeps its original trailing newline byte, so lines
// compare byte-for-byte with a later Tail fetch. A Stream that ends with a
// timeout stays ended; continuing requires a fresh Stream with a fresh
// deadline.
type Stream struct {
	reader  *boundedReader
	pending [][]byte // historical lines emitted before live frames
	buf     []byte   // partial line carried between frames
	eof     bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens a log stream from source. When opts.Tail requests history, the
// historical fetch is issued immediately before the live stream opens. Output
// produced between the two calls can still be duplicated or missed; the
// engine API offers no sequence numbers to close that window.
func Open(ctx context.Context, source Source, opts Options) (*Stream, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if !stdout && !stderr {
		stdout, stderr = true, true
	}

	var pending [][]byte
	if opts.Tail != "" && opts.Tail != "0" {
		blob, err := source.Tail(ctx, TailOptions{Stdout: stdout, Stderr: stderr, Tail: opts.Tail})
		if err != nil {
			return nil, fmt.Errorf("fetch historical logs: %w", err)
		}
		pending = splitLines(blob)
	}

	live, err := source.Live(ctx, StreamOptions{Stdout: stdout, Stderr: stderr})
	if err != nil {
		return nil, fmt.Errorf("open live log stream: %w", err)
	}

	return &Stream{
		reader:  newBoundedReader(live, timeout),
		pending: pending,
	}, nil
}

// NextLine returns the next raw log line including its trailing newline
// byte. Lines come out strictly in the order their bytes arrived. It returns
// io.EOF once the remote end closed the stream and buffered output is
// drained, and a *TimeoutError if the deadline passes first. Both end the
// stream; the underlying handle is released either way.
func (s *Stream) NextLine() ([]byte, error) {
	if len(s.pending) > 0 {
		line := s.pending[0]
		s.pending = s.pending[1:]
		return line, nil
	}

	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := s.buf[:i+1]
			s.buf = s.buf[i+1:]
			return line, nil
		}

		if s.eof {
			if len(s.buf) > 0 {
				line := s.buf
				s.buf = nil
				return line, nil
			}
			return nil, io.EOF
		}

		frame, err := s.reader.readFrame()
		if err != nil {
			if err == ErrStreamClosed {
				s.eof = true
				_ = s.Close()
				continue
			}
			_ = s.Close()
			return nil, err
		}
		s.buf = append(s.buf, frame.Payload...)
	}
}

// Close releases the underlying stream handle. It is safe to call on every
// exit path; the handle is closed exactly once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		err := s.reader.src.Close()
		// The watchdog may already have force-closed the handle; a close
		// error in that case is not worth reporting.
		if err != nil && !s.reader.fired.Load() {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// splitLines splits a byte blob into lines, preserving each line's trailing
// newline. A final unterminated line is kept as-is.
func splitLines(blob []byte) [][]byte {
	var lines [][]byte
	for len(blob) > 0 {
		i := bytes.IndexByte(blob, '\n')
		if i < 0 {
			lines = append(lines, blob)
			break
		}
		lines = append(lines, blob[:i+1])
		blob = blob[i+1:]
	}
	return lines
}
