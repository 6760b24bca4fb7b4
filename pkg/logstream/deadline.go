package logstream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// minReadTimeout is substituted when the deadline has already passed at the
// start of a read attempt. Zero or negative timeouts have platform-specific
// behavior on sockets, so the attempt is given a minimal positive budget and
// the timeout surfaces through the normal path.
const minReadTimeout = time.Millisecond

// readDeadliner is implemented by sources that support per-read deadlines,
// such as net.Conn and websocket connections.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// readOutcome discriminates why a read attempt ended. It replaces the
// ambiguous "did the watchdog fire or did the stream end" flag check with an
// explicit result from the read itself.
type readOutcome int

const (
	readData readOutcome = iota
	readClosed
	readTimedOut
	readFailed
)

// boundedReader reads from a raw blocking byte source under a single
// absolute deadline. The deadline is computed once when the reader is
// created and never recomputed, so a sequence of fast partial reads cannot
// stretch the caller's overall budget.
//
// Two timeout strategies are used depending on the source. Sources that
// support read deadlines get a per-attempt deadline derived from the
// remaining budget. All other sources get a watchdog timer that force-closes
// the source to unblock a pending read; the watchdog is disarmed after every
// attempt so a stray forced close cannot fire after normal completion.
type boundedReader struct {
	src      io.ReadCloser
	deadline time.Time
	timeout  time.Duration
	fired    atomic.Bool
}

func newBoundedReader(src io.ReadCloser, timeout time.Duration) *boundedReader {
	return &boundedReader{
		src:      src,
		deadline: time.Now().Add(timeout),
		timeout:  timeout,
	}
}

// readFull reads exactly n bytes, accumulating across partial reads. It
// returns ErrStreamClosed if the remote end closes before n bytes arrive,
// and a TimeoutError if the deadline passes first.
func (r *boundedReader) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	filled := 0
	for filled < n {
		remaining := time.Until(r.deadline)
		if remaining <= 0 {
			remaining = minReadTimeout
		}

		got, outcome, err := r.read(buf[filled:], remaining)
		filled += got

		switch outcome {
		case readData:
			// Keep accumulating.
		case readClosed:
			return nil, ErrStreamClosed
		case readTimedOut:
			return nil, &TimeoutError{
				Timeout: r.timeout,
				Message: fmt.Sprintf("timeout (%v) waiting for container logs", r.timeout),
			}
		case readFailed:
			return nil, fmt.Errorf("read container logs: %w", err)
		}
	}
	return buf, nil
}

// read performs one bounded read attempt with the given budget.
func (r *boundedReader) read(p []byte, budget time.Duration) (int, readOutcome, error) {
	if rd, ok := r.src.(readDeadliner); ok {
		return r.readWithDeadline(rd, p, budget)
	}
	return r.readWithWatchdog(p, budget)
}

func (r *boundedReader) readWithDeadline(rd readDeadliner, p []byte, budget time.Duration) (int, readOutcome, error) {
	if err := rd.SetReadDeadline(time.Now().Add(budget)); err != nil {
		return 0, readFailed, err
	}

	n, err := r.src.Read(p)
	if err == nil {
		return n, readData, nil
	}
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, readClosed, nil
	}
	var nerr net.Error
	if (errors.As(err, &nerr) && nerr.Timeout()) || os.IsTimeout(err) {
		return n, readTimedOut, nil
	}
	if errors.Is(err, io.EOF) {
		// Data plus EOF: surface the data now, report closure next attempt.
		return n, readData, nil
	}
	return n, readFailed, err
}

func (r *boundedReader) readWithWatchdog(p []byte, budget time.Duration) (int, readOutcome, error) {
	watchdog := time.AfterFunc(budget, func() {
		r.fired.Store(true)
		_ = r.src.Close()
	})

	n, err := r.src.Read(p)
	watchdog.Stop()

	if err == nil {
		return n, readData, nil
	}
	if errors.Is(err, io.EOF) {
		if n > 0 {
			return n, readData, nil
		}
		// A timeout firing exactly as the stream drains to EOF is a genuine
		// race with no single correct answer; natural closure wins here.
		return 0, readClosed, nil
	}
	if r.fired.Load() {
		return n, readTimedOut, nil
	}
	return n, readFailed, err
}
