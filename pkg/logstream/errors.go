package logstream

import (
	"errors"
	"time"
)

// ErrStreamClosed signals that the remote end of a byte source closed with no
// more data. It is flow control, not a failure: Stream converts it into
// ordinary end-of-stream (io.EOF) and it never escapes the package boundary
// as an error. It is exported so that Source implementations and frame-level
// consumers can produce and recognise it.
var ErrStreamClosed = errors.New("stream closed")

// TimeoutError reports that the wall-clock deadline elapsed before the
// requested data arrived: either N bytes at the frame layer, or a full
// matcher match at the wait layer.
type TimeoutError struct {
	// Timeout is the configured overall budget for the operation.
	Timeout time.Duration
	// Message is a human-readable description. At the wait layer it includes
	// the matcher's partial state and a tail of recent container output.
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// NoMatchError reports that the log stream ended normally, meaning the
// container closed its output, before the matcher reported a full match. The
// expectation was wrong, not slow: unlike a TimeoutError, raising the timeout
// will not help.
type NoMatchError struct {
	// Matcher is the description of the matcher at the time the stream ended.
	Matcher string
	// Message is a human-readable description including a tail of recent
	// container output.
	Message string
}

func (e *NoMatchError) Error() string { return e.Message }
