package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"go.uber.org/multierr"

	"wharf/pkg/logmatch"
)

// diagnosticTailLines bounds the window of recent output attached to wait
// failures.
const diagnosticTailLines = "100"

// WaitOptions configures WaitForLogsMatching.
type WaitOptions struct {
	// Timeout is the overall wall-clock budget, DefaultTimeout if zero.
	Timeout time.Duration

	// Stdout and Stderr select the output streams to match against.
	// Selecting neither means both.
	Stdout bool
	Stderr bool

	// Tail includes that much historical output before live output, so
	// expected lines logged before the wait started still match.
	Tail string
}

// WaitForLogsMatching streams log lines from source until matcher reports a
// full match, the deadline passes, or the stream ends. Each line is stripped
// of trailing whitespace before matching. On success the matching line is
// returned and no further output is consumed.
//
// A *TimeoutError means time ran out: its message names the configured
// timeout, the matcher's partial state and a tail of recent output. A
// *NoMatchError means the container closed its output without the expected
// lines ever appearing. The diagnostic tail fetch is best-effort; its own
// failure never replaces the original error.
func WaitForLogsMatching(ctx context.Context, source Source, matcher logmatch.Matcher, opts WaitOptions) (line string, err error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	stream, err := Open(ctx, source, Options{
		Timeout: timeout,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		Tail:    opts.Tail,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		err = multierr.Append(err, stream.Close())
	}()

	for {
		raw, nextErr := stream.NextLine()
		if nextErr != nil {
			if errors.Is(nextErr, io.EOF) {
				return "", &NoMatchError{
					Matcher: matcher.String(),
					Message: fmt.Sprintf("logs matching %v not found.\nLast few log lines:\n%s",
						matcher, lastFewLogLines(ctx, source)),
				}
			}
			var timeoutErr *TimeoutError
			if errors.As(nextErr, &timeoutErr) {
				return "", &TimeoutError{
					Timeout: timeout,
					Message: fmt.Sprintf("timeout (%v) waiting for logs matching %v.\nLast few log lines:\n%s",
						timeout, matcher, lastFewLogLines(ctx, source)),
				}
			}
			return "", nextErr
		}

		line := strings.TrimRightFunc(string(raw), unicode.IsSpace)
		ok, matchErr := matcher.Match(line)
		if matchErr != nil {
			return "", fmt.Errorf("match log line: %w", matchErr)
		}
		if ok {
			return line, nil
		}
	}
}

// lastFewLogLines fetches a bounded tail of recent output for failure
// diagnostics. It swallows its own failure so it can never mask the error it
// decorates.
func lastFewLogLines(ctx context.Context, source Source) string {
	blob, err := source.Tail(ctx, TailOptions{Stdout: true, Stderr: true, Tail: diagnosticTailLines})
	if err != nil {
		return fmt.Sprintf("<failed to fetch container logs: %v>", err)
	}
	return string(blob)
}
