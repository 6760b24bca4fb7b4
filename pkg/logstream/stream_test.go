package logstream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, source Source, opts Options) *Stream {
	t.Helper()
	stream, err := Open(context.Background(), source, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func TestStream_EmptyClosedSource(t *testing.T) {
	source := &fakeSource{}

	stream := openStream(t, source, Options{Timeout: time.Second})
	lines, err := streamAll(stream)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestStream_LiveLinesInOrder(t *testing.T) {
	source := &fakeSource{entries: []fakeEntry{
		{10 * time.Millisecond, "hello\n"},
		{10 * time.Millisecond, "goodbye\n"},
	}}

	stream := openStream(t, source, Options{Timeout: time.Second})
	lines, err := streamAll(stream)
	require.NoError(t, err)
	require.Equal(t, []string{"hello\n", "goodbye\n"}, lines)
}

func TestStream_LineSplitAcrossFrames(t *testing.T) {
	// One line split over two frames, and one frame carrying two lines.
	source := &fakeSource{entries: []fakeEntry{
		{0, "hel"},
		{0, "lo\nworld\n"},
		{0, "tail-without-newline"},
	}}

	stream := openStream(t, source, Options{Timeout: time.Second})
	lines, err := streamAll(stream)
	require.NoError(t, err)
	require.Equal(t, []string{"hello\n", "world\n", "tail-without-newline"}, lines)
}

func TestStream_TimeoutPropagates(t *testing.T) {
	source := &fakeSource{
		entries: []fakeEntry{
			{10 * time.Millisecond, "hello\n"},
			{10 * time.Second, "goodbye\n"},
		},
		holdOpen: 10 * time.Second,
	}

	stream := openStream(t, source, Options{Timeout: 150 * time.Millisecond})

	line, err := stream.NextLine()
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(line))

	start := time.Now()
	_, err = stream.NextLine()
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestStream_TailOnlyReturnsStreamedLines(t *testing.T) {
	source := &fakeSource{
		entries: []fakeEntry{
			{10 * time.Millisecond, "hello\n"},
			{10 * time.Second, "goodbye\n"},
		},
		holdOpen: 10 * time.Second,
	}

	// Nothing streamed yet, so nothing to tail, even though lines exist at
	// the source.
	blob, err := source.Tail(context.Background(), TailOptions{Tail: TailAll})
	require.NoError(t, err)
	require.Empty(t, blob)

	stream := openStream(t, source, Options{Timeout: 100 * time.Millisecond})
	line, err := stream.NextLine()
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(line))
	_, err = stream.NextLine()
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	blob, err = source.Tail(context.Background(), TailOptions{Tail: TailAll})
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(blob))
}

func TestStream_HistoricalThenLive(t *testing.T) {
	source := &fakeSource{entries: []fakeEntry{
		{0, "hello\n"},
		{0, "goodbye\n"},
	}}

	// First pass streams everything live.
	stream := openStream(t, source, Options{Timeout: time.Second})
	lines, err := streamAll(stream)
	require.NoError(t, err)
	require.Equal(t, []string{"hello\n", "goodbye\n"}, lines)

	// Re-reading a finished source with full history is idempotent.
	for i := 0; i < 2; i++ {
		stream = openStream(t, source, Options{Timeout: time.Second, Tail: TailAll})
		lines, err = streamAll(stream)
		require.NoError(t, err)
		require.Equal(t, []string{"hello\n", "goodbye\n"}, lines)
	}
}

func TestStream_HistoricalLineCount(t *testing.T) {
	source := &fakeSource{entries: []fakeEntry{
		{0, "one\n"},
		{0, "two\n"},
		{0, "three\n"},
	}}

	stream := openStream(t, source, Options{Timeout: time.Second})
	_, err := streamAll(stream)
	require.NoError(t, err)

	stream = openStream(t, source, Options{Timeout: time.Second, Tail: "2"})
	lines, err := streamAll(stream)
	require.NoError(t, err)
	require.Equal(t, []string{"two\n", "three\n"}, lines)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	source := &fakeSource{}

	stream := openStream(t, source, Options{Timeout: time.Second})
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestStream_AbandonedEarlyReleasesSource(t *testing.T) {
	source := &fakeSource{
		entries:  []fakeEntry{{0, "hello\n"}, {time.Hour, "never\n"}},
		holdOpen: time.Hour,
	}

	stream := openStream(t, source, Options{Timeout: time.Hour})
	_, err := stream.NextLine()
	require.NoError(t, err)

	// Abandon mid-stream; the feeder must observe the closed pipe rather
	// than block forever.
	require.NoError(t, stream.Close())
}

func TestSplitLines(t *testing.T) {
	require.Nil(t, splitLines(nil))
	require.Equal(t, [][]byte{[]byte("a\n")}, splitLines([]byte("a\n")))
	require.Equal(t,
		[][]byte{[]byte("a\n"), []byte("b\n"), []byte("c")},
		splitLines([]byte("a\nb\nc")))
}

func TestStream_EOFIsSticky(t *testing.T) {
	source := &fakeSource{entries: []fakeEntry{{0, "hello\n"}}}

	stream := openStream(t, source, Options{Timeout: time.Second})
	_, err := streamAll(stream)
	require.NoError(t, err)

	_, err = stream.NextLine()
	require.ErrorIs(t, err, io.EOF)
}
