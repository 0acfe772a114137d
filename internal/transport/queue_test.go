package transport

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockedWriter refuses to make progress until released, then writes into
// the wrapped buffer.
type blockedWriter struct {
	mu      sync.Mutex
	release chan struct{}
	buf     bytes.Buffer
}

func newBlockedWriter() *blockedWriter {
	return &blockedWriter{release: make(chan struct{})}
}

func (w *blockedWriter) Write(p []byte) (int, error) {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *blockedWriter) bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Bytes()
}

func TestPublisherWritesFrames(t *testing.T) {
	var buf bytes.Buffer
	p := NewPublisher(&safeBuffer{buf: &buf}, 4)
	require.NoError(t, p.TrySend(&RunStop{Name: "a"}))
	require.NoError(t, p.TrySend(&RunStop{Name: "b"}))
	require.NoError(t, p.Close())

	src := NewSource(&buf)
	first, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", first.(*RunStop).Name)
	second, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", second.(*RunStop).Name)
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPublisherOverflowFailsImmediately(t *testing.T) {
	w := newBlockedWriter()
	p := NewPublisher(w, 2)

	// The drain goroutine takes one frame off the queue and blocks in the
	// writer; give it a moment so the queue capacity is deterministic.
	require.NoError(t, p.TrySend(&RunStop{Name: "0"}))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, p.TrySend(&RunStop{Name: "1"}))
	require.NoError(t, p.TrySend(&RunStop{Name: "2"}))

	err := p.TrySend(&RunStop{Name: "3"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(w.release)
	require.NoError(t, p.Close())
}

func TestPublisherCloseFlushesRemainder(t *testing.T) {
	w := newBlockedWriter()
	p := NewPublisher(w, 8)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.TrySend(&RunStop{Name: "x", Timestamp: int64(i)}))
	}

	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	// Close must not return before the queue drains.
	select {
	case <-done:
		t.Fatal("Close returned before the writer was released")
	case <-time.After(20 * time.Millisecond):
	}

	close(w.release)
	require.NoError(t, <-done)

	src := NewSource(bytes.NewReader(w.bytes()))
	for i := 0; i < 5; i++ {
		msg, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.(*RunStop).Timestamp)
	}
}

func TestPublisherSendAfterClose(t *testing.T) {
	var buf bytes.Buffer
	p := NewPublisher(&safeBuffer{buf: &buf}, 2)
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.TrySend(&RunStop{Name: "late"}), ErrQueueClosed)
}

// safeBuffer serialises writes: the drain goroutine writes while tests
// read after Close.
type safeBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
