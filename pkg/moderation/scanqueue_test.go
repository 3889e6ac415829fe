package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScanQueueDeliversInOrder(t *testing.T) {
	q := NewScanQueue(8)
	require.NoError(t, q.TryEnqueue("a", []byte("one")))
	require.NoError(t, q.TryEnqueue("b", []byte("two")))
	require.Equal(t, 2, q.Len())

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.RunWorker(ctx, func(f *Flag) error {
			mu.Lock()
			got = append(got, f.ItemID+":"+string(f.Payload))
			mu.Unlock()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, []string{"a:one", "b:two"}, got)
	require.Equal(t, uint64(0), q.Dropped())
}

func TestScanQueueOverflow(t *testing.T) {
	q := NewScanQueue(1)
	require.NoError(t, q.TryEnqueue("a", []byte("x")))
	err := q.TryEnqueue("b", []byte("y"))
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, 1, q.Len())
}

func TestScanQueueEnqueueSequenceMonotonic(t *testing.T) {
	q := NewScanQueue(16)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.TryEnqueue("x", []byte("p")))
	}
	var last uint64
	for i := 0; i < 5; i++ {
		it := <-q.Out()
		require.Greater(t, it.Flag.EnqSeq, last)
		last = it.Flag.EnqSeq
		it.Done()
	}
}

func TestScanQueuePayloadCopied(t *testing.T) {
	q := NewScanQueue(4)
	src := []byte("original")
	require.NoError(t, q.TryEnqueue("a", src))
	src[0] = 'X'

	it := <-q.Out()
	require.Equal(t, "original", string(it.Flag.Payload))
	it.Done()
}

func TestScanQueueDoneIsIdempotent(t *testing.T) {
	q := NewScanQueue(4)
	require.NoError(t, q.TryEnqueue("a", []byte("p")))
	it := <-q.Out()
	it.Done()
	it.Done()
}

func TestScanQueueCloseAndDrain(t *testing.T) {
	q := NewScanQueue(4)
	require.NoError(t, q.TryEnqueue("a", []byte("p")))
	require.NoError(t, q.TryEnqueue("b", []byte("q")))
	q.CloseAndDrain()
	require.Equal(t, 0, q.Len())
}

func TestRunWorkerStopsOnClose(t *testing.T) {
	q := NewScanQueue(4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.RunWorker(context.Background(), func(*Flag) error { return nil })
	}()
	q.CloseAndDrain()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}
