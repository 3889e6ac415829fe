package moderation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("scan queue full")

// Flag is a request to materialize a review-queue item for accepted but
// suspicious content. Payload holds the serialized models.QueueItem; it
// may be backed by a pooled buffer, so consumers must call Item.Done()
// when finished.
type Flag struct {
	ItemID  string
	Payload []byte
	// EnqSeq is a monotonic enqueue sequence assigned on acceptance into
	// the queue, used for deterministic ordering.
	EnqSeq uint64
}

// Item wraps a Flag and owns a pooled ByteBuffer if one was used.
// Consumers MUST call Done() exactly once after processing.
type Item struct {
	Flag *Flag

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases pooled resources back to their pools.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if int64(cap(it.buf.B)) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		if it.Flag != nil {
			it.Flag.Payload = nil
			flagPool.Put(it.Flag)
			it.Flag = nil
		}
		itemPool.Put(it)
	})
}

var flagPool = sync.Pool{New: func() any { return &Flag{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer returned to the pool.
// Larger buffers are dropped so resident memory stays bounded.
var maxPooledBuffer int64 = 256 * 1024 // 256 KiB

// SetMaxPooledBuffer overrides the pooled-buffer cap (from config).
func SetMaxPooledBuffer(n int64) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// ScanQueue is a bounded in-memory queue between the submit path and the
// workers that persist review-queue items. Safe for concurrent producers.
type ScanQueue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
	enqSeq   uint64
}

// NewScanQueue creates a bounded queue. Capacity must be > 0.
func NewScanQueue(capacity int) *ScanQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ScanQueue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Out returns the consumer channel; do not close it from callers.
func (q *ScanQueue) Out() <-chan *Item { return q.ch }

// TryEnqueue copies payload into a pooled buffer and enqueues it without
// blocking. Returns ErrQueueFull when at capacity; the caller decides
// whether to drop or surface the overflow.
func (q *ScanQueue) TryEnqueue(itemID string, payload []byte) error {
	f := flagPool.Get().(*Flag)
	f.ItemID = itemID
	f.EnqSeq = atomic.AddUint64(&q.enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], payload...)
		f.Payload = bb.B[:len(payload)]
	}
	it := itemPool.Get().(*Item)
	*it = Item{Flag: f, buf: bb}

	select {
	case q.ch <- it:
		return nil
	default:
		if bb != nil {
			bytebufferpool.Put(bb)
		}
		f.Payload = nil
		flagPool.Put(f)
		itemPool.Put(it)
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// RunWorker invokes handler for each dequeued item until ctx is done or
// the queue is closed. Item.Done() is guaranteed even when the handler
// errors.
func (q *ScanQueue) RunWorker(ctx context.Context, handler func(*Flag) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *Item) {
				defer it.Done()
				_ = handler(it.Flag)
			}(it)
		case <-ctx.Done():
			return
		}
	}
}

// CloseAndDrain closes the queue and releases any undelivered items.
func (q *ScanQueue) CloseAndDrain() {
	close(q.ch)
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the current number of queued items.
func (q *ScanQueue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *ScanQueue) Cap() int { return q.capacity }

// Dropped returns how many flags were lost to a full queue.
func (q *ScanQueue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
