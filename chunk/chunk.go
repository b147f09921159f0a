// Package chunk implements the bounded producer/consumer buffer that couples
// odin's reader, codec, and writer pipeline stages (component A).
package chunk

import (
	"context"
	"sync"

	"github.com/odin-imager/odin/common"
)

// Chunk is a fixed-capacity, reusable buffer carrying one segment of a
// volume's data (or, for the allocation map, its run-length stream) between
// pipeline stages. Len is the amount of Buf actually populated; cap(Buf) is
// always the queue's configured chunk size, so a Chunk can be recycled for a
// smaller final segment without reallocating.
type Chunk struct {
	Buf []byte // Buf[:Len] is valid data; cap(Buf) == the owning Queue's chunk size
	Len int

	// Offset is this chunk's byte offset within the volume (or, for a
	// compressed stream, within the uncompressed logical stream).
	Offset int64

	// EndOfStream marks the final chunk of a transfer; stages must flush and
	// tear down after observing it rather than waiting for a closed channel,
	// since the queue itself stays open for chunk reuse.
	EndOfStream bool

	// Err carries a producer-side failure (e.g. a device read error)
	// downstream so the consumer can stop and propagate it, instead of the
	// producer reaching across goroutines to call Cancel directly.
	Err error
}

// Queue is a bounded pool of chunk buffers plus two FIFOs: Filled carries
// chunks a producer has written and a consumer has yet to drain (Take);
// Empty carries buffers a consumer has finished with and returned for reuse.
// This is the channel-based analog of the paired producer/consumer queues in
// the design notes: capacity bounds how far the producer can run ahead of the
// consumer, giving the pipeline natural backpressure without a semaphore.
type Queue struct {
	chunkSize int
	filled    chan *Chunk
	empty     chan *Chunk

	limiter common.CacheLimiter

	closeOnce sync.Once
}

// NewQueue creates a queue of the given depth, each chunk pre-allocated to
// chunkSize bytes. memoryLimitBytes bounds the RAM the queue's chunks may
// occupy; pass 0 to disable the limiter (e.g. for queues backed entirely by
// pre-allocated, fixed-depth buffers where double-accounting would just be
// overhead).
func NewQueue(depth int, chunkSize int, memoryLimitBytes int64) *Queue {
	q := &Queue{
		chunkSize: chunkSize,
		filled:    make(chan *Chunk, depth),
		empty:     make(chan *Chunk, depth),
	}
	if memoryLimitBytes > 0 {
		q.limiter = common.NewCacheLimiter(memoryLimitBytes)
	}
	for i := 0; i < depth; i++ {
		q.empty <- &Chunk{Buf: make([]byte, chunkSize)}
	}
	return q
}

// ChunkSize returns the fixed capacity every chunk in this queue was allocated with.
func (q *Queue) ChunkSize() int { return q.chunkSize }

// GetEmpty blocks until a reusable buffer is available, or ctx is cancelled.
// The producer calls this, fills Buf[:n], sets Len and Offset, and hands the
// chunk to PutFilled.
func (q *Queue) GetEmpty(ctx context.Context) (*Chunk, error) {
	select {
	case c := <-q.empty:
		c.Len = 0
		c.Offset = 0
		c.EndOfStream = false
		c.Err = nil
		if q.limiter != nil {
			if err := q.limiter.WaitUntilAdd(ctx, int64(cap(c.Buf)), func() bool { return true }); err != nil {
				q.empty <- c
				return nil, err
			}
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PutFilled hands a produced chunk to the consumer side.
func (q *Queue) PutFilled(ctx context.Context, c *Chunk) error {
	select {
	case q.filled <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeFilled blocks until the next produced chunk is available, or ctx is
// cancelled. It returns (nil, nil) once Close has been called and every
// already-queued chunk has been drained.
func (q *Queue) TakeFilled(ctx context.Context) (*Chunk, error) {
	select {
	case c, ok := <-q.filled:
		if !ok {
			return nil, nil
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PutEmpty returns a drained chunk's buffer to the pool for reuse.
func (q *Queue) PutEmpty(c *Chunk) {
	if q.limiter != nil {
		q.limiter.Remove(int64(cap(c.Buf)))
	}
	select {
	case q.empty <- c:
	default:
		// queue was over-provisioned (shouldn't happen with matched Get/Put
		// pairs); drop rather than block a consumer's hot path.
	}
}

// Close unblocks any goroutine parked in TakeFilled once the producer is
// done; it's safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.filled)
	})
}
