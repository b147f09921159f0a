// Package codec implements the compression stages that sit between the
// reader and writer stages of a pipeline session (component F): gzip,
// bzip2, lz4-frame, and zstd, each running as a goroutine that drains one
// chunk.Queue and fills another.
package codec

import (
	"context"
	"io"

	"github.com/odin-imager/odin/chunk"
)

// queueReader adapts a chunk.Queue's filled side to an io.Reader, so a
// standard library or third-party streaming decompressor can read from it
// directly. It surfaces the producer's EndOfStream as io.EOF and any
// producer-side Err verbatim.
type queueReader struct {
	ctx   context.Context
	q     *chunk.Queue
	cur   *chunk.Chunk
	pos   int
	atEOF bool
}

func newQueueReader(ctx context.Context, q *chunk.Queue) *queueReader {
	return &queueReader{ctx: ctx, q: q}
}

func (r *queueReader) Read(p []byte) (int, error) {
	if r.atEOF {
		return 0, io.EOF
	}
	for r.cur == nil || r.pos >= r.cur.Len {
		if r.cur != nil {
			r.q.PutEmpty(r.cur)
			r.cur = nil
		}
		c, err := r.q.TakeFilled(r.ctx)
		if err != nil {
			return 0, err
		}
		if c == nil {
			r.atEOF = true
			return 0, io.EOF
		}
		if c.Err != nil {
			err := c.Err
			r.q.PutEmpty(c)
			return 0, err
		}
		if c.EndOfStream && c.Len == 0 {
			r.q.PutEmpty(c)
			r.atEOF = true
			return 0, io.EOF
		}
		r.cur = c
		r.pos = 0
	}
	n := copy(p, r.cur.Buf[r.pos:r.cur.Len])
	r.pos += n
	if r.pos >= r.cur.Len && r.cur.EndOfStream {
		// last bytes of the stream consumed; remaining Read calls return EOF
		// without waiting on another TakeFilled.
		r.q.PutEmpty(r.cur)
		r.cur = nil
		r.atEOF = true
	}
	return n, nil
}

// queueWriter adapts a chunk.Queue's empty side to an io.Writer: it fills
// checked-out chunks to capacity, handing each off as it becomes full.
// Close hands off any partial final chunk, marks it (or a zero-length
// trailer chunk) EndOfStream, and closes the queue.
type queueWriter struct {
	ctx    context.Context
	q      *chunk.Queue
	cur    *chunk.Chunk
	offset int64
}

func newQueueWriter(ctx context.Context, q *chunk.Queue) *queueWriter {
	return &queueWriter{ctx: ctx, q: q}
}

func (w *queueWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if w.cur == nil {
			c, err := w.q.GetEmpty(w.ctx)
			if err != nil {
				return total, err
			}
			c.Offset = w.offset
			w.cur = c
		}
		n := copy(w.cur.Buf[w.cur.Len:], p)
		w.cur.Len += n
		w.offset += int64(n)
		total += n
		p = p[n:]
		if w.cur.Len == cap(w.cur.Buf) {
			if err := w.q.PutFilled(w.ctx, w.cur); err != nil {
				return total, err
			}
			w.cur = nil
		}
	}
	return total, nil
}

// Close flushes any partially-filled chunk and emits the EndOfStream
// marker, then closes the queue so the consumer's TakeFilled unblocks once
// drained.
func (w *queueWriter) Close() error {
	if w.cur != nil && w.cur.Len > 0 {
		w.cur.EndOfStream = true
		if err := w.q.PutFilled(w.ctx, w.cur); err != nil {
			return err
		}
		w.cur = nil
	} else {
		trailer, err := w.q.GetEmpty(w.ctx)
		if err != nil {
			return err
		}
		trailer.Offset = w.offset
		trailer.EndOfStream = true
		if err := w.q.PutFilled(w.ctx, trailer); err != nil {
			return err
		}
	}
	w.q.Close()
	return nil
}

// fail pushes a single error-carrying chunk downstream and closes the
// queue, used when a codec stage fails, whether or not it has already
// produced output.
func fail(ctx context.Context, q *chunk.Queue, err error) {
	c, getErr := q.GetEmpty(ctx)
	if getErr != nil {
		q.Close()
		return
	}
	c.Len = 0
	c.Err = err
	c.EndOfStream = true
	_ = q.PutFilled(ctx, c)
	q.Close()
}
