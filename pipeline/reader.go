// Package pipeline assembles odin's reader, writer, and codec stages into a
// running backup, restore, or verify session (components G, H, J).
package pipeline

import (
	"context"
	"hash/crc32"
	"sync/atomic"

	"github.com/odin-imager/odin/chunk"
	"github.com/odin-imager/odin/container"
)

// Source is whatever a reader stage pulls bytes from: a block device
// (backup) or a container file stream (restore and verify, both of which
// read it through SequentialSource).
type Source interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Reader is pipeline component G: it walks a source stream, optionally
// skipping over allocation-map "free" runs, emitting chunks downstream and
// accumulating a running CRC-32 over everything it emits.
type Reader struct {
	src         Source
	size        int64
	runs        []container.Run // nil means "emit everything"
	clusterSize int64
	startOffset int64

	bytesProcessed atomic.Int64
	crc            uint32
}

// NewReader builds a reader over src. If runs is non-nil, only "used" runs
// are emitted: run boundaries are expressed in clusters of clusterSize
// bytes, counted from startOffset. If runs is nil, the whole of [0, size)
// is emitted unconditionally.
func NewReader(src Source, size int64, runs []container.Run, clusterSize, startOffset int64) *Reader {
	return &Reader{src: src, size: size, runs: runs, clusterSize: clusterSize, startOffset: startOffset}
}

// BytesProcessed is safe to sample concurrently from a progress callback.
func (r *Reader) BytesProcessed() int64 { return r.bytesProcessed.Load() }

// CRC32 returns the running checksum; valid only after Run has returned.
func (r *Reader) CRC32() uint32 { return r.crc }

// Run reads from src and emits chunks to out until the source is exhausted,
// ctx is cancelled, or a read fails. It always closes out before returning,
// and always returns a value suitable for the coordinator to classify (nil
// on a clean finish, ctx.Err() on cancellation, a *common.PipelineError
// otherwise).
func (r *Reader) Run(ctx context.Context, out *chunk.Queue) error {
	defer out.Close()

	crcState := crc32.NewIEEE()

	if r.runs == nil {
		return r.runPlain(ctx, out, crcState)
	}
	return r.runSparse(ctx, out, crcState)
}

func (r *Reader) runPlain(ctx context.Context, out *chunk.Queue, crcState hashWriter) error {
	offset := int64(0)
	for offset < r.size {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := out.GetEmpty(ctx)
		if err != nil {
			return err
		}
		n := int64(cap(c.Buf))
		if offset+n > r.size {
			n = r.size - offset
		}
		nRead, err := r.src.ReadAt(c.Buf[:n], offset)
		if err != nil {
			out.PutEmpty(c)
			return err
		}
		crcState.Write(c.Buf[:nRead])
		c.Len = nRead
		c.Offset = offset
		offset += int64(nRead)
		c.EndOfStream = offset >= r.size
		if err := out.PutFilled(ctx, c); err != nil {
			return err
		}
		r.bytesProcessed.Add(int64(nRead))
	}
	r.crc = crcState.Sum32()
	return nil
}

func (r *Reader) runSparse(ctx context.Context, out *chunk.Queue, crcState hashWriter) error {
	offset := r.startOffset
	var last *chunk.Chunk
	flush := func() error {
		if last == nil {
			return nil
		}
		if err := out.PutFilled(ctx, last); err != nil {
			return err
		}
		r.bytesProcessed.Add(int64(last.Len))
		last = nil
		return nil
	}

	for runIdx, run := range r.runs {
		isLastRun := runIdx == len(r.runs)-1
		runBytes := int64(run.Clusters) * r.clusterSize
		if !run.Used {
			offset += runBytes
			continue
		}
		remaining := runBytes
		for remaining > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if last == nil {
				c, err := out.GetEmpty(ctx)
				if err != nil {
					return err
				}
				c.Offset = offset
				c.Len = 0
				last = c
			}
			space := int64(cap(last.Buf) - last.Len)
			n := space
			if n > remaining {
				n = remaining
			}
			end := last.Len + int(n)
			nRead, err := r.src.ReadAt(last.Buf[last.Len:end], offset)
			if err != nil {
				out.PutEmpty(last)
				return err
			}
			crcState.Write(last.Buf[last.Len : last.Len+nRead])
			last.Len += nRead
			offset += int64(nRead)
			remaining -= int64(nRead)

			if last.Len == cap(last.Buf) {
				full := last
				last = nil
				full.EndOfStream = isLastRun && remaining == 0
				if err := out.PutFilled(ctx, full); err != nil {
					return err
				}
				r.bytesProcessed.Add(int64(full.Len))
			}
		}
	}
	if last != nil {
		last.EndOfStream = true
		if err := flush(); err != nil {
			return err
		}
	}
	r.crc = crcState.Sum32()
	return nil
}

// hashWriter is the subset of hash.Hash32 the reader needs; factored out so
// tests can substitute a no-op.
type hashWriter interface {
	Write(p []byte) (int, error)
	Sum32() uint32
}
