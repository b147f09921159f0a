package pipeline

import (
	"context"
	"hash/crc32"

	"github.com/odin-imager/odin/chunk"
	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
)

// errStreamEnded means the incoming chunk stream hit EndOfStream before the
// sparse writer had consumed as many bytes as the allocation map's "used"
// runs call for — a truncated or corrupt transfer.
var errStreamEnded = common.NewPipelineError(common.EErrorKind.AllocationMapCorrupt(), nil, "input stream ended before all used-run bytes were consumed")

// Sink is whatever a writer stage delivers bytes to: a block device
// (restore) or a container file stream (backup).
type Sink interface {
	WriteAt(p []byte, off int64) (int, error)
}

// Mode selects what the writer does with each incoming chunk.
type Mode int

const (
	// ModeWrite writes every byte to the sink at its chunk offset (backup,
	// and restore without a sparse allocation map).
	ModeWrite Mode = iota
	// ModeSparseWrite writes only the bytes belonging to "used" runs;
	// "free" runs advance the sink offset without touching the sink
	// (restore with an allocation map, leaving prior sink contents in
	// place for free runs).
	ModeSparseWrite
	// ModeVerify discards every byte after folding it into the running
	// CRC-32, never touching the sink.
	ModeVerify
)

// Writer is pipeline component H.
//
// In ModeSparseWrite the incoming stream carries only "used"-run bytes —
// chunk boundaries from an upstream codec stage don't align with run
// boundaries, so the writer can't trust a chunk's Offset field (which, once
// compression has repacked the stream, reflects position in the flat
// decompressed byte stream rather than a real sink offset). Instead it
// walks runs itself in lockstep with the incoming bytes, the same way the
// reader stage walks them on the way in.
type Writer struct {
	sink        Sink
	mode        Mode
	runs        []container.Run
	clusterSize int64
	startOffset int64

	crc uint32
}

func NewWriter(sink Sink, mode Mode, runs []container.Run, clusterSize, startOffset int64) *Writer {
	return &Writer{sink: sink, mode: mode, runs: runs, clusterSize: clusterSize, startOffset: startOffset}
}

func (w *Writer) CRC32() uint32 { return w.crc }

// Run drains in until EndOfStream, writing (or verifying) each chunk
// according to Mode, and returns the first error encountered.
func (w *Writer) Run(ctx context.Context, in *chunk.Queue) error {
	if w.mode == ModeSparseWrite {
		return w.runSparse(ctx, in)
	}
	return w.runPlain(ctx, in)
}

func (w *Writer) runPlain(ctx context.Context, in *chunk.Queue) error {
	crcState := crc32.NewIEEE()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := in.TakeFilled(ctx)
		if err != nil {
			return err
		}
		if c == nil {
			w.crc = crcState.Sum32()
			return nil
		}
		if c.Err != nil {
			err := c.Err
			in.PutEmpty(c)
			return err
		}

		data := c.Buf[:c.Len]
		crcState.Write(data)
		if w.mode != ModeVerify {
			if _, err := w.sink.WriteAt(data, c.Offset); err != nil {
				in.PutEmpty(c)
				return err
			}
		}

		eos := c.EndOfStream
		in.PutEmpty(c)
		if eos {
			w.crc = crcState.Sum32()
			return nil
		}
	}
}

// runSparse consumes the flat incoming byte stream run by run: for a "used"
// run it takes run.Clusters*clusterSize bytes from the stream and writes
// them at the current sink offset; for a "free" run it just advances the
// sink offset with no read and no write.
func (w *Writer) runSparse(ctx context.Context, in *chunk.Queue) error {
	crcState := crc32.NewIEEE()
	qr := &stagingReader{ctx: ctx, q: in}

	offset := w.startOffset
	for _, run := range w.runs {
		runBytes := run.Clusters * uint64(w.clusterSize)
		if !run.Used {
			offset += int64(runBytes)
			continue
		}

		remaining := runBytes
		for remaining > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			buf := make([]byte, int(minU64(remaining, uint64(in.ChunkSize()))))
			n, err := qr.Read(buf)
			if n > 0 {
				crcState.Write(buf[:n])
				if w.mode != ModeVerify {
					if _, werr := w.sink.WriteAt(buf[:n], offset); werr != nil {
						return werr
					}
				}
				offset += int64(n)
				remaining -= uint64(n)
			}
			if err != nil {
				w.crc = crcState.Sum32()
				return err
			}
		}
	}
	w.crc = crcState.Sum32()
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// stagingReader adapts a chunk.Queue's filled side to io.Reader, mirroring
// codec's internal queueReader (kept separate since the two packages don't
// share unexported helpers).
type stagingReader struct {
	ctx context.Context
	q   *chunk.Queue
	cur *chunk.Chunk
	pos int
}

func (r *stagingReader) Read(p []byte) (int, error) {
	for r.cur == nil || r.pos >= r.cur.Len {
		if r.cur != nil {
			eos := r.cur.EndOfStream
			r.q.PutEmpty(r.cur)
			r.cur = nil
			if eos {
				return 0, errStreamEnded
			}
		}
		c, err := r.q.TakeFilled(r.ctx)
		if err != nil {
			return 0, err
		}
		if c == nil {
			return 0, errStreamEnded
		}
		if c.Err != nil {
			err := c.Err
			r.q.PutEmpty(c)
			return 0, err
		}
		if c.Len == 0 && c.EndOfStream {
			r.q.PutEmpty(c)
			return 0, errStreamEnded
		}
		r.cur = c
		r.pos = 0
	}
	n := copy(p, r.cur.Buf[r.pos:r.cur.Len])
	r.pos += n
	return n, nil
}
