package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odin-imager/odin/chunk"
	"github.com/odin-imager/odin/codec"
	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
	"golang.org/x/sync/errgroup"
)

// Operation selects which of backup, restore, or verify a Coordinator runs.
type Operation int

const (
	OperationBackup Operation = iota
	OperationRestore
	OperationVerify
)

// poolDepth and defaultChunkBytes are the default in-flight-chunk pool depth
// (8) and chunk size (1 MiB); callers may override either via Config.
const (
	poolDepth        = 8
	defaultChunkBytes = 1 << 20
)

// Config configures one Coordinator run.
type Config struct {
	Operation   Operation
	Source      Source // backup: the device; restore/verify: the container
	Sink        Sink   // backup: the container; restore: the device; verify: discarded
	VolumeSize  int64
	ClusterSize int64
	// Compression selects the codec stage; bzip2 encoding is supported but
	// discouraged.
	Compression common.CompressionFormat
	// CompressionLevel follows the conventional 1-9 gzip / 1-22 zstd scales;
	// 0 means codec.DefaultLevel. Ignored by formats without a level knob.
	CompressionLevel int
	UsedBlocksOnly   bool
	Runs             []container.Run // nil unless UsedBlocksOnly
	ChunkBytes       int             // 0 means defaultChunkBytes
	PoolSize         int             // 0 means poolDepth
	DataOffset       int64           // device-side byte offset the sparse run walks start counting from (0 for a whole-volume image)

	// ExpectedCRC32 is the container header's stored checksum; only
	// consulted for OperationVerify, which compares the writer's freshly
	// computed CRC-32 (over the decoded volume bytes) against it.
	ExpectedCRC32 uint32

	// ProgressFunc, if set, is invoked periodically and non-blockingly with
	// the reader's cumulative bytes-processed counter.
	ProgressFunc func(bytesProcessed int64)
}

// Result is what a completed or failed Coordinator run reports.
type Result struct {
	State          common.SessionState
	ReaderCRC32    uint32
	WriterCRC32    uint32
	BytesProcessed int64
	// BytesPerSecond is the average throughput sampled across the run's
	// progress ticks (0 if the run never reached a tick, e.g. a tiny volume).
	BytesPerSecond float64
}

// Coordinator is pipeline component J: it wires a reader, an optional codec
// stage, and a writer together over one or two chunk queues, runs them
// concurrently, and tracks the session state machine.
type Coordinator struct {
	cfg   Config
	state atomic.Value // common.SessionState

	mu     sync.Mutex
	reader *Reader
	rate   common.CountPerSecond
}

func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{cfg: cfg, rate: common.NewCountPerSecond()}
	c.state.Store(common.ESessionState.Idle())
	return c
}

func (c *Coordinator) State() common.SessionState {
	return c.state.Load().(common.SessionState)
}

func (c *Coordinator) setState(s common.SessionState) {
	c.state.Store(s)
}

// Run executes the configured operation to completion, cancellation, or
// failure. It always tears down its queues and goroutines before
// returning, regardless of outcome.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	c.setState(common.ESessionState.Running())
	c.rate.Reset()

	chunkBytes := c.cfg.ChunkBytes
	if chunkBytes == 0 {
		chunkBytes = defaultChunkBytes
	}
	depth := c.cfg.PoolSize
	if depth == 0 {
		depth = poolDepth
	}

	q1 := chunk.NewQueue(depth, chunkBytes, 0)
	var q2 *chunk.Queue
	compressing := c.cfg.Compression != common.ECompressionFormat.None()
	if compressing {
		q2 = chunk.NewQueue(depth, chunkBytes, 0)
	}

	// Only a backup reads its source (the device) sparsely; it alone
	// decides which clusters ever reach the pipeline. Restore and verify
	// read the container's stream straight through — it already contains
	// nothing but "used"-run bytes, concatenated — and it's the writer on
	// that side that turns the flat stream back into correctly-placed (or
	// discarded) writes using the same run list.
	var readerRuns []container.Run
	readerSize := c.cfg.VolumeSize
	if c.cfg.UsedBlocksOnly {
		if c.cfg.Operation == OperationBackup {
			readerRuns = c.cfg.Runs
		} else {
			readerSize = int64(container.UsedBytes(c.cfg.Runs, uint64(c.cfg.ClusterSize)))
		}
	}

	reader := NewReader(c.cfg.Source, readerSize, readerRuns, c.cfg.ClusterSize, c.cfg.DataOffset)
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	writerMode := ModeWrite
	var writerRuns []container.Run
	switch {
	case c.cfg.Operation == OperationVerify:
		writerMode = ModeVerify
	case c.cfg.Operation == OperationRestore && c.cfg.UsedBlocksOnly:
		writerMode = ModeSparseWrite
		writerRuns = c.cfg.Runs
	}
	writer := NewWriter(c.cfg.Sink, writerMode, writerRuns, c.cfg.ClusterSize, c.cfg.DataOffset)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// The reader always feeds Q1; when compression is active, Q2 carries
		// the codec's output to the writer instead.
		return reader.Run(gCtx, q1)
	})

	if compressing {
		g.Go(func() error {
			if c.cfg.Operation == OperationBackup {
				level := c.cfg.CompressionLevel
				if level == 0 {
					level = codec.DefaultLevel
				}
				codec.RunCompress(gCtx, c.cfg.Compression, level, q1, q2)
			} else {
				codec.RunDecompress(gCtx, c.cfg.Compression, q1, q2)
			}
			return nil
		})
		g.Go(func() error {
			return writer.Run(gCtx, q2)
		})
	} else {
		g.Go(func() error {
			return writer.Run(gCtx, q1)
		})
	}

	stopProgress := c.startProgressSampler(gCtx, reader)
	defer stopProgress()

	runErr := g.Wait()

	result := Result{
		ReaderCRC32:    reader.CRC32(),
		WriterCRC32:    writer.CRC32(),
		BytesProcessed: reader.BytesProcessed(),
		BytesPerSecond: c.rate.LatestRate(),
	}

	if runErr != nil {
		if runErr == context.Canceled || runErr == context.DeadlineExceeded {
			c.setState(common.ESessionState.Cancelled())
			result.State = common.ESessionState.Cancelled()
			return result, common.NewPipelineError(common.EErrorKind.Cancelled(), runErr, "pipeline cancelled")
		}
		c.setState(common.ESessionState.Failed())
		result.State = common.ESessionState.Failed()
		return result, runErr
	}

	c.setState(common.ESessionState.Finalizing())
	if c.cfg.Operation == OperationVerify {
		if result.WriterCRC32 != c.cfg.ExpectedCRC32 {
			c.setState(common.ESessionState.Failed())
			result.State = common.ESessionState.Failed()
			return result, common.NewPipelineError(common.EErrorKind.VerifyMismatch(), nil, "computed CRC32 %08x != stored CRC32 %08x", result.WriterCRC32, c.cfg.ExpectedCRC32)
		}
	}
	c.setState(common.ESessionState.Done())
	result.State = common.ESessionState.Done()
	return result, nil
}

// startProgressSampler polls the reader's bytes-processed counter at a fixed
// interval, feeding the delta since the last tick into the Coordinator's
// throughput counter and, if set, handing the cumulative total to
// Config.ProgressFunc without blocking the pipeline on a slow UI callback.
func (c *Coordinator) startProgressSampler(ctx context.Context, reader *Reader) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-ticker.C:
				total := reader.BytesProcessed()
				if delta := total - last; delta > 0 {
					c.rate.Add(uint64(delta))
					last = total
				}
				if c.cfg.ProgressFunc != nil {
					c.cfg.ProgressFunc(total)
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// Cancel marks the run as Cancelling and calls cancel, which must be the
// cancel func of the context passed to Run; the stages stop as soon as they
// notice. The CLI does not use it: its signal handling cancels the context
// directly via signal.NotifyContext.
func (c *Coordinator) Cancel(cancel context.CancelFunc) {
	c.setState(common.ESessionState.Cancelling())
	cancel()
}
