package pipeline

import (
	"context"
	"hash/crc32"
	"math/rand"
	"testing"
	"time"

	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
	"github.com/stretchr/testify/assert"
)

func TestCoordinatorBackupNoCompression(t *testing.T) {
	a := assert.New(t)

	r := rand.New(rand.NewSource(42))
	volume := make([]byte, 64*1024)
	r.Read(volume)

	src := newMemBackend(len(volume))
	copy(src.data, volume)
	sink := &sequentialMemBackend{}

	c := NewCoordinator(Config{
		Operation:   OperationBackup,
		Source:      src,
		Sink:        SequentialSink(sink),
		VolumeSize:  int64(len(volume)),
		ClusterSize: 4096,
		Compression: common.ECompressionFormat.None(),
		ChunkBytes:  4096,
	})

	result, err := c.Run(context.Background())
	a.NoError(err)
	a.Equal(common.ESessionState.Done(), result.State)
	a.Equal(volume, sink.buf)
}

func TestCoordinatorBackupWithCompression(t *testing.T) {
	a := assert.New(t)

	r := rand.New(rand.NewSource(7))
	volume := make([]byte, 128*1024)
	r.Read(volume)

	src := newMemBackend(len(volume))
	copy(src.data, volume)
	sink := &sequentialMemBackend{}

	c := NewCoordinator(Config{
		Operation:   OperationBackup,
		Source:      src,
		Sink:        SequentialSink(sink),
		VolumeSize:  int64(len(volume)),
		ClusterSize: 4096,
		Compression: common.ECompressionFormat.ZStd(),
		ChunkBytes:  4096,
	})

	result, err := c.Run(context.Background())
	a.NoError(err)
	a.Equal(common.ESessionState.Done(), result.State)
	a.NotEqual(volume, sink.buf) // compressed output differs from raw volume
}

func TestCoordinatorRestoreSparseUsedBlocksOnly(t *testing.T) {
	a := assert.New(t)

	clusterSize := int64(4096)
	numClusters := uint64(8)
	volumeSize := int64(numClusters) * clusterSize

	runs := []container.Run{
		{Used: true, Clusters: 3},
		{Used: false, Clusters: 2},
		{Used: true, Clusters: 3},
	}

	usedBytes := make([]byte, 0, 6*clusterSize)
	r := rand.New(rand.NewSource(99))
	fullPayload := make([]byte, volumeSize)
	r.Read(fullPayload)
	// only the used-run bytes are what flow through the pipeline stream
	usedBytes = append(usedBytes, fullPayload[0:3*clusterSize]...)
	usedBytes = append(usedBytes, fullPayload[5*clusterSize:8*clusterSize]...)

	src := &sequentialMemBackend{buf: usedBytes}
	sink := newMemBackend(int(volumeSize))

	c := NewCoordinator(Config{
		Operation:      OperationRestore,
		Source:         SequentialSource(src),
		Sink:           sink,
		VolumeSize:     volumeSize,
		ClusterSize:    clusterSize,
		Compression:    common.ECompressionFormat.None(),
		UsedBlocksOnly: true,
		Runs:           runs,
		ChunkBytes:     1024,
	})

	result, err := c.Run(context.Background())
	a.NoError(err)
	a.Equal(common.ESessionState.Done(), result.State)

	a.Equal(fullPayload[0:3*clusterSize], sink.data[0:3*clusterSize])
	a.Equal(fullPayload[5*clusterSize:8*clusterSize], sink.data[5*clusterSize:8*clusterSize])
	// free run left untouched (still zero, since sink started zeroed)
	for i := 3 * clusterSize; i < 5*clusterSize; i++ {
		a.Equal(byte(0), sink.data[i])
	}
}

func TestCoordinatorVerifyDetectsMismatch(t *testing.T) {
	a := assert.New(t)

	volume := make([]byte, 4096)
	src := newMemBackend(len(volume))
	sink := newMemBackend(len(volume))

	r := rand.New(rand.NewSource(3))
	r.Read(src.data)

	c := NewCoordinator(Config{
		Operation:     OperationVerify,
		Source:        src,
		Sink:          sink,
		VolumeSize:    int64(len(volume)),
		ClusterSize:   4096,
		Compression:   common.ECompressionFormat.None(),
		ChunkBytes:    4096,
		ExpectedCRC32: 0xBADC0DE,
	})

	_, err := c.Run(context.Background())
	a.Error(err)
	a.Equal(common.EErrorKind.VerifyMismatch(), common.KindOf(err))
}

func TestCoordinatorBackupCancellation(t *testing.T) {
	a := assert.New(t)

	volume := make([]byte, 4*1024*1024)
	src := &slowMemBackend{memBackend: memBackend{data: volume}, perRead: 5 * time.Millisecond}
	sink := &sequentialMemBackend{}

	c := NewCoordinator(Config{
		Operation:   OperationBackup,
		Source:      src,
		Sink:        SequentialSink(sink),
		VolumeSize:  int64(len(volume)),
		ClusterSize: 4096,
		Compression: common.ECompressionFormat.None(),
		ChunkBytes:  4096,
		PoolSize:    1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var result Result
	var err error
	go func() {
		result, err = c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within bounded time after context cancellation")
	}

	a.Error(err)
	a.Equal(common.EErrorKind.Cancelled(), common.KindOf(err))
	a.Equal(common.ESessionState.Cancelled(), result.State)
	// the reader never reached its CRC finalization, so no checksum was produced
	a.Equal(uint32(0), result.ReaderCRC32)
	a.Less(result.BytesProcessed, int64(len(volume)))
}

func TestCoordinatorVerifyPasses(t *testing.T) {
	a := assert.New(t)

	volume := make([]byte, 4096)
	r := rand.New(rand.NewSource(5))
	r.Read(volume)

	src := newMemBackend(len(volume))
	copy(src.data, volume)
	sink := newMemBackend(len(volume))

	expected := crc32.ChecksumIEEE(volume)

	c := NewCoordinator(Config{
		Operation:     OperationVerify,
		Source:        src,
		Sink:          sink,
		VolumeSize:    int64(len(volume)),
		ClusterSize:   4096,
		Compression:   common.ECompressionFormat.None(),
		ChunkBytes:    4096,
		ExpectedCRC32: expected,
	})

	result, err := c.Run(context.Background())
	a.NoError(err)
	a.Equal(common.ESessionState.Done(), result.State)
}
