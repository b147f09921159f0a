package odinctl

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
	"github.com/odin-imager/odin/device"
	"github.com/odin-imager/odin/pipeline"
	"github.com/stretchr/testify/require"
)

// TestBackupRestoreVerifyRoundTrip exercises the same container/device/pipeline
// wiring the backup, restore, and verify subcommands perform, without going
// through cobra: write a source file, back it up to a container, restore it
// to a fresh target, and verify the container against its stored CRC-32.
func TestBackupRestoreVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.img")
	containerPath := filepath.Join(dir, "disk.odin")
	targetPath := filepath.Join(dir, "restored.img")

	r := rand.New(rand.NewSource(7))
	volume := make([]byte, 200*1024+37)
	r.Read(volume)
	require.NoError(t, os.WriteFile(sourcePath, volume, 0o644))

	// backup
	src, err := device.Open(sourcePath, device.OpenOptions{ReadOnly: true, SizeHint: int64(len(volume))})
	require.NoError(t, err)

	h := &container.Header{
		Version:           container.CurrentHeaderVersion,
		VolumeKind:        common.EVolumeKind.Partition(),
		Compression:       common.ECompressionFormat.ZStd(),
		ClusterSize:       4096,
		VolumeSize:        uint64(len(volume)),
		AllocatedBytes:    uint64(len(volume)),
		CreationTimestamp: time.Now().UTC(),
		PartCount:         1,
	}
	h.DataOffset = uint64(h.HeaderSize())

	cf, err := container.OpenForWrite(containerPath, 0)
	require.NoError(t, err)
	require.NoError(t, h.Write(cf))

	coord := pipeline.NewCoordinator(pipeline.Config{
		Operation:   pipeline.OperationBackup,
		Source:      src,
		Sink:        pipeline.SequentialSink(cf),
		VolumeSize:  int64(len(volume)),
		ClusterSize: 4096,
		Compression: h.Compression,
		ChunkBytes:  8192,
	})
	result, err := coord.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, cf.Close())

	part0, err := os.OpenFile(containerPath, os.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, container.PatchCRC32(part0, result.ReaderCRC32))
	require.NoError(t, part0.Close())

	// restore
	rf, err := container.OpenForRead(containerPath, nil)
	require.NoError(t, err)
	header, err := container.ReadHeader(rf)
	require.NoError(t, err)
	_, err = container.ReadAllocMapAfterHeader(rf, header)
	require.NoError(t, err)

	target, err := device.Open(targetPath, device.OpenOptions{Create: true, SizeHint: int64(header.VolumeSize)})
	require.NoError(t, err)

	restoreCoord := pipeline.NewCoordinator(pipeline.Config{
		Operation:   pipeline.OperationRestore,
		Source:      pipeline.SequentialSource(rf),
		Sink:        target,
		VolumeSize:  int64(header.VolumeSize),
		ClusterSize: int64(header.ClusterSize),
		Compression: header.Compression,
		ChunkBytes:  8192,
	})
	_, err = restoreCoord.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	require.NoError(t, target.Close())

	restored, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	require.Equal(t, volume, restored)

	// verify
	vf, err := container.OpenForRead(containerPath, nil)
	require.NoError(t, err)
	vheader, err := container.ReadHeader(vf)
	require.NoError(t, err)
	_, err = container.ReadAllocMapAfterHeader(vf, vheader)
	require.NoError(t, err)

	verifyCoord := pipeline.NewCoordinator(pipeline.Config{
		Operation:     pipeline.OperationVerify,
		Source:        pipeline.SequentialSource(vf),
		Sink:          pipeline.DiscardSink(),
		VolumeSize:    int64(vheader.VolumeSize),
		ClusterSize:   int64(vheader.ClusterSize),
		Compression:   vheader.Compression,
		ChunkBytes:    8192,
		ExpectedCRC32: vheader.CRC32,
	})
	_, err = verifyCoord.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, vf.Close())
}
