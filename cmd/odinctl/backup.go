package odinctl

import (
	"fmt"
	"os"
	"time"

	"github.com/odin-imager/odin/collab"
	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
	"github.com/odin-imager/odin/device"
	"github.com/odin-imager/odin/pipeline"
	"github.com/spf13/cobra"
)

var (
	backupSource           string
	backupOutput           string
	backupCompressionRaw   string
	backupCompressionLevel int
	backupClusterSize      int64
	backupSplitSize        int64
	backupReadBlockSize    int
	backupPoolSize         int
	backupComment          string
	backupSaveAllBlocks    bool
	backupAllocMapFile     string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Image a block device or file to an odin container",
	Long: `backup reads --source start to finish (or, with --save-all-blocks=false, only
the clusters an externally supplied allocation map marks used) and writes an
odin container to --output, optionally compressed and/or split into parts.`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupSource, "source", "", "device or file to image (required)")
	backupCmd.Flags().StringVar(&backupOutput, "output", "", "container base path to create, e.g. /backups/disk.odin (required)")
	backupCmd.Flags().StringVar(&backupCompressionRaw, "compression", "none", "none, gzip, bzip2 (discouraged), lz4, lz4hc, or zstd")
	backupCmd.Flags().IntVar(&backupCompressionLevel, "compression-level", 6, "zstd [1,22], gzip [1,9]")
	backupCmd.Flags().Int64Var(&backupClusterSize, "cluster-size", 0, "cluster size in bytes; 0 probes the source's native block size")
	backupCmd.Flags().Int64Var(&backupSplitSize, "split-size", 0, "bytes per container part; 0 means a single unsplit file")
	backupCmd.Flags().IntVar(&backupReadBlockSize, "read-block-size", 1<<20, "pipeline chunk capacity in bytes")
	backupCmd.Flags().IntVar(&backupPoolSize, "pool-size", 8, "number of in-flight chunks per queue")
	backupCmd.Flags().StringVar(&backupComment, "comment", "", "free-form comment stored in the container header")
	backupCmd.Flags().BoolVar(&backupSaveAllBlocks, "save-all-blocks", true, "false restricts the backup to used clusters named by --alloc-map-file")
	backupCmd.Flags().StringVar(&backupAllocMapFile, "alloc-map-file", "", "run-length-encoded allocation map to consult when --save-all-blocks=false")
	backupCmd.MarkFlagRequired("source")
	backupCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	overrideString(cmd, "compression", &backupCompressionRaw, cfg.Compression)
	overrideInt(cmd, "compression-level", &backupCompressionLevel, cfg.CompressionLevel)
	overrideInt64(cmd, "cluster-size", &backupClusterSize, cfg.ClusterSize)
	overrideInt64(cmd, "split-size", &backupSplitSize, cfg.SplitSize)
	overrideInt(cmd, "read-block-size", &backupReadBlockSize, cfg.ReadBlockSize)
	overrideInt(cmd, "pool-size", &backupPoolSize, cfg.PoolSize)
	overrideString(cmd, "comment", &backupComment, cfg.Comment)

	var compression common.CompressionFormat
	if err := compression.Parse(backupCompressionRaw); err != nil {
		return common.NewPipelineError(common.EErrorKind.Compression(), err, "unrecognized --compression %q", backupCompressionRaw)
	}

	if !backupSaveAllBlocks && backupAllocMapFile == "" {
		return common.NewPipelineError(common.EErrorKind.AllocationMapCorrupt(), nil, "--save-all-blocks=false requires --alloc-map-file")
	}

	id, endSession := beginSession(sessionLogLevel(cfg), "-backup")
	defer endSession()
	fmt.Fprintf(cmd.OutOrStdout(), "session %s: backing up %s -> %s\n", id, backupSource, backupOutput)

	src, err := device.Open(backupSource, device.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer src.Close()

	clusterSize := backupClusterSize
	if clusterSize == 0 {
		clusterSize = src.ClusterSize()
	}
	volumeSize := src.Size()
	numClusters := container.ClustersFor(uint64(volumeSize), uint64(clusterSize))

	var runs []container.Run
	var allocMapBytes []byte
	if !backupSaveAllBlocks {
		data, err := os.ReadFile(backupAllocMapFile)
		if err != nil {
			return common.NewPipelineError(common.EErrorKind.FileOpen(), err, "reading %s", backupAllocMapFile)
		}
		runs, err = container.DecodeAllocMapExpecting(data, numClusters)
		if err != nil {
			return err
		}
		allocMapBytes = data
	}

	allocatedBytes := uint64(volumeSize)
	if runs != nil {
		allocatedBytes = container.UsedBytes(runs, uint64(clusterSize))
	}

	h := &container.Header{
		Version:           container.CurrentHeaderVersion,
		VolumeKind:        common.EVolumeKind.Partition(),
		Compression:       compression,
		ClusterSize:       uint32(clusterSize),
		VolumeSize:        uint64(volumeSize),
		AllocatedBytes:    allocatedBytes,
		CreationTimestamp: time.Now().UTC(),
		PartCount:         1,
		PartSize:          uint64(backupSplitSize),
		Comment:           backupComment,
	}
	h.AllocMapOffset = uint64(h.HeaderSize())
	h.AllocMapLength = uint64(len(allocMapBytes))
	h.DataOffset = h.AllocMapOffset + h.AllocMapLength

	cf, err := container.OpenForWrite(backupOutput, backupSplitSize)
	if err != nil {
		return err
	}
	if err := h.Write(cf); err != nil {
		cf.Close()
		return err
	}
	if len(allocMapBytes) > 0 {
		if _, err := cf.Write(allocMapBytes); err != nil {
			cf.Close()
			return err
		}
	}

	progress := collab.StderrProgressSink{Out: cmd.ErrOrStderr(), Total: volumeSize}
	pcfg := pipeline.Config{
		Operation:        pipeline.OperationBackup,
		Source:           src,
		Sink:             pipeline.SequentialSink(cf),
		VolumeSize:       volumeSize,
		ClusterSize:      clusterSize,
		Compression:      compression,
		CompressionLevel: backupCompressionLevel,
		UsedBlocksOnly:   runs != nil,
		Runs:             runs,
		ChunkBytes:       backupReadBlockSize,
		PoolSize:         backupPoolSize,
		ProgressFunc: func(bytesProcessed int64) {
			progress.OnBytesProcessed(uint64(bytesProcessed))
		},
	}

	ctx, cancel := cancellableContext()
	defer cancel()
	coord := pipeline.NewCoordinator(pcfg)
	result, runErr := coord.Run(ctx)
	partCount := cf.PartCount()
	closeErr := cf.Close()
	fmt.Fprintln(cmd.ErrOrStderr())
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	part0, err := os.OpenFile(container.PartPath(backupOutput, 0), os.O_RDWR, 0)
	if err != nil {
		return common.NewPipelineError(common.EErrorKind.FileOpen(), err, "reopening %s to patch header", backupOutput)
	}
	defer part0.Close()
	if err := container.PatchCRC32(part0, result.ReaderCRC32); err != nil {
		return err
	}
	if partCount > 1 {
		if err := container.PatchPartCount(part0, uint32(partCount)); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "backup complete: %s processed at %s/s, crc32 %08x, %d part(s)\n",
		common.ByteSizeToString(result.BytesProcessed, false), common.ByteSizeToString(int64(result.BytesPerSecond), false), result.ReaderCRC32, partCount)
	return nil
}
