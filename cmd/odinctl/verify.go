package odinctl

import (
	"fmt"

	"github.com/odin-imager/odin/collab"
	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
	"github.com/odin-imager/odin/pipeline"
	"github.com/spf13/cobra"
)

var (
	verifyInput         string
	verifyReadBlockSize int
	verifyPoolSize      int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an odin container's volume data against its stored CRC-32",
	Long: `verify reads --input exactly as restore would, without writing anywhere,
and compares the resulting CRC-32 against the value recorded in the
container header when the backup completed.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyInput, "input", "", "container base path to verify (required)")
	verifyCmd.Flags().IntVar(&verifyReadBlockSize, "read-block-size", 1<<20, "pipeline chunk capacity in bytes")
	verifyCmd.Flags().IntVar(&verifyPoolSize, "pool-size", 8, "number of in-flight chunks per queue")
	verifyCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	overrideInt(cmd, "read-block-size", &verifyReadBlockSize, cfg.ReadBlockSize)
	overrideInt(cmd, "pool-size", &verifyPoolSize, cfg.PoolSize)

	id, endSession := beginSession(sessionLogLevel(cfg), "-verify")
	defer endSession()
	fmt.Fprintf(cmd.OutOrStdout(), "session %s: verifying %s\n", id, verifyInput)

	cf, err := container.OpenForRead(verifyInput, nil)
	if err != nil {
		return err
	}
	defer cf.Close()

	header, err := container.ReadHeader(cf)
	if err != nil {
		return err
	}
	allocMapBytes, err := container.ReadAllocMapAfterHeader(cf, header)
	if err != nil {
		return err
	}

	var runs []container.Run
	if header.AllocMapLength > 0 {
		numClusters := container.ClustersFor(header.VolumeSize, uint64(header.ClusterSize))
		runs, err = container.DecodeAllocMapExpecting(allocMapBytes, numClusters)
		if err != nil {
			return err
		}
	}

	progress := collab.StderrProgressSink{Out: cmd.ErrOrStderr(), Total: int64(header.VolumeSize)}
	pcfg := pipeline.Config{
		Operation:      pipeline.OperationVerify,
		Source:         pipeline.SequentialSource(cf),
		Sink:           pipeline.DiscardSink(),
		VolumeSize:     int64(header.VolumeSize),
		ClusterSize:    int64(header.ClusterSize),
		Compression:    header.Compression,
		UsedBlocksOnly: runs != nil,
		Runs:           runs,
		ChunkBytes:     verifyReadBlockSize,
		PoolSize:       verifyPoolSize,
		ExpectedCRC32:  header.CRC32,
		ProgressFunc: func(bytesProcessed int64) {
			progress.OnBytesProcessed(uint64(bytesProcessed))
		},
	}

	ctx, cancel := cancellableContext()
	defer cancel()
	coord := pipeline.NewCoordinator(pcfg)
	result, runErr := coord.Run(ctx)
	fmt.Fprintln(cmd.ErrOrStderr())
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "verify OK: %s matched crc32 %08x (read at %s/s)\n",
		common.ByteSizeToString(result.BytesProcessed, false), result.WriterCRC32, common.ByteSizeToString(int64(result.BytesPerSecond), false))
	return nil
}
