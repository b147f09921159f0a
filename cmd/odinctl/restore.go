package odinctl

import (
	"fmt"

	"github.com/odin-imager/odin/collab"
	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/container"
	"github.com/odin-imager/odin/device"
	"github.com/odin-imager/odin/pipeline"
	"github.com/spf13/cobra"
)

var (
	restoreInput           string
	restoreTarget          string
	restoreReadBlockSize   int
	restorePoolSize        int
	restoreCreateTarget    bool
	restoreAllowMissing    bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore an odin container to a block device or file",
	Long: `restore parses --input's header and (if present) allocation map, then
replays its volume data onto --target: a full write if the backup covered
every cluster, or a sparse write — leaving clusters outside the map
untouched — if it was taken with --save-all-blocks=false.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreInput, "input", "", "container base path to restore from (required)")
	restoreCmd.Flags().StringVar(&restoreTarget, "target", "", "device or file to restore to (required)")
	restoreCmd.Flags().IntVar(&restoreReadBlockSize, "read-block-size", 1<<20, "pipeline chunk capacity in bytes")
	restoreCmd.Flags().IntVar(&restorePoolSize, "pool-size", 8, "number of in-flight chunks per queue")
	restoreCmd.Flags().BoolVar(&restoreCreateTarget, "create-target", false, "create --target as a new sparse file sized to the volume, instead of requiring it to already exist")
	restoreCmd.Flags().BoolVar(&restoreAllowMissing, "interactive-missing-parts", false, "prompt on stdin for a substitute path when a split part is missing, instead of failing immediately")
	restoreCmd.MarkFlagRequired("input")
	restoreCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	overrideInt(cmd, "read-block-size", &restoreReadBlockSize, cfg.ReadBlockSize)
	overrideInt(cmd, "pool-size", &restorePoolSize, cfg.PoolSize)

	id, endSession := beginSession(sessionLogLevel(cfg), "-restore")
	defer endSession()
	fmt.Fprintf(cmd.OutOrStdout(), "session %s: restoring %s -> %s\n", id, restoreInput, restoreTarget)

	var missingPartHandler container.PartMissingHandler
	if restoreAllowMissing {
		fb := collab.StdinUserFeedback{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
		missingPartHandler = fb.AskMissingPart
	}

	cf, err := container.OpenForRead(restoreInput, missingPartHandler)
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

	target, err := device.Open(restoreTarget, device.OpenOptions{
		Create:   restoreCreateTarget,
		SizeHint: int64(header.VolumeSize),
	})
	if err != nil {
		return err
	}
	defer target.Close()

	// On an unmounted raw device whose cluster size can't be probed, there's
	// no granularity to place a sparse write at, so treat the target as
	// requiring the full image: drop the allocation map and let the writer
	// lay the container's stream down start to finish. If the target is also
	// too small for that, fail now rather than partway through the write.
	if !target.IsMounted() && target.ClusterSize() == 0 {
		if target.Size() < int64(header.VolumeSize) {
			return common.NewPipelineError(common.EErrorKind.UnsupportedShrink(), nil,
				"%s (%s) is smaller than the image's volume size (%s) and its cluster size could not be detected to restore sparsely",
				restoreTarget, common.ByteSizeToString(target.Size(), false), common.ByteSizeToString(int64(header.VolumeSize), false))
		}
		runs = nil
	}

	progress := collab.StderrProgressSink{Out: cmd.ErrOrStderr(), Total: int64(header.VolumeSize)}
	pcfg := pipeline.Config{
		Operation:      pipeline.OperationRestore,
		Source:         pipeline.SequentialSource(cf),
		Sink:           target,
		VolumeSize:     int64(header.VolumeSize),
		ClusterSize:    int64(header.ClusterSize),
		Compression:    header.Compression,
		UsedBlocksOnly: runs != nil,
		Runs:           runs,
		ChunkBytes:     restoreReadBlockSize,
		PoolSize:       restorePoolSize,
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

	fmt.Fprintf(cmd.OutOrStdout(), "restore complete: %s processed at %s/s, crc32 %08x\n",
		common.ByteSizeToString(result.BytesProcessed, false), common.ByteSizeToString(int64(result.BytesPerSecond), false), result.ReaderCRC32)
	return nil
}
