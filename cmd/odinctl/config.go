package odinctl

import (
	"github.com/BurntSushi/toml"
	"github.com/odin-imager/odin/common"
	"github.com/spf13/cobra"
)

// Config is the optional TOML session-config file odinctl consults via
// --config, mirroring the pipeline's recognized configuration options.
// Flags explicitly set on the command line always win over a config value;
// a config value wins over the flag's own default.
type Config struct {
	LogLevel         string `toml:"log_level"`
	Compression      string `toml:"compression"`
	CompressionLevel int    `toml:"compression_level"`
	ClusterSize      int64  `toml:"cluster_size"`
	SplitSize        int64  `toml:"split_size"`
	ReadBlockSize    int    `toml:"read_block_size"`
	PoolSize         int    `toml:"pool_size"`
	Comment          string `toml:"comment"`
}

// loadConfig decodes path as TOML, or returns a zero Config if path is
// empty. A present-but-unparseable file is reported as FileIO.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.FileIO(), err, "reading config file %s", path)
	}
	return cfg, nil
}

func overrideString(cmd *cobra.Command, flag string, dst *string, cfgVal string) {
	if cfgVal != "" && !cmd.Flags().Changed(flag) {
		*dst = cfgVal
	}
}

func overrideInt(cmd *cobra.Command, flag string, dst *int, cfgVal int) {
	if cfgVal != 0 && !cmd.Flags().Changed(flag) {
		*dst = cfgVal
	}
}

func overrideInt64(cmd *cobra.Command, flag string, dst *int64, cfgVal int64) {
	if cfgVal != 0 && !cmd.Flags().Changed(flag) {
		*dst = cfgVal
	}
}
