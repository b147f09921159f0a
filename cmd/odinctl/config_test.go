package odinctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoadConfigDecodesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odin.toml")
	contents := `
log_level = "INFO"
compression = "zstd"
compression_level = 9
cluster_size = 4096
split_size = 1073741824
read_block_size = 65536
pool_size = 4
comment = "nightly"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.Equal(t, 9, cfg.CompressionLevel)
	assert.EqualValues(t, 4096, cfg.ClusterSize)
	assert.EqualValues(t, 1073741824, cfg.SplitSize)
	assert.Equal(t, 65536, cfg.ReadBlockSize)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, "nightly", cfg.Comment)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestOverrideStringFlagWins(t *testing.T) {
	cmd := &cobra.Command{}
	var dst string
	cmd.Flags().StringVar(&dst, "compression", "none", "")
	require.NoError(t, cmd.Flags().Set("compression", "gzip"))

	overrideString(cmd, "compression", &dst, "zstd")
	assert.Equal(t, "gzip", dst)
}

func TestOverrideStringConfigWinsOverDefault(t *testing.T) {
	cmd := &cobra.Command{}
	var dst string
	cmd.Flags().StringVar(&dst, "compression", "none", "")

	overrideString(cmd, "compression", &dst, "zstd")
	assert.Equal(t, "zstd", dst)
}

func TestOverrideIntIgnoresZeroConfigValue(t *testing.T) {
	cmd := &cobra.Command{}
	var dst int
	cmd.Flags().IntVar(&dst, "pool-size", 8, "")

	overrideInt(cmd, "pool-size", &dst, 0)
	assert.Equal(t, 8, dst)
}

func TestOverrideInt64ConfigApplies(t *testing.T) {
	cmd := &cobra.Command{}
	var dst int64
	cmd.Flags().Int64Var(&dst, "split-size", 0, "")

	overrideInt64(cmd, "split-size", &dst, 1<<30)
	assert.EqualValues(t, 1<<30, dst)
}
