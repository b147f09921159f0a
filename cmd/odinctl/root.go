// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package odinctl is the cobra command tree fronting the odin-imager
// library: backup, restore, and verify subcommands that wire flags (and an
// optional TOML config file) to a pipeline.Config and run it to completion.
package odinctl

import (
	"fmt"
	"os"

	"github.com/odin-imager/odin/common"
	"github.com/spf13/cobra"
)

var (
	logLevelRaw string
	configPath  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Version:      common.Version,
	Use:          "odinctl",
	Short:        "odinctl images, restores, and verifies block devices",
	SilenceUsage: true,
	Long: `odinctl copies a block device (a whole disk or a single partition) to a
container file, with optional streaming compression, used-cluster-only
backup, multi-part splitting, and CRC-32 verification on restore.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		common.InitializeFolders()
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. It is
// called by main.main exactly once.
func Execute() {
	if _, err := processOSSpecificInitialization(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not raise file descriptor limit:", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelRaw, "log-level", "WARN", "minimum severity written to the session log: NONE, FATAL, PANIC, ERROR, WARNING, INFO, DEBUG")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML file overriding defaults for every subcommand")
}

// sessionLogLevel parses --log-level, falling back to the config file's
// value (if any) and finally to LogWarning.
func sessionLogLevel(cfg *Config) common.LogLevel {
	raw := logLevelRaw
	if raw == "" || raw == "WARN" {
		if cfg != nil && cfg.LogLevel != "" {
			raw = cfg.LogLevel
		}
	}
	var level common.LogLevel
	if err := level.Parse(raw); err != nil {
		return common.LogWarning
	}
	return level
}
