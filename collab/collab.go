// Package collab defines the collaborator interfaces the core pipeline
// consumes without depending on any concrete implementation: snapshotting,
// interactive recovery of a missing split part, and progress reporting.
package collab

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/odin-imager/odin/common"
)

// SnapshotProvider yields a consistent, read-only point-in-time view of a
// set of mount points as device paths a multi-partition backup can read
// from directly, e.g. via an LVM or btrfs snapshot. Release is always
// called exactly once per successful Acquire, regardless of whether the
// backup that used it succeeded.
type SnapshotProvider interface {
	Acquire(mountPoints []string) (devicePaths []string, err error)
	Release(ok bool)
}

// UserFeedback lets the split manager recover interactively from a missing
// container part on restore.
type UserFeedback interface {
	// AskMissingPart is invoked once per missing part with its expected
	// path and index. Returning ok=false declines and fails the restore
	// with PartMissing.
	AskMissingPart(expectedPath string, partIndex int) (substitutePath string, ok bool)
}

// ProgressSink receives best-effort progress and fatal-error notifications
// from a running session; calls are non-blocking from the pipeline's point
// of view and may be dropped under backpressure.
type ProgressSink interface {
	OnBytesProcessed(total uint64)
	OnError(kind common.ErrorKind, message string)
}

// NoopSnapshotProvider returns the mount points unchanged, for imaging
// already-quiesced or already-read-only sources (e.g. a dismounted
// partition, or test fixtures) where no snapshot is needed.
type NoopSnapshotProvider struct{}

func (NoopSnapshotProvider) Acquire(mountPoints []string) ([]string, error) {
	return mountPoints, nil
}

func (NoopSnapshotProvider) Release(ok bool) {}

// DeclineUserFeedback always declines a missing part, useful for
// unattended/scripted restores that would rather fail fast than hang
// waiting on an operator.
type DeclineUserFeedback struct{}

func (DeclineUserFeedback) AskMissingPart(expectedPath string, partIndex int) (string, bool) {
	return "", false
}

// StaticUserFeedback answers every missing-part prompt with a fixed
// lookup table keyed by part index, for scripted restores that know in
// advance where relocated parts live.
type StaticUserFeedback struct {
	Substitutes map[int]string
}

func (s StaticUserFeedback) AskMissingPart(expectedPath string, partIndex int) (string, bool) {
	p, ok := s.Substitutes[partIndex]
	return p, ok
}

// LoggingProgressSink forwards progress and errors to an ILogger, the same
// sink odin's other components log through.
type LoggingProgressSink struct {
	Logger common.ILogger
}

func (s LoggingProgressSink) OnBytesProcessed(total uint64) {
	if s.Logger == nil {
		return
	}
	s.Logger.Log(common.LogDebug, "bytes processed: "+common.ByteSizeToString(int64(total), false))
}

func (s LoggingProgressSink) OnError(kind common.ErrorKind, message string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Log(common.LogError, kind.String()+": "+message)
}

// StdinUserFeedback prompts an interactive operator on In/Out for a
// substitute path each time a split part is missing; the restore command
// wires it in when --interactive-missing-parts is set.
type StdinUserFeedback struct {
	In  io.Reader
	Out io.Writer
}

func (s StdinUserFeedback) AskMissingPart(expectedPath string, partIndex int) (string, bool) {
	fmt.Fprintf(s.Out, "part %d missing at %s; enter a substitute path, or leave blank to abort: ", partIndex, expectedPath)
	line, err := bufio.NewReader(s.In).ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", false
	}
	if line == "" {
		return "", false
	}
	return line, true
}

// StderrProgressSink prints a single updating progress line to Out, the
// CLI's default non-interactive progress display.
type StderrProgressSink struct {
	Out   io.Writer
	Total int64 // total expected bytes, 0 if unknown
}

func (s StderrProgressSink) OnBytesProcessed(total uint64) {
	if s.Total > 0 {
		pct := float64(total) / float64(s.Total) * 100
		fmt.Fprintf(s.Out, "\r%s / %s (%.1f%%)", common.ByteSizeToString(int64(total), false), common.ByteSizeToString(s.Total, false), pct)
		return
	}
	fmt.Fprintf(s.Out, "\r%s processed", common.ByteSizeToString(int64(total), false))
}

func (s StderrProgressSink) OnError(kind common.ErrorKind, message string) {
	fmt.Fprintf(s.Out, "\n%s: %s\n", kind, message)
}
