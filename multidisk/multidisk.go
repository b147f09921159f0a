// Package multidisk implements the whole-disk multi-partition driver
// (component K): it snapshots a disk's member partitions, then invokes the
// pipeline coordinator once per member, writing one container file per
// partition under a directory convention.
package multidisk

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/odin-imager/odin/collab"
	"github.com/odin-imager/odin/common"
	"github.com/odin-imager/odin/pipeline"
)

// Member describes one partition of a whole-disk image: the device path to
// read from (or write to, on restore) and the name used to build its
// per-partition container filename.
type Member struct {
	DeviceName string // e.g. "sda1", used verbatim in the per-member filename
	DevicePath string
}

// MemberResult records the outcome of one member's pipeline run.
type MemberResult struct {
	Member Member
	Result pipeline.Result
	Err    error
}

// Driver runs a backup or restore operation over every member of a
// whole-disk image, stopping at the first member failure.
type Driver struct {
	Snapshot collab.SnapshotProvider
	BaseDir  string // directory holding one container file per member
	BaseName string // e.g. "base.odin"; member files are named per MemberFilePath
}

// MemberFilePath returns the container path for one member: BaseName with
// the member's device name inserted before its extension ("base.odin"
// becomes "base.sda1.odin"), inside BaseDir. The Driver writes no file
// under BaseName itself.
func (d *Driver) MemberFilePath(m Member) string {
	ext := filepath.Ext(d.BaseName)
	stem := d.BaseName[:len(d.BaseName)-len(ext)]
	return filepath.Join(d.BaseDir, fmt.Sprintf("%s.%s%s", stem, m.DeviceName, ext))
}

// RunBackup snapshots mountPoints, then backs up every member in order
// using configure to build each member's pipeline.Config from its snapshot
// device path and container path. Failure in any member aborts the
// remainder; already-completed member container files are left on disk.
func (d *Driver) RunBackup(ctx context.Context, members []Member, configure func(m Member, containerPath string) pipeline.Config) ([]MemberResult, error) {
	mountPoints := make([]string, len(members))
	for i, m := range members {
		mountPoints[i] = m.DevicePath
	}

	snapshotPaths, err := d.Snapshot.Acquire(mountPoints)
	if err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.DeviceOpen(), err, "acquiring snapshot")
	}
	if len(snapshotPaths) != len(members) {
		d.Snapshot.Release(false)
		return nil, common.NewPipelineError(common.EErrorKind.DeviceOpen(), nil, "snapshot returned %d paths for %d members", len(snapshotPaths), len(members))
	}

	results := make([]MemberResult, 0, len(members))
	ok := true
	for i, m := range members {
		snapMember := m
		snapMember.DevicePath = snapshotPaths[i]

		containerPath := d.MemberFilePath(m)
		cfg := configure(snapMember, containerPath)

		coord := pipeline.NewCoordinator(cfg)
		res, runErr := coord.Run(ctx)
		results = append(results, MemberResult{Member: m, Result: res, Err: runErr})
		if runErr != nil {
			ok = false
			break
		}
	}

	d.Snapshot.Release(ok)

	if !ok {
		last := results[len(results)-1]
		return results, common.NewPipelineError(common.EErrorKind.DeviceIO(), last.Err, "member %s failed, aborting remaining members", last.Member.DeviceName)
	}
	return results, nil
}

// RunRestore restores every member in order (no snapshot is taken; the
// restore targets are the live devices being written to). Failure in any
// member aborts the remainder, leaving already-restored members intact.
func (d *Driver) RunRestore(ctx context.Context, members []Member, configure func(m Member, containerPath string) pipeline.Config) ([]MemberResult, error) {
	results := make([]MemberResult, 0, len(members))
	for _, m := range members {
		containerPath := d.MemberFilePath(m)
		cfg := configure(m, containerPath)

		coord := pipeline.NewCoordinator(cfg)
		res, runErr := coord.Run(ctx)
		results = append(results, MemberResult{Member: m, Result: res, Err: runErr})
		if runErr != nil {
			return results, common.NewPipelineError(common.EErrorKind.DeviceIO(), runErr, "member %s failed, aborting remaining members", m.DeviceName)
		}
	}
	return results, nil
}
