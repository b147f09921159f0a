//go:build linux

package device

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/odin-imager/odin/common"
	"golang.org/x/sys/unix"
)

// probe fills in size, sectorSize, and clusterSize. For a block special file
// it queries the kernel via ioctl: BLKGETSIZE64 for size (fatal if it
// fails — without a size there's nothing to image), BLKSSZGET for the
// physical sector alignment, and BLKBSZGET for the logical block size odin
// uses as its cluster granularity. The latter two are treated as
// best-effort rather than failing the whole open: if BLKSSZGET fails the
// sector size stays 0, and if BLKBSZGET fails the cluster size falls back
// to the sector size, so it is 0 only when both fail. Callers that need a
// cluster size check for 0 and fall back accordingly (see cmd/odinctl's
// restore path). For a regular file it falls back to
// stat-reported size and nominal sector/cluster sizes.
func (s *Stream) probe() error {
	fi, err := s.file.Stat()
	if err != nil {
		return common.NewPipelineError(common.EErrorKind.DeviceOpen(), err, "stat %s", s.file.Name())
	}

	if fi.Mode()&os.ModeDevice == 0 {
		// regular file standing in for a device
		if s.size == 0 {
			s.size = fi.Size()
		}
		s.sectorSize = 512
		s.clusterSize = 4096
		return nil
	}

	fd := int(s.file.Fd())

	size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return common.NewPipelineError(common.EErrorKind.DeviceOpen(), err, "BLKGETSIZE64 on %s", s.file.Name())
	}
	s.size = int64(size)

	if sectorSize, err := unix.IoctlGetInt(fd, unix.BLKSSZGET); err == nil {
		s.sectorSize = int64(sectorSize)
	}
	if blockSize, err := unix.IoctlGetInt(fd, unix.BLKBSZGET); err == nil {
		s.clusterSize = int64(blockSize)
	} else {
		s.clusterSize = s.sectorSize
	}

	return nil
}

// isMounted reports whether path (resolved through any symlinks) appears as
// a mount source in /proc/self/mountinfo.
func isMounted(path string) bool {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		real = path
	}

	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// mountinfo's mount source sits right after the " - " separator
		// between the variable-length optional-fields section and the
		// fixed "fstype source superopts" trailer.
		_, rest, ok := strings.Cut(sc.Text(), " - ")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		source := fields[1]
		if source == real {
			return true
		}
		if src, err := filepath.EvalSymlinks(source); err == nil && src == real {
			return true
		}
	}
	return false
}
