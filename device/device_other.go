//go:build !linux

package device

import (
	"os"

	"github.com/odin-imager/odin/common"
)

// probe falls back to stat-reported size on platforms without the Linux
// block-device ioctls. A regular file gets nominal sector/cluster sizes, the
// same as on Linux; an actual device special file gets neither — sector and
// cluster size probing is Linux-specific here (see DESIGN.md), so both come
// back 0 (undetectable), the condition cmd/odinctl's restore path falls
// back on.
func (s *Stream) probe() error {
	fi, err := s.file.Stat()
	if err != nil {
		return common.NewPipelineError(common.EErrorKind.DeviceOpen(), err, "stat %s", s.file.Name())
	}
	if s.size == 0 {
		s.size = fi.Size()
	}
	if fi.Mode()&os.ModeDevice == 0 {
		s.sectorSize = 512
		s.clusterSize = 4096
	}
	return nil
}

// isMounted has no portable implementation here; devices on these platforms
// always report unmounted, which is the conservative side of the
// cluster-size-undetectable restore fallback.
func isMounted(path string) bool { return false }
