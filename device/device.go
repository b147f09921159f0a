// Package device opens and probes local block devices for imaging (component
// B). It favors direct device access (alignment-aware ReadAt/WriteAt) over
// the convenience of a plain *os.File, since odin must read and write at the
// device's native sector size.
package device

import (
	"os"

	"github.com/odin-imager/odin/common"
)

// Backend is the minimal surface odin's reader/writer stages need from a
// block device or a regular file standing in for one (e.g. in tests, or when
// imaging to/from a container rather than a raw device).
type Backend interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Size() int64
	// ClusterSize is the allocation-map granularity odin uses for this
	// volume: the unit the reader sparsely reads and the writer sparsely
	// writes in. For a raw disk this is normally the filesystem's logical
	// block size; for a regular file it's a nominal default. 0 means the
	// backend could not determine one (see IsMounted).
	ClusterSize() int64
	// SectorSize is the device's required physical I/O alignment — the
	// granularity reads and writes must round to, independent of
	// ClusterSize. 0 means unknown.
	SectorSize() int64
	// IsMounted reports whether the backend's path is currently mounted.
	// Only meaningful for a raw device; always false for a regular file.
	IsMounted() bool
	Close() error
}

// Stream wraps an *os.File opened on a raw block device or a regular file,
// implementing Backend. On Linux it additionally probes the device's true
// size, sector size, and logical block size via ioctl when the path names a
// block special file; see device_linux.go.
type Stream struct {
	file        *os.File
	size        int64
	clusterSize int64
	sectorSize  int64
	readOnly    bool
}

// OpenOptions configures how a device or file is opened.
type OpenOptions struct {
	ReadOnly bool
	// Create, if set, creates path as a regular file if it doesn't already
	// exist — for a restore target that is a sparse image file rather than
	// a real device, which must already exist.
	Create bool
	// SizeHint, if non-zero, is used instead of a size probe — e.g. for a
	// regular file that doesn't support the block-size ioctls at all. When
	// combined with Create, the file is also truncated to this size.
	SizeHint int64
}

// Open opens path as a volume backend, probing its size and cluster size.
// path may name a raw block device (e.g. "/dev/sdb1") or a regular file
// (e.g. a pre-created sparse image on a filesystem with no device to image).
func Open(path string, opts OpenOptions) (*Stream, error) {
	flag := os.O_RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	if opts.Create {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, common.DEFAULT_FILE_PERM)
	if err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.DeviceOpen(), err, "opening %s", path)
	}

	s := &Stream{file: f, readOnly: opts.ReadOnly}

	if opts.Create && opts.SizeHint > 0 {
		if err := f.Truncate(opts.SizeHint); err != nil {
			f.Close()
			return nil, common.NewPipelineError(common.EErrorKind.DeviceOpen(), err, "truncating %s to %d bytes", path, opts.SizeHint)
		}
	}

	if opts.SizeHint > 0 {
		s.size = opts.SizeHint
	}

	if err := s.probe(); err != nil {
		f.Close()
		return nil, err
	}
	if opts.SizeHint > 0 {
		s.size = opts.SizeHint
	}
	if s.sectorSize > 0 && s.clusterSize > 0 && s.clusterSize%s.sectorSize != 0 {
		f.Close()
		return nil, common.NewPipelineError(common.EErrorKind.Alignment(), nil,
			"%s: cluster size %d is not a multiple of sector size %d", path, s.clusterSize, s.sectorSize)
	}
	return s, nil
}

func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.file.ReadAt(p, off)
	if err != nil {
		return n, common.NewPipelineError(common.EErrorKind.DeviceIO(), err, "reading %s at offset %d", s.file.Name(), off)
	}
	return n, nil
}

func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	if s.readOnly {
		return 0, common.NewPipelineError(common.EErrorKind.DeviceIO(), nil, "device %s opened read-only", s.file.Name())
	}
	n, err := s.file.WriteAt(p, off)
	if err != nil {
		return n, common.NewPipelineError(common.EErrorKind.DeviceIO(), err, "writing %s at offset %d", s.file.Name(), off)
	}
	return n, nil
}

func (s *Stream) Size() int64 { return s.size }

func (s *Stream) ClusterSize() int64 { return s.clusterSize }

func (s *Stream) SectorSize() int64 { return s.sectorSize }

func (s *Stream) IsMounted() bool { return isMounted(s.file.Name()) }

func (s *Stream) Close() error {
	return s.file.Close()
}

// Truncate resizes a regular-file-backed stream (used for restore targets
// that are sparse files rather than real devices). On a raw block device,
// whose size is fixed by the hardware, the truncate fails and its error is
// returned.
func (s *Stream) Truncate(size int64) error {
	if err := s.file.Truncate(size); err != nil {
		return common.NewPipelineError(common.EErrorKind.DeviceIO(), err, "truncating %s to %d bytes", s.file.Name(), size)
	}
	s.size = size
	return nil
}

// IsAligned reports whether offset and length are both multiples of
// clusterSize, the condition restore must satisfy before it can skip
// read-modify-write on a partial final cluster.
func IsAligned(offset, length, clusterSize int64) bool {
	if clusterSize <= 0 {
		return true
	}
	return offset%clusterSize == 0 && length%clusterSize == 0
}
