package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/odin-imager/odin/common"
)

// PartMissingHandler is invoked by a File in read mode when a sequential
// read crosses into a part that does not exist on disk. It returns a
// substitute path to open instead, or ok=false to decline (the read then
// fails with PartMissing).
type PartMissingHandler func(expectedPath string, partIndex int) (substitutePath string, ok bool)

// File is a sequential, splittable container stream: callers Write or Read
// through it without caring where one part file ends and the next begins.
// Part boundaries are driven by a target part size (write direction) or by
// hitting an underlying file's EOF (read direction).
type File struct {
	basePath     string
	targetSize   int64 // 0 means unsplit: never roll to part 1
	writing      bool
	current      *os.File
	partIndex    int
	bytesInPart  int64
	onMissing    PartMissingHandler
}

// OpenForWrite creates base.ext (part 0) for writing. targetSize of 0 means
// the stream never splits regardless of how much is written.
func OpenForWrite(basePath string, targetSize int64) (*File, error) {
	f := &File{basePath: basePath, targetSize: targetSize, writing: true}
	first, err := os.OpenFile(basePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.FileOpen(), err, "creating %s", basePath)
	}
	f.current = first
	return f, nil
}

// OpenForRead opens base.ext (part 0) for sequential reading. onMissing, if
// non-nil, is consulted when a read needs to cross into a part whose file
// is absent.
func OpenForRead(basePath string, onMissing PartMissingHandler) (*File, error) {
	f := &File{basePath: basePath, onMissing: onMissing}
	first, err := os.Open(basePath)
	if err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.FileOpen(), err, "opening %s", basePath)
	}
	f.current = first
	return f, nil
}

// PartPath returns the on-disk path for partIndex given a base path of the
// form "base.ext": part 0 is the base path itself; part k>=1 is
// "baseNNNN.ext" with a 4-digit zero-padded infix before the extension.
func PartPath(basePath string, partIndex int) string {
	if partIndex == 0 {
		return basePath
	}
	ext := filepath.Ext(basePath)
	stem := strings.TrimSuffix(basePath, ext)
	return fmt.Sprintf("%s%04d%s", stem, partIndex, ext)
}

// Write implements io.Writer, rolling to a new part file whenever the
// current part would exceed the target size. The very first write of part 0
// is never rolled before at least one byte is written, so a header +
// allocation map that alone exceeds the target size surfaces as
// ChunkSizeTooSmall rather than producing a zero-byte part.
func (f *File) Write(p []byte) (int, error) {
	if !f.writing {
		return 0, common.NewPipelineError(common.EErrorKind.FileIO(), nil, "file opened for read, not write")
	}

	if f.targetSize > 0 && f.bytesInPart > 0 && f.bytesInPart+int64(len(p)) > f.targetSize {
		if err := f.rollWrite(); err != nil {
			return 0, err
		}
	}
	if f.targetSize > 0 && f.bytesInPart == 0 && int64(len(p)) > f.targetSize {
		return 0, common.NewPipelineError(common.EErrorKind.ChunkSizeTooSmall(), nil, "part size %d is smaller than a single write of %d bytes", f.targetSize, len(p))
	}

	n, err := f.current.Write(p)
	f.bytesInPart += int64(n)
	if err != nil {
		return n, common.NewPipelineError(common.EErrorKind.FileIO(), err, "writing part %d", f.partIndex)
	}
	return n, nil
}

func (f *File) rollWrite() error {
	if err := f.current.Close(); err != nil {
		return common.NewPipelineError(common.EErrorKind.FileIO(), err, "closing part %d", f.partIndex)
	}
	f.partIndex++
	f.bytesInPart = 0
	path := PartPath(f.basePath, f.partIndex)
	next, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return common.NewPipelineError(common.EErrorKind.FileOpen(), err, "creating part %d at %s", f.partIndex, path)
	}
	f.current = next
	return nil
}

// Read implements io.Reader, transparently rolling to the next part file on
// EOF. If the next part is missing and a PartMissingHandler was installed,
// it is consulted for a substitute path; otherwise the read ends with
// io.EOF.
func (f *File) Read(p []byte) (int, error) {
	if f.writing {
		return 0, common.NewPipelineError(common.EErrorKind.FileIO(), nil, "file opened for write, not read")
	}

	n, err := f.current.Read(p)
	if err == io.EOF {
		rolled, rollErr := f.rollRead()
		if rollErr != nil {
			return n, rollErr
		}
		if !rolled {
			return n, io.EOF
		}
		if n > 0 {
			return n, nil
		}
		return f.Read(p)
	}
	if err != nil {
		return n, common.NewPipelineError(common.EErrorKind.FileIO(), err, "reading part %d", f.partIndex)
	}
	return n, nil
}

// rollRead attempts to open the next part after the current one hits EOF.
// It returns rolled=false (not an error) when there plainly is no next part
// to try, e.g. because the stream isn't part of a multi-part split at all
// and the caller should treat plain EOF as the end of the whole stream.
func (f *File) rollRead() (rolled bool, err error) {
	nextIndex := f.partIndex + 1
	nextPath := PartPath(f.basePath, nextIndex)

	if _, statErr := os.Stat(nextPath); statErr != nil {
		if !os.IsNotExist(statErr) {
			return false, common.NewPipelineError(common.EErrorKind.FileIO(), statErr, "stat %s", nextPath)
		}
		if f.onMissing == nil {
			return false, nil
		}
		substitute, ok := f.onMissing(nextPath, nextIndex)
		if !ok {
			return false, common.NewPipelineError(common.EErrorKind.PartMissing(), nil, "part %d missing at %s", nextIndex, nextPath)
		}
		nextPath = substitute
	}

	next, err := os.Open(nextPath)
	if err != nil {
		return false, common.NewPipelineError(common.EErrorKind.PartMissing(), err, "opening part %d at %s", nextIndex, nextPath)
	}
	f.current.Close()
	f.current = next
	f.partIndex = nextIndex
	f.bytesInPart = 0
	return true, nil
}

// PartCount returns how many parts have been created so far in write mode
// (partIndex of the highest part opened, plus one).
func (f *File) PartCount() int { return f.partIndex + 1 }

func (f *File) Close() error {
	if f.current == nil {
		return nil
	}
	return f.current.Close()
}
