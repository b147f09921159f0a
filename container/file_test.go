package container

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartPathNaming(t *testing.T) {
	a := assert.New(t)
	a.Equal("/tmp/backup.odin", PartPath("/tmp/backup.odin", 0))
	a.Equal("/tmp/backup0001.odin", PartPath("/tmp/backup.odin", 1))
	a.Equal("/tmp/backup0042.odin", PartPath("/tmp/backup.odin", 42))
}

func TestFileRollsOnTargetSize(t *testing.T) {
	a := assert.New(t)
	base := filepath.Join(t.TempDir(), "img.odin")

	f, err := OpenForWrite(base, 8)
	a.NoError(err)

	_, err = f.Write([]byte("12345678")) // exactly fills part 0
	a.NoError(err)
	_, err = f.Write([]byte("abcdefgh")) // should roll to part 1
	a.NoError(err)
	a.NoError(f.Close())

	a.FileExists(base)
	a.FileExists(PartPath(base, 1))
	a.Equal(2, f.PartCount())
}

func TestFileReadRollsAcrossParts(t *testing.T) {
	a := assert.New(t)
	base := filepath.Join(t.TempDir(), "img.odin")

	a.NoError(os.WriteFile(base, []byte("hello "), 0644))
	a.NoError(os.WriteFile(PartPath(base, 1), []byte("world"), 0644))

	f, err := OpenForRead(base, nil)
	a.NoError(err)
	defer f.Close()

	all, err := io.ReadAll(f)
	a.NoError(err)
	a.Equal("hello world", string(all))
}

func TestFileReadMissingPartInvokesHandler(t *testing.T) {
	a := assert.New(t)
	base := filepath.Join(t.TempDir(), "img.odin")
	substitute := filepath.Join(t.TempDir(), "substitute.odin")

	a.NoError(os.WriteFile(base, []byte("part-zero-"), 0644))
	a.NoError(os.WriteFile(substitute, []byte("substitute-part"), 0644))

	called := false
	f, err := OpenForRead(base, func(expectedPath string, partIndex int) (string, bool) {
		called = true
		a.Equal(1, partIndex)
		return substitute, true
	})
	a.NoError(err)
	defer f.Close()

	all, err := io.ReadAll(f)
	a.NoError(err)
	a.True(called)
	a.Equal("part-zero-substitute-part", string(all))
}

func TestFileReadMissingPartDeclinedFails(t *testing.T) {
	a := assert.New(t)
	base := filepath.Join(t.TempDir(), "img.odin")
	a.NoError(os.WriteFile(base, []byte("only-part"), 0644))

	f, err := OpenForRead(base, func(expectedPath string, partIndex int) (string, bool) {
		return "", false
	})
	a.NoError(err)
	defer f.Close()

	_, err = io.ReadAll(f)
	a.Error(err)
}

func TestFileFirstWriteExceedingTargetFailsWithChunkSizeTooSmall(t *testing.T) {
	a := assert.New(t)
	base := filepath.Join(t.TempDir(), "img.odin")

	f, err := OpenForWrite(base, 4)
	a.NoError(err)
	defer f.Close()

	_, err = f.Write([]byte("too-big-for-one-part"))
	a.Error(err)
}
