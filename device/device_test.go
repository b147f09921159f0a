package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenRegularFileProbesSizeAndClusterSize(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "volume.img")
	a.NoError(os.WriteFile(path, make([]byte, 8192), 0644))

	s, err := Open(path, OpenOptions{})
	a.NoError(err)
	defer s.Close()

	a.Equal(int64(8192), s.Size())
	a.True(s.ClusterSize() > 0)
}

func TestReadAtWriteAtRoundTrip(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "volume.img")
	a.NoError(os.WriteFile(path, make([]byte, 4096), 0644))

	s, err := Open(path, OpenOptions{})
	a.NoError(err)
	defer s.Close()

	payload := []byte("odin-block-content")
	_, err = s.WriteAt(payload, 512)
	a.NoError(err)

	readBack := make([]byte, len(payload))
	_, err = s.ReadAt(readBack, 512)
	a.NoError(err)
	a.Equal(payload, readBack)
}

func TestReadOnlyRejectsWrite(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "volume.img")
	a.NoError(os.WriteFile(path, make([]byte, 4096), 0644))

	s, err := Open(path, OpenOptions{ReadOnly: true})
	a.NoError(err)
	defer s.Close()

	_, err = s.WriteAt([]byte("x"), 0)
	a.Error(err)
}

func TestIsAligned(t *testing.T) {
	a := assert.New(t)
	a.True(IsAligned(4096, 4096, 4096))
	a.False(IsAligned(100, 4096, 4096))
	a.True(IsAligned(0, 0, 0))
}
