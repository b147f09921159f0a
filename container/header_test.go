package container

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/odin-imager/odin/common"
	"github.com/stretchr/testify/assert"
)

func openReadWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

func sampleHeader(comment string) *Header {
	h := &Header{
		Version:           CurrentHeaderVersion,
		VolumeKind:        common.EVolumeKind.Partition(),
		Compression:       common.ECompressionFormat.ZStd(),
		ClusterSize:       4096,
		VolumeSize:        1 << 30,
		AllocatedBytes:    1 << 20,
		AllocMapLength:    128,
		CreationTimestamp: time.Unix(1700000000, 0).UTC(),
		PartCount:         1,
		PartSize:          0,
		Comment:           comment,
	}
	h.AllocMapOffset = uint64(h.HeaderSize())
	h.DataOffset = h.AllocMapOffset + h.AllocMapLength
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	a := assert.New(t)

	h := sampleHeader("backup of /dev/sda1")
	var buf bytes.Buffer
	a.NoError(h.Write(&buf))

	got, err := ReadHeader(&buf)
	a.NoError(err)
	a.Equal(h.Version, got.Version)
	a.Equal(h.VolumeKind, got.VolumeKind)
	a.Equal(h.Compression, got.Compression)
	a.Equal(h.ClusterSize, got.ClusterSize)
	a.Equal(h.VolumeSize, got.VolumeSize)
	a.Equal(h.AllocMapOffset, got.AllocMapOffset)
	a.Equal(h.AllocMapLength, got.AllocMapLength)
	a.Equal(h.DataOffset, got.DataOffset)
	a.Equal(h.Comment, got.Comment)
	a.Equal(h.CreationTimestamp.Unix(), got.CreationTimestamp.Unix())
}

func TestHeaderRoundTripEmptyComment(t *testing.T) {
	a := assert.New(t)

	h := sampleHeader("")
	var buf bytes.Buffer
	a.NoError(h.Write(&buf))

	got, err := ReadHeader(&buf)
	a.NoError(err)
	a.Equal("", got.Comment)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	a := assert.New(t)

	h := sampleHeader("x")
	var buf bytes.Buffer
	a.NoError(h.Write(&buf))
	corrupted := buf.Bytes()
	corrupted[0] = 'X'

	_, err := ReadHeader(bytes.NewReader(corrupted))
	a.Error(err)
	a.Equal(common.EErrorKind.HeaderMagicMismatch(), common.KindOf(err))
}

func TestHeaderRejectsUnsupportedVersion(t *testing.T) {
	a := assert.New(t)

	h := sampleHeader("x")
	h.Version = 99
	var buf bytes.Buffer
	a.NoError(h.Write(&buf))

	_, err := ReadHeader(&buf)
	a.Error(err)
	a.Equal(common.EErrorKind.HeaderVersionUnsupported(), common.KindOf(err))
}

func TestHeaderRejectsTruncatedInput(t *testing.T) {
	a := assert.New(t)

	h := sampleHeader("hello")
	var buf bytes.Buffer
	a.NoError(h.Write(&buf))
	truncated := buf.Bytes()[:10]

	_, err := ReadHeader(bytes.NewReader(truncated))
	a.Error(err)
}

func TestPatchCRC32(t *testing.T) {
	a := assert.New(t)

	path := t.TempDir() + "/part0"
	f, err := OpenForWrite(path, 0)
	a.NoError(err)
	h := sampleHeader("patchable")
	a.NoError(h.Write(f))
	a.NoError(f.Close())

	rw, err := openReadWrite(path)
	a.NoError(err)
	a.NoError(PatchCRC32(rw, 0xDEADBEEF))
	a.NoError(rw.Close())

	r, err := openReadWrite(path)
	a.NoError(err)
	defer r.Close()
	got, err := ReadHeader(r)
	a.NoError(err)
	a.Equal(uint32(0xDEADBEEF), got.CRC32)
}
