// Package container implements the on-disk container format: its fixed
// binary header, the run-length allocation-map codec, and the sequential,
// splittable part-file stream (components C, D, E, I).
package container

import (
	"encoding/binary"
	"io"
	"time"
	"unicode/utf16"

	"github.com/odin-imager/odin/common"
)

// Magic identifies an odin container part 0. It is written verbatim at
// offset 0 of every container file.
var Magic = [8]byte{'O', 'D', 'I', 'N', '1', 0, 0, 0}

// CurrentHeaderVersion is the only version this build writes; ReadHeader
// accepts any version it knows how to parse (currently just this one).
const CurrentHeaderVersion uint32 = 3

const maxCommentCodeUnits = 32768

// fixedHeaderSize is the byte-exact, little-endian layout up to and
// including the comment length prefix (offset 0 through 89 inclusive); the
// comment text itself, and any padding out to DataOffset, follow.
const fixedHeaderSize = 8 /*magic*/ +
	4 /*version*/ +
	4 /*volume kind*/ +
	4 /*compression format*/ +
	4 /*cluster size*/ +
	8 /*volume size*/ +
	8 /*allocated bytes*/ +
	8 /*alloc map offset*/ +
	8 /*alloc map length*/ +
	8 /*data offset*/ +
	4 /*crc32*/ +
	8 /*creation timestamp*/ +
	4 /*part count*/ +
	8 /*part size*/ +
	2 /*comment length*/

// Header is the fixed-layout record at the start of a container's part 0.
type Header struct {
	Version           uint32
	VolumeKind        common.VolumeKind
	Compression       common.CompressionFormat
	ClusterSize       uint32
	VolumeSize        uint64
	AllocatedBytes    uint64
	AllocMapOffset    uint64
	AllocMapLength    uint64
	DataOffset        uint64
	CRC32             uint32
	CreationTimestamp time.Time
	PartCount         uint32
	PartSize          uint64
	Comment           string
}

// crc32FieldOffset is the byte offset of the CRC32 field, needed so the
// backup command can seek back and patch it in once the pipeline run
// reports the reader stage's checksum.
const crc32FieldOffset = 8 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8

// partCountFieldOffset is the byte offset of the PartCount field, patched
// once a split backup finishes and the real part count is known.
const partCountFieldOffset = crc32FieldOffset + 4 + 8

// HeaderSize returns the exact number of bytes Write emits before padding,
// i.e. fixedHeaderSize plus the UTF-16-encoded comment.
func (h *Header) HeaderSize() int64 {
	return int64(fixedHeaderSize) + int64(len(utf16.Encode([]rune(h.Comment)))*2)
}

// Write serializes the header (and comment) at the sink's current
// position, which must be offset 0 of part 0. If h.AllocMapLength is 0 it
// zero-pads straight out to h.DataOffset; otherwise it pads only up to
// h.AllocMapOffset, leaving the caller to write the AllocMapLength bytes of
// real allocation-map payload immediately afterward (by convention
// h.DataOffset == h.AllocMapOffset+h.AllocMapLength, so no further padding
// is needed once that's done). The CRC32 field is written as whatever
// h.CRC32 holds (0 for a freshly-started backup); PatchCRC32 overwrites it
// in place once the coordinator knows the real value.
func (h *Header) Write(w io.Writer) error {
	units := utf16.Encode([]rune(h.Comment))
	if len(units) > maxCommentCodeUnits {
		return common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), nil, "comment of %d UTF-16 code units exceeds the %d limit", len(units), maxCommentCodeUnits)
	}

	buf := make([]byte, 0, fixedHeaderSize+len(units)*2)
	buf = append(buf, Magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.VolumeKind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Compression))
	buf = binary.LittleEndian.AppendUint32(buf, h.ClusterSize)
	buf = binary.LittleEndian.AppendUint64(buf, h.VolumeSize)
	buf = binary.LittleEndian.AppendUint64(buf, h.AllocatedBytes)
	buf = binary.LittleEndian.AppendUint64(buf, h.AllocMapOffset)
	buf = binary.LittleEndian.AppendUint64(buf, h.AllocMapLength)
	buf = binary.LittleEndian.AppendUint64(buf, h.DataOffset)
	buf = binary.LittleEndian.AppendUint32(buf, h.CRC32)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.CreationTimestamp.Unix()))
	buf = binary.LittleEndian.AppendUint32(buf, h.PartCount)
	buf = binary.LittleEndian.AppendUint64(buf, h.PartSize)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(units)))
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}

	padTarget := h.DataOffset
	if h.AllocMapLength > 0 {
		padTarget = h.AllocMapOffset
	}
	if padTarget > uint64(len(buf)) {
		buf = append(buf, make([]byte, padTarget-uint64(len(buf)))...)
	}

	if _, err := w.Write(buf); err != nil {
		return common.NewPipelineError(common.EErrorKind.FileIO(), err, "writing container header")
	}
	return nil
}

// ReadHeader parses a header from the start of r, validating magic, version,
// and the internal offset invariants of the byte-exact layout Write emits.
// It consumes exactly up through the comment text; any padding out to
// DataOffset is left unread for the caller (the allocation map and/or volume
// data reader) to skip or interpret.
func ReadHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), err, "reading fixed header")
	}

	var magic [8]byte
	copy(magic[:], fixed[0:8])
	if magic != Magic {
		return nil, common.NewPipelineError(common.EErrorKind.HeaderMagicMismatch(), nil, "got %x, want %x", magic, Magic)
	}

	h := &Header{}
	off := 8
	h.Version = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	if h.Version != CurrentHeaderVersion {
		return nil, common.NewPipelineError(common.EErrorKind.HeaderVersionUnsupported(), nil, "version %d", h.Version)
	}
	h.VolumeKind = common.VolumeKind(binary.LittleEndian.Uint32(fixed[off:]))
	off += 4
	h.Compression = common.CompressionFormat(binary.LittleEndian.Uint32(fixed[off:]))
	off += 4
	h.ClusterSize = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	h.VolumeSize = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	h.AllocatedBytes = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	h.AllocMapOffset = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	h.AllocMapLength = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	h.DataOffset = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	h.CRC32 = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	createdUnix := binary.LittleEndian.Uint64(fixed[off:])
	h.CreationTimestamp = time.Unix(int64(createdUnix), 0).UTC()
	off += 8
	h.PartCount = binary.LittleEndian.Uint32(fixed[off:])
	off += 4
	h.PartSize = binary.LittleEndian.Uint64(fixed[off:])
	off += 8
	commentUnits := binary.LittleEndian.Uint16(fixed[off:])

	commentBytes := make([]byte, int(commentUnits)*2)
	if _, err := io.ReadFull(r, commentBytes); err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), err, "reading comment")
	}
	units := make([]uint16, commentUnits)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(commentBytes[i*2:])
	}
	h.Comment = string(utf16.Decode(units))

	if err := h.validateOffsets(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) validateOffsets() error {
	if h.AllocMapLength > 0 {
		if h.AllocMapOffset < uint64(h.HeaderSize()) {
			return common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), nil, "allocation map offset %d precedes end of header %d", h.AllocMapOffset, h.HeaderSize())
		}
		if h.DataOffset < h.AllocMapOffset+h.AllocMapLength {
			return common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), nil, "data offset %d precedes end of allocation map", h.DataOffset)
		}
	} else if h.DataOffset < uint64(h.HeaderSize()) {
		return common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), nil, "data offset %d precedes end of header %d", h.DataOffset, h.HeaderSize())
	}
	return nil
}

// PatchCRC32 seeks w (part 0, opened for read-write) back to the CRC32
// field and overwrites it in place. Called by the backup commands once the
// pipeline run has finished and reports the reader stage's checksum.
func PatchCRC32(w io.WriteSeeker, crc32 uint32) error {
	if _, err := w.Seek(crc32FieldOffset, io.SeekStart); err != nil {
		return common.NewPipelineError(common.EErrorKind.FileIO(), err, "seeking to CRC32 field")
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], crc32)
	if _, err := w.Write(b[:]); err != nil {
		return common.NewPipelineError(common.EErrorKind.FileIO(), err, "writing CRC32 field")
	}
	return nil
}

// PatchPartCount seeks w (part 0, opened for read-write) back to the
// PartCount field and overwrites it in place. Called once a split backup
// finishes and container.File reports how many parts it actually created.
func PatchPartCount(w io.WriteSeeker, partCount uint32) error {
	if _, err := w.Seek(partCountFieldOffset, io.SeekStart); err != nil {
		return common.NewPipelineError(common.EErrorKind.FileIO(), err, "seeking to part count field")
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], partCount)
	if _, err := w.Write(b[:]); err != nil {
		return common.NewPipelineError(common.EErrorKind.FileIO(), err, "writing part count field")
	}
	return nil
}
