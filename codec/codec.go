package codec

import (
	"compress/gzip"
	"context"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/odin-imager/odin/chunk"
	"github.com/odin-imager/odin/common"
	"github.com/pierrec/lz4/v4"
)

// DefaultLevel is the compression level used when a session doesn't
// override it, for both gzip ([1,9]) and zstd ([1,22]).
const DefaultLevel = 6

// ClampZstdLevel enforces the [1,22] range a caller-supplied zstd level must
// fall within.
func ClampZstdLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 22 {
		return 22
	}
	return level
}

// ClampGzipLevel enforces the [1,9] range (gzip.BestSpeed..gzip.BestCompression)
// a caller-supplied gzip level must fall within.
func ClampGzipLevel(level int) int {
	if level < gzip.BestSpeed {
		return gzip.BestSpeed
	}
	if level > gzip.BestCompression {
		return gzip.BestCompression
	}
	return level
}

// zstdEncoderLevel maps the conventional 1-22 zstd compression level scale
// onto the library's coarser four-step EncoderLevel, since the streaming
// encoder only exposes speed/ratio tiers rather than the full zstd range.
func zstdEncoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// RunCompress drains input, compresses it in format at the given level, and
// writes the compressed bytes to output, until input reaches EndOfStream or
// an error occurs. level follows the conventional 1-9 gzip / 1-22 zstd
// scales (see ClampGzipLevel/ClampZstdLevel); it's ignored by formats that
// don't expose a level knob. On error it propagates an Err-carrying chunk to
// output so the writer stage observes the failure instead of silently
// truncating.
func RunCompress(ctx context.Context, format common.CompressionFormat, level int, input, output *chunk.Queue) {
	defer input.Close()

	qr := newQueueReader(ctx, input)
	qw := newQueueWriter(ctx, output)

	var cw io.WriteCloser
	var err error
	switch format {
	case common.ECompressionFormat.GZip():
		cw, err = gzip.NewWriterLevel(qw, ClampGzipLevel(level))
	case common.ECompressionFormat.BZip2():
		cw, err = bzip2.NewWriter(qw, &bzip2.WriterConfig{Level: 9})
	case common.ECompressionFormat.LZ4(), common.ECompressionFormat.LZ4HC():
		w := lz4.NewWriter(qw)
		l := lz4.Level1
		if format == common.ECompressionFormat.LZ4HC() {
			l = lz4.Level9
		}
		err = w.Apply(lz4.BlockSizeOption(lz4.Block64Kb), lz4.ChecksumOption(true), lz4.CompressionLevelOption(l))
		cw = w
	case common.ECompressionFormat.ZStd():
		w, werr := zstd.NewWriter(qw, zstd.WithEncoderLevel(zstdEncoderLevel(ClampZstdLevel(level))))
		cw, err = w, werr
	default:
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Compression(), nil, "unsupported compression format %v", format))
		return
	}
	if err != nil {
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Compression(), err, "initializing %v encoder", format))
		return
	}

	if _, copyErr := io.Copy(cw, qr); copyErr != nil {
		cw.Close()
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Compression(), copyErr, "%v compress", format))
		return
	}
	if closeErr := cw.Close(); closeErr != nil {
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Compression(), closeErr, "%v encoder flush", format))
		return
	}
	if err := qw.Close(); err != nil {
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Compression(), err, "%v flush to downstream queue", format))
	}
}

// RunDecompress is RunCompress's mirror image: it reads compressed bytes
// from input and writes the decompressed stream to output.
func RunDecompress(ctx context.Context, format common.CompressionFormat, input, output *chunk.Queue) {
	defer input.Close()

	qr := newQueueReader(ctx, input)
	qw := newQueueWriter(ctx, output)

	var cr io.Reader
	var closer io.Closer
	var err error
	switch format {
	case common.ECompressionFormat.GZip():
		gr, gerr := gzip.NewReader(qr)
		cr, closer, err = gr, gr, gerr
	case common.ECompressionFormat.BZip2():
		br, berr := bzip2.NewReader(qr, nil)
		cr, closer, err = br, br, berr
	case common.ECompressionFormat.LZ4(), common.ECompressionFormat.LZ4HC():
		cr = lz4.NewReader(qr)
	case common.ECompressionFormat.ZStd():
		zr, zerr := zstd.NewReader(qr)
		cr, err = zr, zerr
		if zr != nil {
			closer = ioCloserFunc(zr.Close)
		}
	default:
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Decompression(), nil, "unsupported compression format %v", format))
		return
	}
	if err != nil {
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Decompression(), err, "initializing %v decoder", format))
		return
	}
	if closer != nil {
		defer closer.Close()
	}

	if _, copyErr := io.Copy(qw, cr); copyErr != nil {
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Decompression(), copyErr, "%v decompress", format))
		return
	}
	if err := qw.Close(); err != nil {
		fail(ctx, output, common.NewPipelineError(common.EErrorKind.Decompression(), err, "%v flush to downstream queue", format))
	}
}

// ioCloserFunc adapts a bare func() (e.g. zstd.Decoder.Close, which
// has no error return) to io.Closer.
type ioCloserFunc func()

func (f ioCloserFunc) Close() error {
	f()
	return nil
}
