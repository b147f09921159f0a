package pipeline

import "io"

// sequentialSource adapts a strictly sequential io.Reader (a container.File
// stream) to the Source interface the reader stage expects. Container
// reads never need random access — the stream only ever advances — so
// ReadAt's offset parameter is informational only; it's not used to seek.
type sequentialSource struct {
	r io.Reader
}

// SequentialSource wraps r (e.g. a *container.File opened for read) so it
// can serve as a Reader stage's Source.
func SequentialSource(r io.Reader) Source {
	return &sequentialSource{r: r}
}

func (s *sequentialSource) ReadAt(p []byte, _ int64) (int, error) {
	return io.ReadFull(s.r, p)
}

// sequentialSink is sequentialSource's write-side counterpart, adapting a
// *container.File (or any plain io.Writer) opened for write to the Sink
// interface the writer stage expects.
type sequentialSink struct {
	w io.Writer
}

// SequentialSink wraps w (e.g. a *container.File opened for write) so it
// can serve as a Writer stage's Sink.
func SequentialSink(w io.Writer) Sink {
	return &sequentialSink{w: w}
}

func (s *sequentialSink) WriteAt(p []byte, _ int64) (int, error) {
	return s.w.Write(p)
}

// discardSink is the Sink a verify run wires up: ModeVerify never calls
// WriteAt, so this only exists to give the writer stage a non-nil sink.
type discardSink struct{}

func (discardSink) WriteAt(p []byte, _ int64) (int, error) { return len(p), nil }

// DiscardSink returns a Sink that never writes anywhere, for OperationVerify
// where the writer stage only needs to fold bytes into its running CRC-32.
func DiscardSink() Sink { return discardSink{} }
