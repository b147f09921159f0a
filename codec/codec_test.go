package codec

import (
	"context"
	"math/rand"
	"testing"

	"github.com/odin-imager/odin/chunk"
	"github.com/odin-imager/odin/common"
	"github.com/stretchr/testify/assert"
)

func drainToBytes(t *testing.T, ctx context.Context, q *chunk.Queue) []byte {
	t.Helper()
	var out []byte
	for {
		c, err := q.TakeFilled(ctx)
		if err != nil {
			t.Fatalf("TakeFilled: %v", err)
		}
		if c == nil {
			return out
		}
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		out = append(out, c.Buf[:c.Len]...)
		eos := c.EndOfStream
		q.PutEmpty(c)
		if eos {
			return out
		}
	}
}

func feedBytes(t *testing.T, ctx context.Context, q *chunk.Queue, data []byte, chunkSize int) {
	t.Helper()
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		c, err := q.GetEmpty(ctx)
		if err != nil {
			t.Fatalf("GetEmpty: %v", err)
		}
		copy(c.Buf, data[:n])
		c.Len = n
		data = data[n:]
		c.EndOfStream = len(data) == 0
		if err := q.PutFilled(ctx, c); err != nil {
			t.Fatalf("PutFilled: %v", err)
		}
	}
}

func roundTrip(t *testing.T, format common.CompressionFormat, payload []byte) []byte {
	t.Helper()
	ctx := context.Background()

	in := chunk.NewQueue(4, 4096, 0)
	compressed := chunk.NewQueue(4, 4096, 0)

	go func() {
		feedBytes(t, ctx, in, payload, 4096)
		in.Close()
	}()
	done := make(chan struct{})
	var compressedBytes []byte
	go func() {
		compressedBytes = drainToBytes(t, ctx, compressed)
		close(done)
	}()
	RunCompress(ctx, format, DefaultLevel, in, compressed)
	<-done

	reIn := chunk.NewQueue(4, 4096, 0)
	out := chunk.NewQueue(4, 4096, 0)
	go func() {
		feedBytes(t, ctx, reIn, compressedBytes, 4096)
		reIn.Close()
	}()
	doneOut := make(chan struct{})
	var result []byte
	go func() {
		result = drainToBytes(t, ctx, out)
		close(doneOut)
	}()
	RunDecompress(ctx, format, reIn, out)
	<-doneOut

	return result
}

func TestCodecRoundTripAllFormats(t *testing.T) {
	a := assert.New(t)

	r := rand.New(rand.NewSource(1))
	payload := make([]byte, 200*1024)
	r.Read(payload)

	formats := []common.CompressionFormat{
		common.ECompressionFormat.GZip(),
		common.ECompressionFormat.BZip2(),
		common.ECompressionFormat.LZ4(),
		common.ECompressionFormat.LZ4HC(),
		common.ECompressionFormat.ZStd(),
	}
	for _, f := range formats {
		got := roundTrip(t, f, payload)
		a.Equal(payload, got, "format %v", f)
	}
}

func TestCodecRoundTripEmptyPayload(t *testing.T) {
	a := assert.New(t)
	got := roundTrip(t, common.ECompressionFormat.ZStd(), nil)
	a.Empty(got)
}
