package chunk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueRoundTrip(t *testing.T) {
	a := assert.New(t)
	q := NewQueue(2, 64, 0)
	ctx := context.Background()

	c, err := q.GetEmpty(ctx)
	a.NoError(err)
	a.Equal(64, cap(c.Buf))

	copy(c.Buf, []byte("hello"))
	c.Len = 5
	c.Offset = 128
	a.NoError(q.PutFilled(ctx, c))

	got, err := q.TakeFilled(ctx)
	a.NoError(err)
	a.Equal(int64(128), got.Offset)
	a.Equal("hello", string(got.Buf[:got.Len]))

	q.PutEmpty(got)
	c2, err := q.GetEmpty(ctx)
	a.NoError(err)
	a.Equal(0, c2.Len) // reset on checkout
}

func TestQueueBoundedDepth(t *testing.T) {
	a := assert.New(t)
	q := NewQueue(1, 16, 0)
	ctx := context.Background()

	c, err := q.GetEmpty(ctx)
	a.NoError(err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = q.GetEmpty(ctxTimeout) // depth is 1 and it's checked out, so this must block until ctx fires
	a.Error(err)

	q.PutEmpty(c)
	c2, err := q.GetEmpty(ctx)
	a.NoError(err)
	a.NotNil(c2)
}

func TestQueueCloseDrains(t *testing.T) {
	a := assert.New(t)
	q := NewQueue(1, 16, 0)
	ctx := context.Background()

	c, err := q.GetEmpty(ctx)
	a.NoError(err)
	c.Len = 1
	a.NoError(q.PutFilled(ctx, c))
	q.Close()

	got, err := q.TakeFilled(ctx)
	a.NoError(err)
	a.NotNil(got)

	done, err := q.TakeFilled(ctx)
	a.NoError(err)
	a.Nil(done)
}

func TestMemoryLimitedQueueRejectsOverCapacity(t *testing.T) {
	a := assert.New(t)
	q := NewQueue(4, 1024, 2048) // room for exactly 2 chunks at a time
	ctx := context.Background()

	c1, err := q.GetEmpty(ctx)
	a.NoError(err)
	c2, err := q.GetEmpty(ctx)
	a.NoError(err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = q.GetEmpty(ctxTimeout)
	a.Error(err)

	q.PutEmpty(c1)
	q.PutEmpty(c2)
}
