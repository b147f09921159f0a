// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"
)

// cacheLimiterStrictLimitPercentage is the fraction of a CacheLimiter's
// Limit treated as the strict limit; the remainder is reserved for callers
// that pass useRelaxedLimit.
var cacheLimiterStrictLimitPercentage = float32(0.75)

type Predicate func() bool

// CacheLimiter bounds the number of bytes a chunk.Queue will let its pool
// hold in flight at once. The reader feeding a queue is the producer;
// whichever stage drains it (codec or writer) is the consumer. Whenever the
// producer can run faster than the consumer, something has to cap the
// backlog or RAM grows without bound — that's what CacheLimiter is for.
type CacheLimiter interface {
	TryAdd(count int64, useRelaxedLimit bool) (added bool)
	WaitUntilAdd(ctx context.Context, count int64, useRelaxedLimit Predicate) error
	Remove(count int64)
	Limit() int64
	StrictLimit() int64
}

type cacheLimiter struct {
	value int64
	limit int64
}

func NewCacheLimiter(limit int64) CacheLimiter {
	return &cacheLimiter{limit: limit}
}

// TryAdd attempts to reserve count bytes against the limit. It returns true
// if the reservation fit and was made.
func (c *cacheLimiter) TryAdd(count int64, useRelaxedLimit bool) (added bool) {
	lim := c.limit

	// Above the strict limit there's a bit of extra headroom, reserved for
	// callers that pass useRelaxedLimit.
	strict := !useRelaxedLimit
	if strict {
		lim = c.StrictLimit()
	}

	if atomic.AddInt64(&c.value, count) <= lim {
		return true
	}
	// Over the limit: immediately give back what was added and fail.
	atomic.AddInt64(&c.value, -count)
	return false
}

// WaitUntilAdd blocks, retrying on a randomized interval, until TryAdd
// succeeds or ctx is done.
func (c *cacheLimiter) WaitUntilAdd(ctx context.Context, count int64, useRelaxedLimit Predicate) error {
	for {
		if c.TryAdd(count, useRelaxedLimit()) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(2 * float32(time.Second) * rand.Float32())):
			// Randomized to avoid waiters falling into lockstep oscillation;
			// the average wait (~1s) is fine given this isn't latency-critical.
		}
	}
}

func (c *cacheLimiter) Remove(count int64) {
	atomic.AddInt64(&c.value, -count)
}

func (c *cacheLimiter) Limit() int64 {
	return c.limit
}

func (c *cacheLimiter) StrictLimit() int64 {
	return int64(float32(c.limit) * cacheLimiterStrictLimitPercentage)
}
