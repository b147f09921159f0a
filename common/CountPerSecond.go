package common

import (
	"sync/atomic"
	"time"
)

// NoCopy is embedded in types that must not be copied after first use; running
// `go vet` flags any accidental copy via its Lock method.
type NoCopy struct{}

func (*NoCopy) Lock()   {}
func (*NoCopy) Unlock() {}

func NewCountPerSecond() CountPerSecond {
	cps := countPerSecond{}
	cps.Reset()
	return &cps
}

// CountPerSecond tracks a monotonically-advancing counter (bytes copied,
// chunks verified) and reports its rate since the last Reset.
type CountPerSecond interface {
	// Add atomically adds delta to the running count and returns the new value.
	// Pass 0 to read the current value without mutating it.
	Add(delta uint64) uint64
	LatestRate() float64
	Reset()
}

type countPerSecond struct {
	_     NoCopy
	start int64 // Unix time allowing atomic update: Seconds since 1/1/1970
	count uint64
}

func (cps *countPerSecond) Add(delta uint64) uint64 {
	return atomic.AddUint64(&cps.count, delta)
}

func (cps *countPerSecond) LatestRate() float64 {
	dur := time.Since(time.Unix(atomic.LoadInt64(&cps.start), 0))
	if dur <= 0 {
		dur = 1
	}
	return float64(atomic.LoadUint64(&cps.count)) / dur.Seconds()
}

func (cps *countPerSecond) Reset() {
	atomic.StoreInt64(&cps.start, time.Now().Unix())
	atomic.StoreUint64(&cps.count, 0)
}
