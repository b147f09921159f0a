package common

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmapSetTestClear(t *testing.T) {
	a := assert.New(t)

	const numBits = 5000
	r := rand.New(rand.NewSource(1))
	bm := NewBitMap(numBits)

	m := make(map[int]bool)
	for len(m) < 10 {
		m[int(r.Int31n(numBits))] = true
	}
	testBits := make([]int, 0, len(m))
	for k := range m {
		testBits = append(testBits, k)
	}

	for _, index := range testBits {
		a.False(bm.Test(index))
	}

	for _, index := range testBits {
		bm.Set(index)
		a.True(bm.Test(index))
	}

	for i := 0; i < len(testBits); i += 2 {
		bm.Clear(testBits[i])
		a.False(bm.Test(testBits[i]))
	}
	for i := 1; i < len(testBits); i += 2 {
		a.True(bm.Test(testBits[i]))
	}
}

func TestBitmapSizeRoundsUpToElementBoundary(t *testing.T) {
	a := assert.New(t)
	a.Equal(BitsPerElement, NewBitMap(1).Size())
	a.Equal(BitsPerElement, NewBitMap(BitsPerElement).Size())
	a.Equal(2*BitsPerElement, NewBitMap(BitsPerElement+1).Size())
}

func TestBitmapOverMaxUint16RejectsSize(t *testing.T) {
	a := assert.New(t)
	bm := NewBitMap(1 << 17)
	a.Equal(0, bm.Size())
}
