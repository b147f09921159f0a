// Copyright © Microsoft <wastore@microsoft.com>
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

import "math"

// BitsPerElement is the width of one word of a Bitmap.
const BitsPerElement = 64

// Bitmap is a set of one-bit flags packed into uint64 words, indexed by
// cluster number. container's allocation map uses one bit per cluster to
// mark which clusters a backup actually wrote.
//
// The index space is capped at math.MaxUint16 bits: a volume with more
// clusters than that needs a larger cluster size before an allocation map
// can represent it with this type.
type Bitmap []uint64

// NewBitMap allocates a Bitmap with room for at least size bits, rounded up
// to the next whole word. It returns an empty Bitmap if size exceeds the
// math.MaxUint16 cap.
func NewBitMap(size int) Bitmap {
	if size > math.MaxUint16 {
		return Bitmap{}
	}

	words := math.Ceil(float64(size) / float64(BitsPerElement))
	return make(Bitmap, int(words))
}

func (b Bitmap) wordAndMask(index int) (word int, mask uint64) {
	if index >= len(b)*BitsPerElement || index < 0 {
		return 0, 0
	}
	return index / BitsPerElement, uint64(1) << (index % BitsPerElement)
}

// Test reports whether the bit at index is set.
func (b Bitmap) Test(index int) bool {
	word, mask := b.wordAndMask(index)
	return b[word]&mask != 0
}

// Set marks the bit at index.
func (b Bitmap) Set(index int) {
	word, mask := b.wordAndMask(index)
	b[word] |= mask
}

// Clear unmarks the bit at index.
func (b Bitmap) Clear(index int) {
	word, mask := b.wordAndMask(index)
	b[word] &^= mask
}

// Size returns the bitmap's capacity in bits.
func (b Bitmap) Size() int {
	return len(b) * BitsPerElement
}
