// Package pool keeps reusable copy buffers.
//
// sync.Pool caches allocated but unused objects and drops them during garbage
// collection, so it suits short-lived buffers. Get prefers per-P caches, which
// keeps concurrent mirrors from contending on one lock.
package pool

import (
	"fmt"
	"math/bits"
	"sync"
)

// CopyBuffers hands out byte slices sized to the file being copied. Sizes are
// rounded up to a power of two and clamped to [min, max], so a small file
// never pins a large buffer and a large file is copied in max sized chunks.
type CopyBuffers struct {
	minExp int
	maxExp int
	pools  []sync.Pool
}

// NewCopyBuffers panics unless minSize and maxSize are powers of two with
// minSize < maxSize.
func NewCopyBuffers(minSize, maxSize int64) *CopyBuffers {
	if !isPowerOfTwo(minSize) || !isPowerOfTwo(maxSize) {
		panic(fmt.Sprintf("buffer sizes %d and %d must be powers of two", minSize, maxSize))
	}
	if maxSize <= minSize {
		panic("maxSize must be greater than minSize")
	}

	cb := &CopyBuffers{
		minExp: bits.TrailingZeros64(uint64(minSize)),
		maxExp: bits.TrailingZeros64(uint64(maxSize)),
	}
	cb.pools = make([]sync.Pool, cb.maxExp+1)
	for i := cb.minExp; i <= cb.maxExp; i++ {
		size := 1 << i
		cb.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return cb
}

// Get returns a buffer for copying a file of the given size. The buffer is
// never empty.
func (cb *CopyBuffers) Get(fileSize int64) *[]byte {
	return cb.pools[cb.bucket(fileSize)].Get().(*[]byte)
}

// Put returns a buffer obtained from Get. Foreign slices are dropped.
func (cb *CopyBuffers) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := int64(cap(*buf))
	if !isPowerOfTwo(c) {
		return
	}
	exp := bits.TrailingZeros64(uint64(c))
	if exp < cb.minExp || exp > cb.maxExp {
		return
	}
	*buf = (*buf)[:c]
	cb.pools[exp].Put(buf)
}

// BufferSize reports the length Get returns for fileSize.
func (cb *CopyBuffers) BufferSize(fileSize int64) int {
	return 1 << cb.bucket(fileSize)
}

func (cb *CopyBuffers) bucket(fileSize int64) int {
	if fileSize <= 1 {
		return cb.minExp
	}
	// Len64(n-1) is the exponent of the smallest power of two >= n.
	exp := bits.Len64(uint64(fileSize - 1))
	return min(max(exp, cb.minExp), cb.maxExp)
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
