// Package buffer provides a pool of []byte.
package buffer

import (
	"errors"
	"math/bits"
	"sync"
)

const (
	minClassBits = 6  // 64 B
	maxClassBits = 16 // 64 KiB
)

var errInvalidBuffer = errors.New("buffer: cap is not a pooled size class")

var _allocator = newAllocator()

// Get gets a []byte from default allocator with most appropriate cap.
// Sizes above 64 KiB are allocated directly and never pooled.
func Get(size int) []byte {
	return _allocator.get(size)
}

// Put returns a []byte to default allocator for future use.
func Put(buf []byte) error {
	return _allocator.put(buf)
}

type allocator struct {
	classes [maxClassBits - minClassBits + 1]sync.Pool
}

func newAllocator() *allocator {
	a := &allocator{}
	for i := range a.classes {
		size := 1 << (minClassBits + i)
		a.classes[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return a
}

func classFor(size int) int {
	if size <= 1<<minClassBits {
		return 0
	}
	return bits.Len(uint(size-1)) - minClassBits
}

func (a *allocator) get(size int) []byte {
	if size < 0 {
		return nil
	}
	if size > 1<<maxClassBits {
		return make([]byte, size)
	}
	bp := a.classes[classFor(size)].Get().(*[]byte)
	return (*bp)[:size]
}

func (a *allocator) put(buf []byte) error {
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 || c < 1<<minClassBits || c > 1<<maxClassBits {
		return errInvalidBuffer
	}
	buf = buf[:c]
	a.classes[classFor(c)].Put(&buf)
	return nil
}
