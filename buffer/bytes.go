package buffer

// Bytes tracks a payload clone that may be backed by the shared allocator.
// Call Release when the slice is no longer needed so the buffer can be
// recycled; the zero value is an empty payload.
type Bytes struct {
	data   []byte
	pooled bool
}

// Clone copies src, serving the copy out of the allocator when possible.
func Clone(src []byte) Bytes {
	size := len(src)
	if size == 0 {
		return Bytes{}
	}
	if size > 1<<maxClassBits {
		return Bytes{data: append([]byte(nil), src...)}
	}
	buf := Get(size)
	copy(buf, src)
	return Bytes{data: buf, pooled: true}
}

// Bytes returns the payload. It stays valid until Release.
func (p *Bytes) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.data
}

// Detach returns a heap copy of the payload and releases the pooled buffer.
func (p *Bytes) Detach() []byte {
	if p == nil || p.data == nil {
		return nil
	}
	out := append([]byte(nil), p.data...)
	p.Release()
	return out
}

func (p *Bytes) Release() {
	if p == nil || p.data == nil {
		return
	}
	if p.pooled {
		// Restore the slice to full capacity before returning to the allocator.
		_ = Put(p.data[:cap(p.data)])
	}
	p.data = nil
	p.pooled = false
}
