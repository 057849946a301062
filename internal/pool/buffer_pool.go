package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// BufferPool recycles byte buffers used as export scratch space. Buffers
// grown past the retention cap are dropped on Put so a single oversized
// model does not pin memory for the life of the process.
type BufferPool struct {
	pool      sync.Pool
	maxRetain int

	gets     atomic.Int64
	news     atomic.Int64
	discards atomic.Int64
}

// NewBufferPool creates a pool whose fresh buffers start at initialCap
// bytes. maxRetain bounds the capacity of buffers kept for reuse; zero
// disables the cap.
func NewBufferPool(initialCap, maxRetain int) *BufferPool {
	p := &BufferPool{maxRetain: maxRetain}
	p.pool.New = func() any {
		p.news.Add(1)
		return bytes.NewBuffer(make([]byte, 0, initialCap))
	}
	return p
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	p.gets.Add(1)
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets b and returns it to the pool, unless it outgrew the
// retention cap. Callers must not touch b afterwards.
func (p *BufferPool) Put(b *bytes.Buffer) {
	if b == nil {
		return
	}
	if p.maxRetain > 0 && b.Cap() > p.maxRetain {
		p.discards.Add(1)
		return
	}
	b.Reset()
	p.pool.Put(b)
}

// Stats returns pool counters.
func (p *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		Gets:     p.gets.Load(),
		News:     p.news.Load(),
		Discards: p.discards.Load(),
	}
}

// BufferPoolStats counts buffer pool activity.
type BufferPoolStats struct {
	Gets     int64 `json:"gets"`
	News     int64 `json:"news"`
	Discards int64 `json:"discards"`
}

// ReuseRate reports the share of Gets served by a recycled buffer.
func (s BufferPoolStats) ReuseRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}
