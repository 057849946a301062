// Package channel provides the elastic buffered channel used to fan
// conversion progress out to subscribers without stalling the pipeline.
package channel

import (
	"sync"
	"sync/atomic"
)

const defaultGrowFactor = 2.0

// Config sizes an elastic channel. The buffer starts at InitialSize and
// grows by GrowFactor when a send finds it full, up to MaxSize. Once at
// MaxSize further sends that find the buffer full are dropped.
type Config struct {
	InitialSize int     `json:"initial_size"`
	MaxSize     int     `json:"max_size"`
	GrowFactor  float64 `json:"grow_factor"`
}

// DefaultConfig returns the sizing used for progress subscribers: small
// enough to stay cheap per connection, large enough to absorb a burst of
// pipeline events while the reader catches up.
func DefaultConfig() Config {
	return Config{
		InitialSize: 16,
		MaxSize:     256,
		GrowFactor:  defaultGrowFactor,
	}
}

// ElasticChannel is a buffered channel that grows under send pressure
// instead of blocking the sender. Sends never block: when the buffer is
// full it is enlarged once, and if still full (or already at MaxSize)
// the value is dropped and counted.
type ElasticChannel[T any] struct {
	config Config

	mu   sync.RWMutex
	ch   chan T
	size int

	sent    atomic.Int64
	dropped atomic.Int64
	grows   atomic.Int64
}

// NewElasticChannel creates an elastic channel. Zero or inconsistent
// config fields fall back to DefaultConfig values.
func NewElasticChannel[T any](cfg Config) *ElasticChannel[T] {
	def := DefaultConfig()
	if cfg.InitialSize <= 0 {
		cfg.InitialSize = def.InitialSize
	}
	if cfg.MaxSize < cfg.InitialSize {
		cfg.MaxSize = cfg.InitialSize
	}
	if cfg.GrowFactor <= 1 {
		cfg.GrowFactor = def.GrowFactor
	}

	return &ElasticChannel[T]{
		config: cfg,
		ch:     make(chan T, cfg.InitialSize),
		size:   cfg.InitialSize,
	}
}

// TrySend delivers v without blocking. When the buffer is full it grows
// once and retries; a false return means the value was dropped.
func (c *ElasticChannel[T]) TrySend(v T) bool {
	if c.trySend(v) {
		return true
	}
	if c.grow() && c.trySend(v) {
		return true
	}
	c.dropped.Add(1)
	return false
}

// trySend attempts a non-blocking send while holding the read lock, so
// grow cannot swap the buffer out from under an in-flight send.
func (c *ElasticChannel[T]) trySend(v T) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	select {
	case c.ch <- v:
		c.sent.Add(1)
		return true
	default:
		return false
	}
}

// TryReceive attempts a non-blocking receive.
func (c *ElasticChannel[T]) TryReceive() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	select {
	case v := <-c.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Chan returns the current buffer for use in select statements. The
// buffer is replaced when the channel grows, so callers must re-acquire
// it on every select iteration rather than caching it.
func (c *ElasticChannel[T]) Chan() <-chan T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

// Len returns the number of buffered values.
func (c *ElasticChannel[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ch)
}

// Cap returns the current buffer capacity.
func (c *ElasticChannel[T]) Cap() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Sent returns the number of values delivered into the buffer.
func (c *ElasticChannel[T]) Sent() int64 {
	return c.sent.Load()
}

// Dropped returns the number of values discarded because the buffer was
// full at MaxSize.
func (c *ElasticChannel[T]) Dropped() int64 {
	return c.dropped.Load()
}

// grow enlarges the buffer by GrowFactor, moving buffered values into
// the replacement. Returns false when the buffer is already at MaxSize.
func (c *ElasticChannel[T]) grow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size >= c.config.MaxSize {
		return false
	}

	newSize := int(float64(c.size) * c.config.GrowFactor)
	if newSize <= c.size {
		newSize = c.size + 1
	}
	if newSize > c.config.MaxSize {
		newSize = c.config.MaxSize
	}

	// All sends hold the read lock, so nothing lands on the old buffer
	// while it is drained here. newSize > size keeps the copy from
	// blocking.
	next := make(chan T, newSize)
	for {
		select {
		case v := <-c.ch:
			next <- v
		default:
			c.ch = next
			c.size = newSize
			c.grows.Add(1)
			return true
		}
	}
}
