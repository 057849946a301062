package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- GoroutinePool ---

func TestGoroutinePool_SubmitWait(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  4,
		QueueSize:   16,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestGoroutinePool_SubmitWait_TaskError(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  2,
		QueueSize:   4,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	wantErr := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	assert.Equal(t, wantErr, err)
}

func TestGoroutinePool_PanicRecovery(t *testing.T) {
	var recovered atomic.Value
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  2,
		QueueSize:   4,
		IdleTimeout: time.Second,
		PanicHandler: func(v any) {
			recovered.Store(v)
		},
	})
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("oops")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
	assert.Equal(t, "oops", recovered.Load())
}

func TestGoroutinePool_ConcurrentTasks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  8,
		QueueSize:   64,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
				counter.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(32), counter.Load())

	stats := p.Stats()
	assert.Equal(t, int64(32), stats.Submitted)
	assert.Equal(t, int64(32), stats.Completed)
}

func TestGoroutinePool_WorkerCapRespected(t *testing.T) {
	const maxWorkers = 2

	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  maxWorkers,
		QueueSize:   32,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.SubmitWait(context.Background(), func(ctx context.Context) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(maxWorkers))
}

func TestGoroutinePool_SubmitAfterClose(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.Equal(t, ErrPoolClosed, err)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestGoroutinePool_SubmitWait_ContextCancelled(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  1,
		QueueSize:   1,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	block := make(chan struct{})
	go func() {
		_ = p.SubmitWait(context.Background(), func(ctx context.Context) error {
			<-block
			return nil
		})
	}()

	// Give the blocking task time to occupy the only worker.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.SubmitWait(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}

// --- BufferPool ---

func TestBufferPool_Reuse(t *testing.T) {
	p := NewBufferPool(1024, 0)

	buf := p.Get()
	buf.WriteString("hello")
	assert.Equal(t, "hello", buf.String())
	p.Put(buf)

	// Recycled buffers come back reset.
	again := p.Get()
	assert.Equal(t, 0, again.Len())
	p.Put(again)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(0), stats.Discards)
}

func TestBufferPool_RetentionCap(t *testing.T) {
	p := NewBufferPool(64, 256)

	big := p.Get()
	big.Write(make([]byte, 1024))
	p.Put(big)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Discards)
}

func TestBufferPool_NilPut(t *testing.T) {
	p := NewBufferPool(64, 0)
	p.Put(nil)

	assert.Equal(t, int64(0), p.Stats().Discards)
}

func TestBufferPoolStats_ReuseRate(t *testing.T) {
	assert.Equal(t, 0.0, BufferPoolStats{}.ReuseRate())
	assert.Equal(t, 0.5, BufferPoolStats{Gets: 4, News: 2}.ReuseRate())
}
