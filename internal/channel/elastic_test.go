package channel

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewElasticChannel_NormalizesConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantInitial int
		wantMax     int
	}{
		{
			name:        "zero config falls back to defaults",
			cfg:         Config{},
			wantInitial: 16,
			wantMax:     256,
		},
		{
			name:        "max below initial is raised to initial",
			cfg:         Config{InitialSize: 32, MaxSize: 8, GrowFactor: 2},
			wantInitial: 32,
			wantMax:     32,
		},
		{
			name:        "explicit config kept",
			cfg:         Config{InitialSize: 4, MaxSize: 64, GrowFactor: 2},
			wantInitial: 4,
			wantMax:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewElasticChannel[int](tt.cfg)
			assert.Equal(t, tt.wantInitial, c.Cap())
			assert.Equal(t, tt.wantMax, c.config.MaxSize)
		})
	}
}

func TestElasticChannel_SendReceive(t *testing.T) {
	c := NewElasticChannel[string](Config{InitialSize: 4, MaxSize: 8, GrowFactor: 2})

	require.True(t, c.TrySend("a"))
	require.True(t, c.TrySend("b"))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(2), c.Sent())

	v, ok := c.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = c.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = c.TryReceive()
	assert.False(t, ok)
}

func TestElasticChannel_GrowsUnderPressure(t *testing.T) {
	c := NewElasticChannel[int](Config{InitialSize: 2, MaxSize: 8, GrowFactor: 2})

	// Fill the initial buffer, then keep sending: each overflow doubles
	// the capacity until MaxSize, preserving order.
	for i := 0; i < 8; i++ {
		require.True(t, c.TrySend(i), "send %d", i)
	}
	assert.Equal(t, 8, c.Cap())
	assert.Equal(t, 8, c.Len())

	for i := 0; i < 8; i++ {
		v, ok := c.TryReceive()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestElasticChannel_DropsAtMaxSize(t *testing.T) {
	c := NewElasticChannel[int](Config{InitialSize: 2, MaxSize: 2, GrowFactor: 2})

	require.True(t, c.TrySend(1))
	require.True(t, c.TrySend(2))

	assert.False(t, c.TrySend(3))
	assert.False(t, c.TrySend(4))
	assert.Equal(t, int64(2), c.Dropped())
	assert.Equal(t, 2, c.Cap())
}

func TestElasticChannel_ChanSelect(t *testing.T) {
	c := NewElasticChannel[int](DefaultConfig())
	require.True(t, c.TrySend(42))

	select {
	case v := <-c.Chan():
		assert.Equal(t, 42, v)
	default:
		t.Fatal("expected a buffered value")
	}
}

func TestElasticChannel_ConcurrentSendReceive(t *testing.T) {
	const (
		senders   = 8
		perSender = 200
	)

	c := NewElasticChannel[int](Config{InitialSize: 4, MaxSize: 4096, GrowFactor: 2})

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				c.TrySend(i)
			}
		}()
	}

	received := make(chan int, senders*perSender)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if v, ok := c.TryReceive(); ok {
				received <- v
				continue
			}
			// Drained and all sends accounted for: nothing more can arrive.
			if c.Sent()+c.Dropped() == senders*perSender && c.Len() == 0 {
				return
			}
			runtime.Gosched()
		}
	}()

	wg.Wait()
	<-done

	// Every value is either delivered or counted as dropped, never lost.
	assert.Equal(t, int64(senders*perSender), c.Sent()+c.Dropped())
	assert.Equal(t, c.Sent(), int64(len(received)))
}
