package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsBurstThenRejects(t *testing.T) {
	l := New(10, time.Minute)
	defer l.Stop()

	now := time.Now()
	for i := 0; i < 10; i++ {
		assert.True(t, l.AllowAt("1.2.3.4", now), "request %d", i+1)
	}
	assert.False(t, l.AllowAt("1.2.3.4", now))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	now := time.Now()
	assert.True(t, l.AllowAt("a", now))
	assert.False(t, l.AllowAt("a", now))
	assert.True(t, l.AllowAt("b", now))
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_Refills(t *testing.T) {
	l := New(10, time.Minute)
	defer l.Stop()

	now := time.Now()
	for i := 0; i < 10; i++ {
		l.AllowAt("k", now)
	}
	assert.False(t, l.AllowAt("k", now.Add(time.Second)))
	assert.True(t, l.AllowAt("k", now.Add(7*time.Second)))
	assert.False(t, l.AllowAt("k", now.Add(7*time.Second)))
}

func TestLimiter_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	l := New(10, time.Minute)
	defer l.Stop()

	now := time.Now()
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.AllowAt("shared", now) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestLimiter_CleanupDropsIdleKeys(t *testing.T) {
	l := New(5, time.Minute)
	defer l.Stop()

	now := time.Now()
	l.AllowAt("old", now.Add(-time.Hour))
	l.AllowAt("fresh", now)

	l.cleanup(now)
	assert.Equal(t, 1, l.Len())
}

func TestNew_ClampsInvalidInput(t *testing.T) {
	l := New(0, 0)
	defer l.Stop()

	now := time.Now()
	assert.True(t, l.AllowAt("k", now))
	assert.False(t, l.AllowAt("k", now))
	l.Stop()
}
