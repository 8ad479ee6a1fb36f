package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_Frozen(t *testing.T) {
	clock := NewFakeClockUnix(1000)

	assert.Equal(t, int64(1000), clock.Now().Unix())
	assert.Equal(t, int64(1000), clock.Now().Unix())
	assert.Equal(t, time.UTC, clock.Now().Location())
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClockUnix(0)

	got := clock.Advance(61 * time.Second)
	assert.Equal(t, int64(61), got.Unix())
	assert.Equal(t, int64(61), clock.Now().Unix())

	clock.Advance(-time.Second)
	assert.Equal(t, int64(60), clock.Now().Unix())
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClockUnix(0)
	target := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	clock.Set(target)
	assert.True(t, target.Equal(clock.Now()))
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFakeClockUnix(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), clock.Now().Unix())
}
