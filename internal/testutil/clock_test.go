package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointerClock_StartsAtStart(t *testing.T) {
	clock := NewPointerClock(1000)
	assert.Equal(t, int64(1000), clock.Now())
}

func TestPointerClock_Advance(t *testing.T) {
	clock := NewPointerClock(0)

	assert.Equal(t, int64(100), clock.Advance(100))
	assert.Equal(t, int64(350), clock.Advance(250))
	assert.Equal(t, int64(350), clock.Now())
}

func TestPointerClock_NegativeAdvanceIgnored(t *testing.T) {
	clock := NewPointerClock(10)
	clock.Advance(5)

	assert.Equal(t, int64(15), clock.Advance(-100))
}

func TestPointerClock_Reset(t *testing.T) {
	clock := NewPointerClock(7)
	clock.Advance(3)
	clock.Reset()

	assert.Equal(t, int64(7), clock.Now())
}

func TestPointerClock_ThreadSafe(t *testing.T) {
	clock := NewPointerClock(0)
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range calls {
				clock.Advance(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*calls), clock.Now())
}
