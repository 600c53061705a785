package gateway

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerKeepsLast(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var last atomic.Int32
	var runs atomic.Int32

	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Trigger(func() {
			runs.Add(1)
			last.Store(i)
		})
	}

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int32(5), last.Load())
}

func TestDebouncerFlushAndStop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var runs atomic.Int32

	d.Trigger(func() { runs.Add(1) })
	d.Flush()
	assert.Equal(t, int32(1), runs.Load())
	d.Flush()
	assert.Equal(t, int32(1), runs.Load())

	d.Trigger(func() { runs.Add(1) })
	d.Stop()
	d.Flush()
	assert.Equal(t, int32(1), runs.Load())
}

func TestDebouncerFlushWaitsForFired(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	started := make(chan struct{})
	var done atomic.Bool

	d.Trigger(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	})
	<-started
	d.Flush()
	assert.True(t, done.Load())
}
