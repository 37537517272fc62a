package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls, last int32
	for i := int32(1); i <= 5; i++ {
		v := i
		d.Debounce(func() {
			atomic.AddInt32(&calls, 1)
			atomic.StoreInt32(&last, v)
		})
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(5), atomic.LoadInt32(&last))
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	assert.False(t, d.Cancel())

	var calls int32
	d.Debounce(func() { atomic.AddInt32(&calls, 1) })
	assert.True(t, d.Cancel())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDebouncer_StopIgnoresLaterCalls(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()

	var calls int32
	d.Debounce(func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
