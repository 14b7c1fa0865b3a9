package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClockMonotonic(t *testing.T) {
	c := Real()
	t1 := c.Now()
	c.Sleep(time.Millisecond)
	t2 := c.Now()
	assert.True(t, t2.After(t1) || t2.Equal(t1))
}

func TestManualAdvanceFiresDueTimers(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var fired []string
	m.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	m.Advance(500 * time.Millisecond)
	assert.Empty(t, fired)

	m.Advance(time.Second)
	require.Equal(t, []string{"a"}, fired)

	m.Advance(time.Second)
	require.Equal(t, []string{"a", "b"}, fired)
}

func TestManualCancelPreventsFire(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	ct := m.AfterFunc(time.Second, func() { fired = true })
	ct.Cancel()
	m.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManualTimersFireInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []int
	m.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	m.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	m.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	m.Advance(3 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}
