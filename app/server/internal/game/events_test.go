package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueFireOrder(t *testing.T) {
	q := newEventQueue()
	base := time.Now()

	var fired []int
	q.Add(eventJackout, func() { fired = append(fired, 2) }, base.Add(2*time.Second))
	q.Add(eventJackout, func() { fired = append(fired, 1) }, base.Add(time.Second))
	q.Add(eventJackout, func() { fired = append(fired, 3) }, base.Add(3*time.Second))

	// 未到期不触发
	q.Fire(base)
	assert.Empty(t, fired)

	q.Fire(base.Add(1500 * time.Millisecond))
	assert.Equal(t, []int{1}, fired)

	q.Fire(base.Add(time.Hour))
	assert.Equal(t, []int{1, 2, 3}, fired)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueCancel(t *testing.T) {
	q := newEventQueue()
	base := time.Now()

	fired := false
	q.Add(eventJackout, func() { fired = true }, base)

	assert.Equal(t, 1, q.Cancel(eventJackout))
	assert.Equal(t, 0, q.Cancel(eventJackout))

	q.Fire(base.Add(time.Minute))
	assert.False(t, fired)
}
