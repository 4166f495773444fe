package usecase

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArmTwiceOnlyLatestFires(t *testing.T) {
	var fired atomic.Int32
	delays := []time.Duration{10 * time.Millisecond, 60 * time.Millisecond}
	var calls atomic.Int32
	s := NewNudgeScheduler(func() time.Duration {
		return delays[calls.Add(1)-1]
	}, func() { fired.Add(1) })

	s.Arm()
	s.Arm()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "first timer must be cancelled")
	assert.True(t, s.Pending())

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, s.Pending())
}

func TestCancelPreventsFiring(t *testing.T) {
	var fired atomic.Int32
	s := NewNudgeScheduler(func() time.Duration { return 10 * time.Millisecond }, func() { fired.Add(1) })

	s.Cancel() // nothing pending
	s.Arm()
	s.Cancel()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, s.Pending())
}

func TestUniformDelayStaysInRange(t *testing.T) {
	delay := UniformDelay(time.Minute, 5*time.Minute)
	for i := 0; i < 1000; i++ {
		d := delay()
		assert.GreaterOrEqual(t, d, time.Minute)
		assert.LessOrEqual(t, d, 5*time.Minute)
	}
	assert.Equal(t, time.Minute, UniformDelay(time.Minute, time.Minute)())
}
