package usecase

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultNudgeMinDelay = time.Minute
	DefaultNudgeMaxDelay = 5 * time.Minute
)

// NudgeScheduler owns one single-shot timer. Arm replaces any pending timer,
// so only the most recently armed one can fire.
type NudgeScheduler struct {
	delay func() time.Duration
	fire  func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func NewNudgeScheduler(delay func() time.Duration, fire func()) *NudgeScheduler {
	if delay == nil {
		delay = UniformDelay(DefaultNudgeMinDelay, DefaultNudgeMaxDelay)
	}
	return &NudgeScheduler{delay: delay, fire: fire}
}

// UniformDelay draws delays uniformly from [min, max].
func UniformDelay(min, max time.Duration) func() time.Duration {
	return func() time.Duration {
		if max <= min {
			return min
		}
		return min + rand.N(max-min+1)
	}
}

func (s *NudgeScheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	gen := s.gen
	s.timer = time.AfterFunc(s.delay(), func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.fire()
	})
}

// Cancel stops the pending timer. It is a no-op when nothing is pending.
func (s *NudgeScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Pending reports whether a timer is armed and has not fired.
func (s *NudgeScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *NudgeScheduler) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
