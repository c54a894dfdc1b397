package application

import "time"

// Timer is a countdown over Go's monotonic clock, immune to wall-clock
// adjustment. The zero value is expired, so a freshly declared timer
// fires on its first check.
type Timer struct {
	deadline time.Time
}

func (t *Timer) Countdown(d time.Duration) {
	t.deadline = time.Now().Add(d)
}

func (t *Timer) CountdownMS(ms int) {
	t.Countdown(time.Duration(ms) * time.Millisecond)
}

func (t *Timer) Expired() bool {
	return !time.Now().Before(t.deadline)
}

// Remaining reports the time left on the countdown, never negative.
func (t *Timer) Remaining() time.Duration {
	left := time.Until(t.deadline)
	if left < 0 {
		return 0
	}
	return left
}

func (t *Timer) RemainingMS() int {
	return int(t.Remaining() / time.Millisecond)
}
