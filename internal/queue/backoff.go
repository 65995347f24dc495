package queue

import "time"

// RetryPolicy bounds how often and how fast a failing job is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   10 * time.Second,
	MaxDelay:    10 * time.Minute,
}

// Delay returns the wait before the attempt after the given one.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return Backoff(attempt, p.BaseDelay, p.MaxDelay)
}

// Backoff returns base*2^(attempt-1) capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
