package router

import "time"

// RetryPolicy bounds how often and how long a command is retried after
// transient replies and connection failures.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration

	// MaxElapsed caps the total time since the command was submitted.
	// Zero means no cap beyond the command's context.
	MaxElapsed time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  500 * time.Millisecond,
		MaxElapsed:  10 * time.Second,
	}
}

// Backoff returns the delay before the given attempt, starting at 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.MinBackoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// exhausted reports whether a command that has made attempts attempts
// since started may not be retried again.
func (p RetryPolicy) exhausted(attempts int, started time.Time) bool {
	if attempts > p.MaxAttempts {
		return true
	}
	return p.MaxElapsed > 0 && time.Since(started) > p.MaxElapsed
}
