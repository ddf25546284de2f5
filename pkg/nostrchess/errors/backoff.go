package errors

import "time"

// BackoffConfig configures the reconnect delay ramp.
//
// The delay grows linearly with the number of consecutive failures and is
// clamped to [Step, MaxDelay].
type BackoffConfig struct {
	// Step is the delay added per consecutive failure.
	Step time.Duration

	// MaxDelay is the ceiling for any computed delay.
	MaxDelay time.Duration
}

// DefaultBackoff is the standard reconnect ramp.
var DefaultBackoff = BackoffConfig{
	Step:     1 * time.Second,
	MaxDelay: 30 * time.Second,
}

// Delay returns the wait before reconnect attempt number failures.
// Computes clamp(Step*max(1,failures), Step, MaxDelay).
func (c BackoffConfig) Delay(failures int) time.Duration {
	step := c.Step
	if step <= 0 {
		step = DefaultBackoff.Step
	}
	maxDelay := c.MaxDelay
	if maxDelay < step {
		maxDelay = step
	}

	n := failures
	if n < 1 {
		n = 1
	}
	// Guard against overflow for very long failure streaks.
	if int64(n) > int64(maxDelay/step) {
		return maxDelay
	}

	d := step * time.Duration(n)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
