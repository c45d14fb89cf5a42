package webhooks

import "time"

// RetryPolicy decides how long a failed delivery waits before it is due again.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// TableRetryPolicy walks a fixed delay ladder: attempt n waits Delays[n-1],
// and attempts past the end of the ladder hold at the last rung.
type TableRetryPolicy struct {
	Delays []time.Duration
}

// DefaultRetryPolicy spaces retries at 1s, 5s, 30s, 2m, 10m, then hourly.
func DefaultRetryPolicy() TableRetryPolicy {
	return TableRetryPolicy{
		Delays: []time.Duration{
			time.Second,
			5 * time.Second,
			30 * time.Second,
			2 * time.Minute,
			10 * time.Minute,
			time.Hour,
		},
	}
}

func (p TableRetryPolicy) NextDelay(attempt int) time.Duration {
	delays := p.Delays
	if len(delays) == 0 {
		delays = DefaultRetryPolicy().Delays
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(delays) {
		attempt = len(delays)
	}
	return delays[attempt-1]
}

var _ RetryPolicy = TableRetryPolicy{}
