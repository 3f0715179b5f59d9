package httpio

import "time"

// minPollWindow is the shortest deadline handed to a descriptor-less
// connection for a non-blocking poll.
const minPollWindow = time.Millisecond

func deadline(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Time{}
	}
	return time.Now().Add(max(timeout, minPollWindow))
}

func setDeadline(set func(time.Time) error, timeout time.Duration) {
	_ = set(deadline(timeout))
}
