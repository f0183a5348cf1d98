package api

import (
	"math/rand"
	"time"

	"github.com/onemirror/onemirror/internal/errors"
	"github.com/onemirror/onemirror/internal/utils"
)

// Backoff returns the delay before the next attempt. Throttling
// responses honor the server's Retry-After as a floor on the doubled
// delay; other transient failures double up to a fixed cap. Both get
// random jitter so parallel workers do not retry in lockstep.
func Backoff(base, prev time.Duration, err error) time.Duration {
	next := prev * 2
	if next <= 0 {
		next = base
	}
	if next <= 0 {
		next = time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond
	}

	maxDelay := time.Duration(utils.MaxRetryDelaySeconds) * time.Second
	if next > maxDelay {
		next = maxDelay
	}

	if graphErr, ok := err.(*errors.GraphError); ok && graphErr.Status == 429 {
		if graphErr.RetryAfter > next {
			next = graphErr.RetryAfter
		}
	}

	jitter := time.Duration(rand.Int63n(int64(utils.MaxRetryJitterMs))) * time.Millisecond
	return next + jitter
}
