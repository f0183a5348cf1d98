package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/onemirror/onemirror/internal/logging"
)

// Counters tracks backup progress. All methods are safe for concurrent
// use by transfer workers.
type Counters struct {
	processed        atomic.Int64
	skipped          atomic.Int64
	errors           atomic.Int64
	bytesTransferred atomic.Int64
	startedAt        time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed        int64         `json:"processed"`
	Skipped          int64         `json:"skipped"`
	Errors           int64         `json:"errors"`
	BytesTransferred int64         `json:"bytesTransferred"`
	Elapsed          time.Duration `json:"-"`
}

// NewCounters creates a started counter set.
func NewCounters() *Counters {
	return &Counters{startedAt: time.Now()}
}

func (c *Counters) AddProcessed(n int64) { c.processed.Add(n) }
func (c *Counters) AddSkipped(n int64)   { c.skipped.Add(n) }
func (c *Counters) AddErrors(n int64)    { c.errors.Add(n) }
func (c *Counters) AddBytes(n int64)     { c.bytesTransferred.Add(n) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Processed:        c.processed.Load(),
		Skipped:          c.skipped.Load(),
		Errors:           c.errors.Load(),
		BytesTransferred: c.bytesTransferred.Load(),
		Elapsed:          time.Since(c.startedAt),
	}
}

// Reset zeroes all counters and restarts the clock.
func (c *Counters) Reset() {
	c.processed.Store(0)
	c.skipped.Store(0)
	c.errors.Store(0)
	c.bytesTransferred.Store(0)
	c.startedAt = time.Now()
}

// Rate returns the average transfer rate in bytes per second.
func (s Snapshot) Rate() float64 {
	seconds := s.Elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(s.BytesTransferred) / seconds
}

// Reporter logs progress at a fixed interval until its context is
// cancelled.
type Reporter struct {
	counters *Counters
	interval time.Duration
	logger   logging.Logger
	done     chan struct{}
}

// NewReporter creates a progress reporter over the given counters.
func NewReporter(counters *Counters, interval time.Duration, logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Reporter{
		counters: counters,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run logs periodic progress lines. It returns when ctx is cancelled or
// Stop is called.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// Stop terminates a running reporter.
func (r *Reporter) Stop() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (r *Reporter) report() {
	snap := r.counters.Snapshot()
	r.logger.Info("Backup progress",
		logging.F("processed", snap.Processed),
		logging.F("skipped", snap.Skipped),
		logging.F("errors", snap.Errors),
		logging.F("transferred", humanize.Bytes(uint64(snap.BytesTransferred))),
		logging.F("rate", humanize.Bytes(uint64(snap.Rate()))+"/s"),
	)
}
