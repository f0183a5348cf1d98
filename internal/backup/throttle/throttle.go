package throttle

import (
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/utils"
)

// Sampler reports host resource usage for throttle decisions.
type Sampler interface {
	CPUPercent() (float64, error)
	AvailableMemoryMB() (uint64, error)
}

type systemSampler struct{}

func (systemSampler) CPUPercent() (float64, error) {
	percents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

func (systemSampler) AvailableMemoryMB() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available / (1024 * 1024), nil
}

// NewSystemSampler returns a sampler backed by host metrics.
func NewSystemSampler() Sampler {
	return systemSampler{}
}

// AdaptiveThrottle adjusts the parallel transfer width between batches
// based on host pressure. Width never drops below the floor and never
// exceeds the configured maximum.
type AdaptiveThrottle struct {
	width   atomic.Int64
	maximum int64
	sampler Sampler
	logger  logging.Logger
}

// New creates a throttle starting at and capped by maximum.
func New(maximum int, sampler Sampler, logger logging.Logger) *AdaptiveThrottle {
	if maximum < utils.MinThrottleWidth {
		maximum = utils.MinThrottleWidth
	}
	if sampler == nil {
		sampler = NewSystemSampler()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	t := &AdaptiveThrottle{
		maximum: int64(maximum),
		sampler: sampler,
		logger:  logger,
	}
	t.width.Store(int64(maximum))
	return t
}

// Width returns the current parallel transfer width.
func (t *AdaptiveThrottle) Width() int {
	return int(t.width.Load())
}

// Rebalance samples host pressure and adjusts width: halve under
// pressure, grow when comfortably idle, hold otherwise. Returns the
// width to use for the next batch. Sampling failures keep the current
// width.
func (t *AdaptiveThrottle) Rebalance() int {
	cpuPercent, err := t.sampler.CPUPercent()
	if err != nil {
		t.logger.Debug("CPU sample failed", logging.F("error", err.Error()))
		return t.Width()
	}
	availableMB, err := t.sampler.AvailableMemoryMB()
	if err != nil {
		t.logger.Debug("Memory sample failed", logging.F("error", err.Error()))
		return t.Width()
	}

	current := t.width.Load()
	next := current

	switch {
	case cpuPercent > utils.HighCPUPercent || availableMB < utils.LowMemoryMB:
		next = current / 2
		if next < utils.MinThrottleWidth {
			next = utils.MinThrottleWidth
		}
	case cpuPercent < utils.LowCPUPercent && availableMB > utils.HighMemoryMB:
		next = current + utils.ThrottleIncrease
		if next > t.maximum {
			next = t.maximum
		}
	}

	if next != current {
		t.width.Store(next)
		t.logger.Info("Adjusted transfer width",
			logging.F("from", current),
			logging.F("to", next),
			logging.F("cpuPercent", cpuPercent),
			logging.F("availableMB", availableMB),
		)
	}

	return int(next)
}
