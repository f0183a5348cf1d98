package throttle

import (
	"errors"
	"testing"

	"github.com/onemirror/onemirror/internal/logging"
)

type fakeSampler struct {
	cpu    float64
	memMB  uint64
	cpuErr error
	memErr error
}

func (f *fakeSampler) CPUPercent() (float64, error) {
	return f.cpu, f.cpuErr
}

func (f *fakeSampler) AvailableMemoryMB() (uint64, error) {
	return f.memMB, f.memErr
}

func newTestThrottle(maximum int, sampler Sampler) *AdaptiveThrottle {
	return New(maximum, sampler, logging.NewNoOpLogger())
}

func TestRebalance_HalvesUnderCPUPressure(t *testing.T) {
	sampler := &fakeSampler{cpu: 95, memMB: 8000}
	throttle := newTestThrottle(10, sampler)

	if got := throttle.Rebalance(); got != 5 {
		t.Errorf("Width after rebalance = %d, want 5", got)
	}
	if got := throttle.Rebalance(); got != 2 {
		t.Errorf("Width after second rebalance = %d, want 2", got)
	}
}

func TestRebalance_HalvesUnderMemoryPressure(t *testing.T) {
	sampler := &fakeSampler{cpu: 20, memMB: 500}
	throttle := newTestThrottle(8, sampler)

	if got := throttle.Rebalance(); got != 4 {
		t.Errorf("Width after rebalance = %d, want 4", got)
	}
}

func TestRebalance_NeverDropsBelowFloor(t *testing.T) {
	sampler := &fakeSampler{cpu: 99, memMB: 100}
	throttle := newTestThrottle(2, sampler)

	for i := 0; i < 5; i++ {
		throttle.Rebalance()
	}
	if got := throttle.Width(); got != 1 {
		t.Errorf("Width = %d, want floor of 1", got)
	}
}

func TestRebalance_GrowsWhenIdle(t *testing.T) {
	sampler := &fakeSampler{cpu: 95, memMB: 8000}
	throttle := newTestThrottle(10, sampler)

	throttle.Rebalance()
	throttle.Rebalance()
	if got := throttle.Width(); got != 2 {
		t.Fatalf("Width = %d, want 2", got)
	}

	sampler.cpu = 10
	if got := throttle.Rebalance(); got != 4 {
		t.Errorf("Width after growth = %d, want 4", got)
	}
}

func TestRebalance_NeverExceedsMaximum(t *testing.T) {
	sampler := &fakeSampler{cpu: 10, memMB: 8000}
	throttle := newTestThrottle(10, sampler)

	for i := 0; i < 5; i++ {
		throttle.Rebalance()
	}
	if got := throttle.Width(); got != 10 {
		t.Errorf("Width = %d, want cap of 10", got)
	}
}

func TestRebalance_HoldsInMiddleBand(t *testing.T) {
	sampler := &fakeSampler{cpu: 60, memMB: 2000}
	throttle := newTestThrottle(10, sampler)

	if got := throttle.Rebalance(); got != 10 {
		t.Errorf("Width = %d, want unchanged 10", got)
	}
}

func TestRebalance_SampleErrorKeepsWidth(t *testing.T) {
	sampler := &fakeSampler{cpuErr: errors.New("no procfs")}
	throttle := newTestThrottle(6, sampler)

	if got := throttle.Rebalance(); got != 6 {
		t.Errorf("Width = %d, want unchanged 6", got)
	}
}
