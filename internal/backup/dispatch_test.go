package backup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onemirror/onemirror/internal/backup/throttle"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
)

type steadySampler struct {
	calls atomic.Int64
}

func (s *steadySampler) CPUPercent() (float64, error) {
	s.calls.Add(1)
	return 60, nil // middle band, width holds
}

func (s *steadySampler) AvailableMemoryMB() (uint64, error) {
	return 2000, nil
}

func makeJobs(n int) []types.TransferJob {
	jobs := make([]types.TransferJob, n)
	for i := range jobs {
		jobs[i] = types.TransferJob{RemoteID: fmt.Sprintf("id-%d", i), RelativePath: fmt.Sprintf("file-%d", i)}
	}
	return jobs
}

func TestParallelDispatcher_RunsAllJobs(t *testing.T) {
	sampler := &steadySampler{}
	dispatcher := NewParallelDispatcher(throttle.New(4, sampler, logging.NewNoOpLogger()), 5)

	var mu sync.Mutex
	seen := make(map[string]bool)

	err := dispatcher.Dispatch(context.Background(), makeJobs(12), func(job types.TransferJob) {
		mu.Lock()
		seen[job.RemoteID] = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(seen) != 12 {
		t.Errorf("Handled %d jobs, want 12", len(seen))
	}
}

func TestParallelDispatcher_RebalancesPerBatch(t *testing.T) {
	sampler := &steadySampler{}
	dispatcher := NewParallelDispatcher(throttle.New(4, sampler, logging.NewNoOpLogger()), 5)

	err := dispatcher.Dispatch(context.Background(), makeJobs(12), func(types.TransferJob) {})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// 12 jobs in batches of 5 makes 3 batches, one sample each.
	if got := sampler.calls.Load(); got != 3 {
		t.Errorf("Sampler calls = %d, want 3", got)
	}
}

func TestParallelDispatcher_RespectsWidth(t *testing.T) {
	sampler := &steadySampler{}
	dispatcher := NewParallelDispatcher(throttle.New(3, sampler, logging.NewNoOpLogger()), 20)

	var active, peak atomic.Int64
	err := dispatcher.Dispatch(context.Background(), makeJobs(20), func(types.TransferJob) {
		now := active.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if peak.Load() > 3 {
		t.Errorf("Peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestParallelDispatcher_Cancellation(t *testing.T) {
	sampler := &steadySampler{}
	dispatcher := NewParallelDispatcher(throttle.New(2, sampler, logging.NewNoOpLogger()), 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := dispatcher.Dispatch(ctx, makeJobs(10), func(types.TransferJob) {
		t.Error("Handler should not run after cancellation")
	})
	if err != context.Canceled {
		t.Errorf("Dispatch() error = %v, want context.Canceled", err)
	}
}

func TestSequentialDispatcher_PreservesOrder(t *testing.T) {
	var order []string
	err := SequentialDispatcher{}.Dispatch(context.Background(), makeJobs(5), func(job types.TransferJob) {
		order = append(order, job.RemoteID)
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	for i, id := range order {
		if id != fmt.Sprintf("id-%d", i) {
			t.Fatalf("Order = %v", order)
		}
	}
}
