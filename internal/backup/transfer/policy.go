package transfer

import (
	"sync"

	"github.com/onemirror/onemirror/internal/types"
)

// PolicyCell holds the run-wide overwrite policy. Jobs snapshot the
// policy at creation, but an escalation (answering "always" mid-run)
// raises the cell and wins over older snapshots.
type PolicyCell struct {
	mu     sync.RWMutex
	policy types.OverwritePolicy
}

// NewPolicyCell creates a cell starting at the given policy.
func NewPolicyCell(policy types.OverwritePolicy) *PolicyCell {
	return &PolicyCell{policy: policy}
}

// Get returns the current policy.
func (c *PolicyCell) Get() types.OverwritePolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// Escalate raises the policy. Lowering is ignored; once a run is
// promoted to always-overwrite it stays there.
func (c *PolicyCell) Escalate(policy types.OverwritePolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if policy > c.policy {
		c.policy = policy
	}
}

// effectivePolicy resolves a job's snapshot against the shared cell.
func (c *PolicyCell) effectivePolicy(snapshot types.OverwritePolicy) types.OverwritePolicy {
	if c == nil {
		return snapshot
	}
	if current := c.Get(); current > snapshot {
		return current
	}
	return snapshot
}
