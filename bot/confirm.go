package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// confirmTimeout is how long a confirmation prompt stays actionable.
const confirmTimeout = 30 * time.Second

// Outcome is the resolution of a confirmation prompt.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeDeclined
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeDeclined:
		return "declined"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// Confirmation gates one destructive command invocation behind an explicit
// user choice. It resolves exactly once: whichever source resolves first
// (user action or deadline) wins and later resolutions are ignored. It is
// scoped to a single invocation and never shared across invocations.
type Confirmation struct {
	// UserID is the only user authorized to act on the prompt.
	UserID string
	// Nonce ties component interactions back to this confirmation.
	Nonce string

	mu      sync.Mutex
	outcome Outcome
	done    chan struct{}
}

// NewConfirmation creates a pending confirmation for the given user.
func NewConfirmation(userID string) *Confirmation {
	return &Confirmation{
		UserID:  userID,
		Nonce:   uuid.NewString(),
		outcome: OutcomePending,
		done:    make(chan struct{}),
	}
}

// Resolve transitions to a terminal outcome. Returns false if the
// confirmation was already resolved (the earlier resolution stands).
func (c *Confirmation) Resolve(o Outcome) bool {
	if o == OutcomePending {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome != OutcomePending {
		return false
	}
	c.outcome = o
	close(c.done)
	return true
}

// Outcome returns the current state.
func (c *Confirmation) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Await blocks until the confirmation resolves or the timeout elapses.
// A timeout (or context cancellation) resolves the state machine to
// OutcomeTimedOut unless a user action already won the race.
func (c *Confirmation) Await(ctx context.Context, timeout time.Duration) Outcome {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		c.Resolve(OutcomeTimedOut)
	case <-ctx.Done():
		c.Resolve(OutcomeTimedOut)
	}
	return c.Outcome()
}

// confirmations indexes pending confirmations by nonce so component
// interactions, which arrive as separate gateway events, can be routed back
// to the invocation awaiting them.
type confirmations struct {
	mu      sync.Mutex
	pending map[string]*Confirmation
}

func newConfirmations() *confirmations {
	return &confirmations{pending: make(map[string]*Confirmation)}
}

func (cs *confirmations) add(c *Confirmation) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pending[c.Nonce] = c
}

func (cs *confirmations) lookup(nonce string) (*Confirmation, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.pending[nonce]
	return c, ok
}

func (cs *confirmations) remove(nonce string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.pending, nonce)
}
