package protocol

import (
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/google/uuid"
)

// pollInterval paces the cooperative busy-waits of locks and semaphores
const pollInterval = 10 * time.Millisecond

type barrier struct {
	expected  int
	arrived   map[string]bool
	releaseCh chan struct{}
}

// CreateBarrier registers a barrier. With expected <= 0 the barrier waits
// for the whole team.
func (p *Protocol) CreateBarrier(id string, expected int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.barriers[id]; exists {
		return errdefs.Precondition("barrier %s already exists", id)
	}
	if expected <= 0 {
		expected = len(p.members)
	}
	p.barriers[id] = &barrier{
		expected:  expected,
		arrived:   make(map[string]bool),
		releaseCh: make(chan struct{}),
	}
	return nil
}

// WaitBarrier records the agent's arrival and blocks until the barrier
// trips or the timeout expires. The lexicographically smallest arrived
// agent announces the release to the team.
func (p *Protocol) WaitBarrier(id, agentID string, timeout time.Duration) error {
	p.mu.Lock()
	b, ok := p.barriers[id]
	if !ok {
		p.mu.Unlock()
		return errdefs.NotFound("barrier %s", id)
	}
	if !p.members[agentID] {
		p.mu.Unlock()
		return errdefs.PermissionDenied("agent %s is not a member of team %s", agentID, p.teamID)
	}

	var announcer string
	arrived := false
	tripped := false
	select {
	case <-b.releaseCh:
		tripped = true
	default:
	}
	if !tripped {
		arrived = !b.arrived[agentID]
		b.arrived[agentID] = true
		if len(b.arrived) >= b.expected {
			announcer = smallestKey(b.arrived)
			close(b.releaseCh)
			p.stats.BarriersHit++
			tripped = true
		}
	}
	p.mu.Unlock()

	// Each first arrival is visible in the team history
	if arrived {
		p.appendHistory(Message{
			ID:        uuid.New().String(),
			Type:      MessageArrival,
			From:      agentID,
			Subject:   "barrier arrival",
			Body:      id,
			Timestamp: time.Now().UTC(),
		})
	}

	if tripped {
		if announcer != "" {
			p.appendHistory(Message{
				ID:        uuid.New().String(),
				Type:      MessageRelease,
				From:      announcer,
				Subject:   "barrier released",
				Body:      id,
				Timestamp: time.Now().UTC(),
			})
		}
		return nil
	}

	select {
	case <-b.releaseCh:
		return nil
	case <-time.After(timeout):
		return errdefs.Timeout("barrier %s wait expired for agent %s", id, agentID)
	}
}

type lockState struct {
	holder string
}

// AcquireLock takes the named lock for the agent, busy-waiting
// cooperatively until it is free or the timeout expires. The lock is
// created on first use.
func (p *Protocol) AcquireLock(id, agentID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		l, ok := p.locks[id]
		if !ok {
			l = &lockState{}
			p.locks[id] = l
		}
		if l.holder == "" {
			l.holder = agentID
			p.stats.LocksAcquired++
			p.mu.Unlock()
			return nil
		}
		if l.holder == agentID {
			p.mu.Unlock()
			return errdefs.Precondition("agent %s already holds lock %s", agentID, id)
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return errdefs.Timeout("lock %s acquire expired for agent %s", id, agentID)
		}
		time.Sleep(pollInterval)
	}
}

// ReleaseLock frees the named lock; only the holder may release
func (p *Protocol) ReleaseLock(id, agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok || l.holder == "" {
		return errdefs.Precondition("lock %s is not held", id)
	}
	if l.holder != agentID {
		return errdefs.PermissionDenied("lock %s is held by %s, not %s", id, l.holder, agentID)
	}
	l.holder = ""
	return nil
}

// LockHolder reports the current holder, "" when free
func (p *Protocol) LockHolder(id string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if l, ok := p.locks[id]; ok {
		return l.holder
	}
	return ""
}

type semaphore struct {
	permits int
}

// CreateSemaphore registers a counting semaphore with the given permits
func (p *Protocol) CreateSemaphore(id string, permits int) error {
	if permits < 0 {
		return errdefs.InvalidArgument("semaphore permits must be non-negative, got %d", permits)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.sems[id]; exists {
		return errdefs.Precondition("semaphore %s already exists", id)
	}
	p.sems[id] = &semaphore{permits: permits}
	return nil
}

// AcquireSemaphore takes n permits, waiting until enough are free or the
// timeout expires.
func (p *Protocol) AcquireSemaphore(id string, n int, timeout time.Duration) error {
	if n <= 0 {
		return errdefs.InvalidArgument("semaphore acquire count must be positive, got %d", n)
	}
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		s, ok := p.sems[id]
		if !ok {
			p.mu.Unlock()
			return errdefs.NotFound("semaphore %s", id)
		}
		if s.permits >= n {
			s.permits -= n
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return errdefs.Timeout("semaphore %s acquire expired", id)
		}
		time.Sleep(pollInterval)
	}
}

// ReleaseSemaphore returns n permits
func (p *Protocol) ReleaseSemaphore(id string, n int) error {
	if n <= 0 {
		return errdefs.InvalidArgument("semaphore release count must be positive, got %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sems[id]
	if !ok {
		return errdefs.NotFound("semaphore %s", id)
	}
	s.permits += n
	return nil
}

type eventState struct {
	set bool
	ch  chan struct{}
}

// SetEvent raises the named flag, waking all waiters. Idempotent; the event
// is created on first use.
func (p *Protocol) SetEvent(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.events[id]
	if !ok {
		e = &eventState{ch: make(chan struct{})}
		p.events[id] = e
	}
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// ClearEvent lowers the named flag. Idempotent.
func (p *Protocol) ClearEvent(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.events[id]
	if !ok {
		return
	}
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

// WaitEvent blocks until the flag is set or the timeout expires
func (p *Protocol) WaitEvent(id string, timeout time.Duration) error {
	p.mu.Lock()
	e, ok := p.events[id]
	if !ok {
		e = &eventState{ch: make(chan struct{})}
		p.events[id] = e
	}
	ch := e.ch
	set := e.set
	p.mu.Unlock()

	if set {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return errdefs.Timeout("event %s wait expired", id)
	}
}

func smallestKey(set map[string]bool) string {
	smallest := ""
	for k := range set {
		if smallest == "" || k < smallest {
			smallest = k
		}
	}
	return smallest
}
