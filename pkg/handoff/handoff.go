package handoff

import (
	"sort"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/registry"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// System is the actor id allowed to drive handoffs on behalf of the runtime
const System = registry.System

// Validator checks a completed handoff's result document. A non-nil error
// fails the handoff with a validation payload.
type Validator func(handoff *types.Handoff, result *types.Document) error

// Config holds protocol construction options
type Config struct {
	Registry *registry.Registry
	Store    storage.Store
	Broker   *events.Broker
}

// Protocol manages queued document transfers between agents.
// All state transitions are serialized under the protocol mutex; calls into
// the registry happen outside the lock.
type Protocol struct {
	mu sync.RWMutex

	active    map[string]*types.Handoff
	completed map[string]*types.Handoff
	queues    map[string][]string // agent id -> active handoff ids
	byWork    map[string][]string // workflow id -> handoff ids

	handlers   map[string][]Handler
	validators map[string]Validator

	notifyCh chan Notification
	stopCh   chan struct{}

	registry *registry.Registry
	store    storage.Store
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewProtocol creates a handoff protocol bound to a document registry and
// starts its notification dispatcher.
func NewProtocol(cfg Config) *Protocol {
	p := &Protocol{
		active:     make(map[string]*types.Handoff),
		completed:  make(map[string]*types.Handoff),
		queues:     make(map[string][]string),
		byWork:     make(map[string][]string),
		handlers:   make(map[string][]Handler),
		validators: make(map[string]Validator),
		notifyCh:   make(chan Notification, 256),
		stopCh:     make(chan struct{}),
		registry:   cfg.Registry,
		store:      cfg.Store,
		broker:     cfg.Broker,
		logger:     log.WithComponent("handoff"),
	}
	go p.dispatchLoop()
	return p
}

// Stop stops the notification dispatcher
func (p *Protocol) Stop() {
	close(p.stopCh)
}

// RegisterValidator registers a named validator for handoffs that declare one
func (p *Protocol) RegisterValidator(id string, v Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators[id] = v
}

// CreateRequest describes a new handoff
type CreateRequest struct {
	DocumentID     string
	FromAgent      string
	ToAgent        string
	Reason         string
	Instructions   string
	ExpectedAction types.ExpectedAction
	Priority       types.HandoffPriority
	Deadline       time.Time
	ValidatorID    string
	WorkflowID     string
}

// Create opens a new handoff in PENDING state and grants the recipient READ
// access on the document.
func (p *Protocol) Create(req CreateRequest) (*types.Handoff, error) {
	if req.ToAgent == "" {
		return nil, errdefs.InvalidArgument("handoff recipient is required")
	}
	if req.Priority < types.PriorityLow || req.Priority > types.PriorityCritical {
		return nil, errdefs.InvalidArgument("handoff priority out of range: %d", req.Priority)
	}

	// The sender must be able to read what it hands off
	doc, err := p.registry.Get(req.DocumentID, registry.System)
	if err != nil {
		return nil, err
	}
	if req.FromAgent != System && !doc.CanRead(req.FromAgent) {
		return nil, errdefs.PermissionDenied("agent %s cannot hand off document %s", req.FromAgent, req.DocumentID)
	}

	h := &types.Handoff{
		ID:                 uuid.New().String(),
		DocumentID:         req.DocumentID,
		FromAgent:          req.FromAgent,
		ToAgent:            req.ToAgent,
		Reason:             req.Reason,
		Instructions:       req.Instructions,
		ExpectedAction:     req.ExpectedAction,
		Priority:           req.Priority,
		State:              types.HandoffStatePending,
		CreatedAt:          time.Now().UTC(),
		Deadline:           req.Deadline,
		RequiresValidation: req.ValidatorID != "",
		ValidatorID:        req.ValidatorID,
		WorkflowID:         req.WorkflowID,
	}

	p.mu.Lock()
	p.active[h.ID] = h
	p.enqueue(h)
	if h.WorkflowID != "" {
		p.byWork[h.WorkflowID] = append(p.byWork[h.WorkflowID], h.ID)
	}
	out := cloneHandoff(h)
	p.mu.Unlock()

	// ACL side effect happens outside the protocol lock
	if err := p.registry.Grant(h.DocumentID, registry.System, h.ToAgent, types.AccessRead); err != nil {
		p.logger.Error().Err(err).Str("handoff_id", h.ID).Msg("failed to grant read access")
	}

	p.snapshot(out)
	p.notify(h.ToAgent, NotifyNew, out)
	p.publish(events.EventHandoffCreated, out)
	return out, nil
}

// Deliver marks a pending handoff as delivered to the recipient
func (p *Protocol) Deliver(id string) (*types.Handoff, error) {
	p.mu.Lock()
	h, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil, errdefs.NotFound("handoff %s", id)
	}
	if h.State != types.HandoffStatePending {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s is %s, expected pending", id, h.State)
	}
	h.State = types.HandoffStateDelivered
	h.DeliveredAt = time.Now().UTC()
	out := cloneHandoff(h)
	p.mu.Unlock()

	p.snapshot(out)
	p.notify(out.ToAgent, NotifyDelivered, out)
	p.publish(events.EventHandoffDelivered, out)
	return out, nil
}

// Accept acknowledges a delivered handoff. Edit-style expected actions grant
// the recipient WRITE access on the document.
func (p *Protocol) Accept(id, agentID string) (*types.Handoff, error) {
	p.mu.Lock()
	h, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil, errdefs.NotFound("handoff %s", id)
	}
	if agentID != h.ToAgent {
		p.mu.Unlock()
		return nil, errdefs.PermissionDenied("agent %s is not the recipient of handoff %s", agentID, id)
	}
	if h.State != types.HandoffStateDelivered {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s is %s, expected delivered", id, h.State)
	}
	h.State = types.HandoffStateAccepted
	out := cloneHandoff(h)
	p.mu.Unlock()

	if out.ExpectedAction.RequiresWrite() {
		if err := p.registry.Grant(out.DocumentID, registry.System, out.ToAgent, types.AccessWrite); err != nil {
			p.logger.Error().Err(err).Str("handoff_id", id).Msg("failed to grant write access")
		}
	}

	p.snapshot(out)
	p.notify(out.FromAgent, NotifyAccepted, out)
	p.publish(events.EventHandoffAccepted, out)
	return out, nil
}

// Complete finishes an accepted handoff. When the handoff declares a
// validator and validation fails, the handoff transitions to FAILED with a
// validation payload; this is reported through notifications, not as an
// error to the caller.
func (p *Protocol) Complete(id, agentID, resultDocumentID string) (*types.Handoff, error) {
	p.mu.Lock()
	h, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil, errdefs.NotFound("handoff %s", id)
	}
	if agentID != System && agentID != h.ToAgent {
		p.mu.Unlock()
		return nil, errdefs.PermissionDenied("agent %s is not the recipient of handoff %s", agentID, id)
	}
	if h.State != types.HandoffStateAccepted {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s is %s, expected accepted", id, h.State)
	}
	validator := p.validators[h.ValidatorID]
	requiresValidation := h.RequiresValidation
	p.mu.Unlock()

	// Validation runs outside the lock; it may read the registry
	var validationErr error
	if requiresValidation {
		if validator == nil {
			validationErr = errdefs.Validation("validator %s is not registered", h.ValidatorID)
		} else {
			var result *types.Document
			if resultDocumentID != "" {
				result, _ = p.registry.Get(resultDocumentID, registry.System)
			}
			validationErr = validator(cloneHandoff(h), result)
		}
	}

	p.mu.Lock()
	h, ok = p.active[id]
	if !ok || h.State != types.HandoffStateAccepted {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s changed state during validation", id)
	}
	now := time.Now().UTC()
	h.ResultDocumentID = resultDocumentID
	h.CompletedAt = now
	if validationErr != nil {
		h.State = types.HandoffStateFailed
		h.ValidationError = validationErr.Error()
	} else {
		h.State = types.HandoffStateCompleted
	}
	p.finishLocked(h)
	out := cloneHandoff(h)
	p.mu.Unlock()

	p.snapshot(out)
	if out.State == types.HandoffStateFailed {
		p.notify(out.FromAgent, NotifyFailed, out)
		p.publish(events.EventHandoffFailed, out)
		metrics.HandoffsTotal.WithLabelValues(string(types.HandoffStateFailed)).Inc()
	} else {
		p.notify(out.FromAgent, NotifyCompleted, out)
		p.publish(events.EventHandoffCompleted, out)
		metrics.HandoffsTotal.WithLabelValues(string(types.HandoffStateCompleted)).Inc()
		metrics.HandoffDuration.Observe(out.CompletedAt.Sub(out.CreatedAt).Seconds())
	}
	return out, nil
}

// Reject declines a handoff. Only the recipient may reject.
func (p *Protocol) Reject(id, agentID, reason string) (*types.Handoff, error) {
	p.mu.Lock()
	h, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil, errdefs.NotFound("handoff %s", id)
	}
	if agentID != h.ToAgent {
		p.mu.Unlock()
		return nil, errdefs.PermissionDenied("agent %s is not the recipient of handoff %s", agentID, id)
	}
	if h.State.Terminal() {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s is already %s", id, h.State)
	}
	h.State = types.HandoffStateRejected
	h.RejectReason = reason
	h.CompletedAt = time.Now().UTC()
	p.finishLocked(h)
	out := cloneHandoff(h)
	p.mu.Unlock()

	p.snapshot(out)
	p.notify(out.FromAgent, NotifyRejected, out)
	p.publish(events.EventHandoffRejected, out)
	metrics.HandoffsTotal.WithLabelValues(string(types.HandoffStateRejected)).Inc()
	return out, nil
}

// Cancel withdraws a handoff. Only the sender or the system may cancel.
func (p *Protocol) Cancel(id, actor, reason string) (*types.Handoff, error) {
	p.mu.Lock()
	h, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil, errdefs.NotFound("handoff %s", id)
	}
	if actor != System && actor != h.FromAgent {
		p.mu.Unlock()
		return nil, errdefs.PermissionDenied("agent %s cannot cancel handoff %s", actor, id)
	}
	if h.State.Terminal() {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s is already %s", id, h.State)
	}
	h.State = types.HandoffStateCancelled
	h.RejectReason = reason
	h.CompletedAt = time.Now().UTC()
	p.finishLocked(h)
	out := cloneHandoff(h)
	p.mu.Unlock()

	p.snapshot(out)
	p.notify(out.ToAgent, NotifyCancelled, out)
	p.publish(events.EventHandoffCancelled, out)
	metrics.HandoffsTotal.WithLabelValues(string(types.HandoffStateCancelled)).Inc()
	return out, nil
}

// Transfer reassigns an active handoff to a new recipient. The old
// recipient's READ access is revoked and the new recipient is granted READ.
func (p *Protocol) Transfer(id, newAgent string) (*types.Handoff, error) {
	if newAgent == "" {
		return nil, errdefs.InvalidArgument("transfer target is required")
	}

	p.mu.Lock()
	h, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil, errdefs.NotFound("handoff %s", id)
	}
	if h.State.Terminal() {
		p.mu.Unlock()
		return nil, errdefs.Precondition("handoff %s is already %s", id, h.State)
	}
	oldAgent := h.ToAgent
	p.dequeue(oldAgent, h.ID)
	h.ToAgent = newAgent
	h.State = types.HandoffStatePending
	h.DeliveredAt = time.Time{}
	p.enqueue(h)
	out := cloneHandoff(h)
	p.mu.Unlock()

	if err := p.registry.Revoke(out.DocumentID, registry.System, oldAgent, types.AccessRead); err != nil {
		p.logger.Error().Err(err).Str("handoff_id", id).Msg("failed to revoke read access")
	}
	if err := p.registry.Grant(out.DocumentID, registry.System, newAgent, types.AccessRead); err != nil {
		p.logger.Error().Err(err).Str("handoff_id", id).Msg("failed to grant read access")
	}

	p.snapshot(out)
	p.notify(newAgent, NotifyTransferred, out)
	p.notify(oldAgent, NotifyTransferred, out)
	return out, nil
}

// Get returns a handoff by id, active or completed
func (p *Protocol) Get(id string) (*types.Handoff, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h, ok := p.active[id]; ok {
		return cloneHandoff(h), nil
	}
	if h, ok := p.completed[id]; ok {
		return cloneHandoff(h), nil
	}
	return nil, errdefs.NotFound("handoff %s", id)
}

// Queue returns the agent's active handoffs ordered by priority (desc) then
// creation time (asc).
func (p *Protocol) Queue(agentID string) []*types.Handoff {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := p.queues[agentID]
	out := make([]*types.Handoff, 0, len(ids))
	for _, id := range ids {
		if h, ok := p.active[id]; ok {
			out = append(out, cloneHandoff(h))
		}
	}
	return out
}

// CheckDeadlines returns all active handoffs past their deadline.
// Escalation (cancel, reassign) is left to the caller.
func (p *Protocol) CheckDeadlines() []*types.Handoff {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := time.Now().UTC()
	var overdue []*types.Handoff
	for _, h := range p.active {
		if h.Overdue(now) {
			overdue = append(overdue, cloneHandoff(h))
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].Deadline.Before(overdue[j].Deadline)
	})
	return overdue
}

// WorkflowHandoffs returns all handoff ids created for a workflow instance
func (p *Protocol) WorkflowHandoffs(workflowID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.byWork[workflowID]...)
}

// CancelWorkflow cancels every in-flight handoff of a workflow instance
func (p *Protocol) CancelWorkflow(workflowID, reason string) {
	for _, id := range p.WorkflowHandoffs(workflowID) {
		p.mu.RLock()
		_, isActive := p.active[id]
		p.mu.RUnlock()
		if !isActive {
			continue
		}
		if _, err := p.Cancel(id, System, reason); err != nil {
			p.logger.Debug().Err(err).Str("handoff_id", id).Msg("workflow cancel skipped handoff")
		}
	}
}

// Stats summarizes protocol state
type Stats struct {
	Active    int
	Completed int
	ByState   map[types.HandoffState]int
}

// Statistics returns counters over all known handoffs
func (p *Protocol) Statistics() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		Active:    len(p.active),
		Completed: len(p.completed),
		ByState:   make(map[types.HandoffState]int),
	}
	for _, h := range p.active {
		stats.ByState[h.State]++
	}
	for _, h := range p.completed {
		stats.ByState[h.State]++
	}
	return stats
}

// Load restores protocol state from the snapshot store
func (p *Protocol) Load() error {
	if p.store == nil {
		return nil
	}
	handoffs, err := p.store.ListHandoffs()
	if err != nil {
		return errdefs.Fatal("failed to load handoffs: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range handoffs {
		if h.State.Terminal() {
			p.completed[h.ID] = h
		} else {
			p.active[h.ID] = h
			p.enqueue(h)
		}
		if h.WorkflowID != "" {
			p.byWork[h.WorkflowID] = append(p.byWork[h.WorkflowID], h.ID)
		}
	}
	return nil
}

// finishLocked moves a handoff from active to completed and drops it from
// the recipient queue. Caller holds the write lock.
func (p *Protocol) finishLocked(h *types.Handoff) {
	delete(p.active, h.ID)
	p.completed[h.ID] = h
	p.dequeue(h.ToAgent, h.ID)
}

// enqueue inserts the handoff into the recipient's queue keeping the
// (priority desc, created asc) order. Caller holds the write lock.
func (p *Protocol) enqueue(h *types.Handoff) {
	queue := p.queues[h.ToAgent]
	queue = append(queue, h.ID)
	sort.SliceStable(queue, func(i, j int) bool {
		a, b := p.active[queue[i]], p.active[queue[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	p.queues[h.ToAgent] = queue
}

func (p *Protocol) dequeue(agentID, handoffID string) {
	queue := p.queues[agentID]
	for i, id := range queue {
		if id == handoffID {
			p.queues[agentID] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

func (p *Protocol) snapshot(h *types.Handoff) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveHandoff(h); err != nil {
		p.logger.Error().Err(err).Str("handoff_id", h.ID).Msg("failed to snapshot handoff")
	}
}

func (p *Protocol) publish(eventType events.EventType, h *types.Handoff) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Metadata: map[string]string{
			"handoff_id":  h.ID,
			"document_id": h.DocumentID,
			"from_agent":  h.FromAgent,
			"to_agent":    h.ToAgent,
		},
	})
}

func cloneHandoff(h *types.Handoff) *types.Handoff {
	out := *h
	return &out
}
