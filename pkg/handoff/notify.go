package handoff

import (
	"time"

	"github.com/cadre-dev/cadre/pkg/types"
)

// NotificationType classifies handoff notifications
type NotificationType string

const (
	NotifyNew         NotificationType = "new"
	NotifyDelivered   NotificationType = "delivered"
	NotifyAccepted    NotificationType = "accepted"
	NotifyRejected    NotificationType = "rejected"
	NotifyCompleted   NotificationType = "completed"
	NotifyFailed      NotificationType = "failed"
	NotifyCancelled   NotificationType = "cancelled"
	NotifyTransferred NotificationType = "transferred"
)

// Notification is delivered to registered per-agent handlers
type Notification struct {
	AgentID   string
	Type      NotificationType
	Handoff   *types.Handoff
	Timestamp time.Time
}

// Handler receives handoff notifications for one agent. Handler errors are
// logged and ignored; handlers must not block state transitions.
type Handler func(n Notification) error

// Subscribe registers a notification handler for an agent
func (p *Protocol) Subscribe(agentID string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[agentID] = append(p.handlers[agentID], handler)
}

// notify enqueues a notification for asynchronous dispatch. A single
// dispatcher goroutine preserves the order of state transitions; enqueueing
// never blocks the transition (the queue drops on overflow).
func (p *Protocol) notify(agentID string, notifyType NotificationType, h *types.Handoff) {
	if agentID == "" {
		return
	}

	n := Notification{
		AgentID:   agentID,
		Type:      notifyType,
		Handoff:   h,
		Timestamp: time.Now().UTC(),
	}
	select {
	case p.notifyCh <- n:
	case <-p.stopCh:
	default:
		p.logger.Warn().Str("handoff_id", h.ID).Msg("notification queue full, dropping")
	}
}

// dispatchLoop delivers queued notifications to registered handlers
func (p *Protocol) dispatchLoop() {
	for {
		select {
		case n := <-p.notifyCh:
			p.dispatch(n)
		case <-p.stopCh:
			return
		}
	}
}

// dispatch invokes the agent's handlers. Panics and errors are contained so
// they cannot fail a state transition.
func (p *Protocol) dispatch(n Notification) {
	p.mu.RLock()
	handlers := append([]Handler(nil), p.handlers[n.AgentID]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().Interface("panic", r).
						Str("handoff_id", n.Handoff.ID).Msg("notification handler panicked")
				}
			}()
			if err := handler(n); err != nil {
				p.logger.Warn().Err(err).
					Str("handoff_id", n.Handoff.ID).Msg("notification handler error")
			}
		}()
	}
}
