package protocol

import (
	"sort"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MessageType classifies team messages
type MessageType string

const (
	MessageBroadcast MessageType = "broadcast"
	MessageStatus    MessageType = "status"
	MessageVote      MessageType = "vote"
	MessageArrival   MessageType = "arrival"
	MessageRelease   MessageType = "release"
)

// Message is one entry in the team's communication history
type Message struct {
	ID        string
	Type      MessageType
	From      string
	To        []string
	Subject   string
	Body      string
	Timestamp time.Time
}

// MessageHandler receives messages addressed to one agent
type MessageHandler func(msg Message) error

// BroadcastResult captures per-recipient delivery outcomes
type BroadcastResult struct {
	MessageID string
	Delivered int
	Failed    map[string]error // recipient id -> handler error
}

// StatusReport is one agent's self-reported status
type StatusReport struct {
	AgentID   string
	Status    string
	Progress  float64 // [0,1]
	Blockers  []string
	Timestamp time.Time
}

// AggregateStatus summarizes the latest report from each agent
type AggregateStatus struct {
	Reports         int
	AverageProgress float64
	StatusCounts    map[string]int
	Blockers        []string
}

// Stats is a point-in-time snapshot of protocol activity
type Stats struct {
	Broadcasts     int64
	Messages       int64
	DeliveryErrors int64
	VotesStarted   int64
	VotesSubmitted int64
	BarriersHit    int64
	LocksAcquired  int64
}

// Protocol is the team-scoped communication fabric. One instance serves one
// team; primitive ids collide only within that team.
type Protocol struct {
	mu sync.RWMutex

	teamID   string
	members  map[string]bool
	handlers map[string]MessageHandler
	history  []Message
	reports  map[string]*StatusReport
	votes    map[string]*vote
	barriers map[string]*barrier
	locks    map[string]*lockState
	sems     map[string]*semaphore
	events   map[string]*eventState
	stats    Stats

	logger zerolog.Logger
}

// NewProtocol creates the communication fabric for a team
func NewProtocol(teamID string, memberIDs []string) *Protocol {
	members := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = true
	}
	return &Protocol{
		teamID:   teamID,
		members:  members,
		handlers: make(map[string]MessageHandler),
		reports:  make(map[string]*StatusReport),
		votes:    make(map[string]*vote),
		barriers: make(map[string]*barrier),
		locks:    make(map[string]*lockState),
		sems:     make(map[string]*semaphore),
		events:   make(map[string]*eventState),
		logger:   log.WithComponent("protocol").With().Str("team_id", teamID).Logger(),
	}
}

// RegisterHandler connects an agent's inbound message handler
func (p *Protocol) RegisterHandler(agentID string, handler MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[agentID] = handler
}

// SetMembers replaces the member set, e.g. after a membership change
func (p *Protocol) SetMembers(memberIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		p.members[id] = true
	}
}

// Broadcast fans a message out to every other member in parallel. Handler
// errors are captured per recipient and reported in the result, never
// propagated. The message is appended to history unconditionally.
func (p *Protocol) Broadcast(from, subject, body string) (*BroadcastResult, error) {
	p.mu.Lock()
	if !p.members[from] {
		p.mu.Unlock()
		return nil, errdefs.PermissionDenied("agent %s is not a member of team %s", from, p.teamID)
	}
	msg := Message{
		ID:        uuid.New().String(),
		Type:      MessageBroadcast,
		From:      from,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	recipients := make(map[string]MessageHandler)
	for id := range p.members {
		if id == from {
			continue
		}
		msg.To = append(msg.To, id)
		if handler, ok := p.handlers[id]; ok {
			recipients[id] = handler
		}
	}
	sort.Strings(msg.To)
	p.history = append(p.history, msg)
	p.stats.Broadcasts++
	p.stats.Messages++
	p.mu.Unlock()

	result := &BroadcastResult{
		MessageID: msg.ID,
		Failed:    make(map[string]error),
	}
	var resultMu sync.Mutex
	var g errgroup.Group
	for id, handler := range recipients {
		id, handler := id, handler
		g.Go(func() error {
			err := deliver(handler, msg)
			resultMu.Lock()
			if err != nil {
				result.Failed[id] = err
			} else {
				result.Delivered++
			}
			resultMu.Unlock()
			return nil
		})
	}
	g.Wait()

	if len(result.Failed) > 0 {
		p.mu.Lock()
		p.stats.DeliveryErrors += int64(len(result.Failed))
		p.mu.Unlock()
		p.logger.Warn().Int("failed", len(result.Failed)).
			Str("message_id", msg.ID).Msg("broadcast had delivery errors")
	}
	return result, nil
}

// deliver invokes a handler, converting panics into errors
func deliver(handler MessageHandler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errdefs.Fatal("message handler panicked: %v", r)
		}
	}()
	return handler(msg)
}

// SubmitStatus records an agent's latest status report, replacing any
// previous one.
func (p *Protocol) SubmitStatus(report StatusReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.members[report.AgentID] {
		return errdefs.PermissionDenied("agent %s is not a member of team %s", report.AgentID, p.teamID)
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}
	r := report
	p.reports[report.AgentID] = &r
	p.stats.Messages++
	return nil
}

// Aggregate averages progress, distributes statuses, and unions blockers
// across the latest report of each agent.
func (p *Protocol) Aggregate() AggregateStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	agg := AggregateStatus{StatusCounts: make(map[string]int)}
	blockers := make(map[string]bool)
	var total float64
	for _, report := range p.reports {
		agg.Reports++
		total += report.Progress
		agg.StatusCounts[report.Status]++
		for _, b := range report.Blockers {
			blockers[b] = true
		}
	}
	if agg.Reports > 0 {
		agg.AverageProgress = total / float64(agg.Reports)
	}
	for b := range blockers {
		agg.Blockers = append(agg.Blockers, b)
	}
	sort.Strings(agg.Blockers)
	return agg
}

// History returns a copy of the message history
func (p *Protocol) History() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.history...)
}

// Statistics returns a snapshot of protocol activity
func (p *Protocol) Statistics() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *Protocol) memberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// appendHistory records a protocol-generated message
func (p *Protocol) appendHistory(msg Message) {
	p.mu.Lock()
	p.history = append(p.history, msg)
	p.stats.Messages++
	p.mu.Unlock()
}
