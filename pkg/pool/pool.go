package pool

import (
	"sort"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/control"
	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultPerformanceThreshold is the minimum performance score for an
	// agent to stay AVAILABLE.
	DefaultPerformanceThreshold = 0.5

	// DefaultHealthInterval is the health monitor tick interval
	DefaultHealthInterval = 30 * time.Second

	// historyLimit bounds the retained allocation history
	historyLimit = 100
)

// Config holds agent pool configuration
type Config struct {
	InitialSize          int
	MaxSize              int
	AutoScale            bool
	PerformanceThreshold float64
	HealthInterval       time.Duration
	PerAgentResources    types.Resources

	// SkillDistribution weights the skills given to auto-scaled agents
	SkillDistribution map[types.Skill]int
	Profiles          []string

	Allocator control.ResourceAllocator
	Store     storage.Store
	Broker    *events.Broker
}

// DefaultConfig returns a pool configuration with sane defaults
func DefaultConfig() Config {
	return Config{
		InitialSize:          10,
		MaxSize:              50,
		AutoScale:            true,
		PerformanceThreshold: DefaultPerformanceThreshold,
		HealthInterval:       DefaultHealthInterval,
		PerAgentResources:    types.Resources{CPUCores: 1, MemoryBytes: 512 << 20},
		SkillDistribution: map[types.Skill]int{
			types.SkillGeneral:       4,
			types.SkillDevelopment:   3,
			types.SkillTesting:       2,
			types.SkillArchitecture:  1,
			types.SkillDocumentation: 1,
		},
		Profiles: []string{"generalist"},
	}
}

// Result is the outcome of an allocation request. When Queued is set the
// request was accepted but not yet fulfilled; Outcome delivers the final
// result asynchronously once capacity frees up.
type Result struct {
	RequestID string
	Agents    []*types.Agent
	Queued    bool
	Outcome   <-chan *Result
	Err       error
}

type pendingRequest struct {
	req     types.AllocationRequest
	outcome chan *Result
}

// AllocationRecord is one entry of the bounded allocation history
type AllocationRecord struct {
	RequestID string
	TeamID    string
	AgentIDs  []string
	Timestamp time.Time
}

// Pool is the single authority on agent state. All agent mutations happen
// under the pool mutex; resource admission goes through the control plane
// outside the lock.
type Pool struct {
	mu sync.Mutex

	cfg          Config
	agents       map[string]*types.Agent
	queue        []*pendingRequest
	reservations map[string][]control.AllocationHandle // team id -> handles
	history      []AllocationRecord
	shutdown     bool
	stopCh       chan struct{}
	scalePick    int // round-robin cursor into the skill distribution

	logger zerolog.Logger
}

// NewPool creates an agent pool and synthesizes the initial agents
func NewPool(cfg Config) *Pool {
	if cfg.PerformanceThreshold == 0 {
		cfg.PerformanceThreshold = DefaultPerformanceThreshold
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}

	p := &Pool{
		cfg:          cfg,
		agents:       make(map[string]*types.Agent),
		reservations: make(map[string][]control.AllocationHandle),
		stopCh:       make(chan struct{}),
		logger:       log.WithComponent("pool"),
	}

	for i := 0; i < cfg.InitialSize; i++ {
		agent := p.synthesizeAgent()
		p.agents[agent.ID] = agent
	}
	p.updateGauges()
	return p
}

// Start begins the health monitor loop
func (p *Pool) Start() {
	go p.healthLoop()
}

// AddAgent registers an externally created agent. Used by tests and by
// deployments that bring their own agent fleet.
func (p *Pool) AddAgent(agent *types.Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return errdefs.Precondition("pool is shut down")
	}
	if agent.ID == "" {
		return errdefs.InvalidArgument("agent id is required")
	}
	if _, exists := p.agents[agent.ID]; exists {
		return errdefs.Precondition("agent %s already registered", agent.ID)
	}
	if agent.State == "" {
		agent.State = types.AgentStateAvailable
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	p.agents[agent.ID] = agent
	p.persist(agent)
	p.updateGauges()
	return nil
}

// Allocate selects the top-scoring candidates for the request. When the pool
// cannot satisfy the request even after auto-scaling, the request is queued
// and a queued acknowledgement is returned with an asynchronous outcome.
func (p *Pool) Allocate(req types.AllocationRequest) (*Result, error) {
	if req.Count <= 0 {
		return nil, errdefs.InvalidArgument("allocation count must be positive, got %d", req.Count)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, errdefs.Precondition("pool is shut down")
	}
	p.mu.Unlock()

	// Resource admission happens before agent selection and outside the
	// pool lock.
	handle, err := p.reserve(req)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	agents, ok := p.tryAllocateLocked(req)
	if ok {
		p.commitReservationLocked(req.TeamID, handle)
		out := cloneAgents(agents)
		p.recordLocked(req, agents)
		p.updateGauges()
		p.mu.Unlock()

		p.persistAll(agents)
		p.publishAllocated(req, agents)
		metrics.AllocationsTotal.Inc()
		return &Result{RequestID: req.ID, Agents: out}, nil
	}

	// Insufficient agents: queue the request FIFO and hand back an
	// asynchronous outcome. The reservation is returned until fulfillment.
	outcome := make(chan *Result, 1)
	p.queue = append(p.queue, &pendingRequest{req: req, outcome: outcome})
	queueLen := len(p.queue)
	p.mu.Unlock()

	p.release(handle)
	metrics.AllocationsQueued.Set(float64(queueLen))
	p.logger.Info().Str("request_id", req.ID).Int("count", req.Count).
		Msg("insufficient agents, request queued")
	return &Result{RequestID: req.ID, Queued: true, Outcome: outcome}, nil
}

// tryAllocateLocked selects and binds candidates, auto-scaling when enabled.
// Caller holds the pool mutex.
func (p *Pool) tryAllocateLocked(req types.AllocationRequest) ([]*types.Agent, bool) {
	candidates := p.candidatesLocked(req)

	if len(candidates) < req.Count && p.cfg.AutoScale {
		gap := req.Count - len(candidates)
		room := p.cfg.MaxSize - len(p.agents)
		if room < gap {
			gap = room
		}
		for i := 0; i < gap; i++ {
			agent := p.synthesizeAgent()
			// Scaled agents cover the request's required skills
			for _, skill := range req.RequiredSkills {
				if !agent.HasSkill(skill) {
					agent.Skills = append(agent.Skills, skill)
				}
			}
			p.agents[agent.ID] = agent
			p.publishScaled(agent)
		}
		candidates = p.candidatesLocked(req)
	}

	if len(candidates) < req.Count {
		return nil, false
	}

	sortCandidates(candidates)
	selected := candidates[:req.Count]
	now := time.Now().UTC()
	agents := make([]*types.Agent, 0, req.Count)
	for _, c := range selected {
		c.agent.State = types.AgentStateAllocated
		c.agent.TeamID = req.TeamID
		c.agent.TotalAllocations++
		c.agent.LastHealthCheck = now
		agents = append(agents, c.agent)
	}
	return agents, true
}

type candidate struct {
	agent *types.Agent
	score float64
}

// candidatesLocked filters available agents matching the request profile.
// Caller holds the pool mutex.
func (p *Pool) candidatesLocked(req types.AllocationRequest) []candidate {
	threshold := req.MinPerformance
	if threshold == 0 {
		threshold = p.cfg.PerformanceThreshold
	}

	var out []candidate
	for _, agent := range p.agents {
		if agent.State != types.AgentStateAvailable {
			continue
		}
		if agent.PerformanceScore < threshold {
			continue
		}
		if !hasAllSkills(agent, req.RequiredSkills) {
			continue
		}
		out = append(out, candidate{agent: agent, score: score(agent, req)})
	}
	return out
}

// score implements the skill-weighted selection formula: base skill match
// weighted by performance, minus a load-balancing bias per prior allocation.
func score(agent *types.Agent, req types.AllocationRequest) float64 {
	s := 1.0
	for _, skill := range req.RequiredSkills {
		if agent.HasSkill(skill) {
			s += 2
		}
	}
	for _, skill := range req.OptionalSkills {
		if agent.HasSkill(skill) {
			s += 1
		}
	}
	for _, profile := range req.PreferredProfiles {
		if agent.Profile == profile {
			s += 3
			break
		}
	}
	return s*agent.PerformanceScore - 0.01*float64(agent.TotalAllocations)
}

// sortCandidates orders by score desc; ties break by fewer total
// allocations, then lexicographic agent id.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.agent.TotalAllocations != b.agent.TotalAllocations {
			return a.agent.TotalAllocations < b.agent.TotalAllocations
		}
		return a.agent.ID < b.agent.ID
	})
}

// Release returns a team's agents to the pool. With no explicit agent list
// every agent bound to the team is released. Releases trigger a best-effort
// pass over the pending queue.
func (p *Pool) Release(teamID string, agentIDs ...string) {
	p.mu.Lock()
	released := 0
	if len(agentIDs) == 0 {
		for _, agent := range p.agents {
			if agent.TeamID == teamID {
				p.releaseAgentLocked(agent)
				released++
			}
		}
	} else {
		for _, id := range agentIDs {
			if agent, ok := p.agents[id]; ok && agent.TeamID == teamID {
				p.releaseAgentLocked(agent)
				released++
			}
		}
	}
	handles := p.reservations[teamID]
	delete(p.reservations, teamID)
	p.updateGauges()
	p.mu.Unlock()

	for _, handle := range handles {
		p.release(handle)
	}
	if released > 0 {
		p.publishReleased(teamID)
	}
	p.drainQueue()
}

func (p *Pool) releaseAgentLocked(agent *types.Agent) {
	agent.TeamID = ""
	if agent.State == types.AgentStateAllocated || agent.State == types.AgentStateBusy {
		if agent.PerformanceScore >= p.cfg.PerformanceThreshold {
			agent.State = types.AgentStateAvailable
		} else {
			agent.State = types.AgentStateMaintenance
		}
	}
}

// drainQueue retries queued requests in FIFO order. A request that still
// cannot be satisfied stays queued and does not block the requests behind it.
func (p *Pool) drainQueue() {
	p.mu.Lock()
	snapshot := append([]*pendingRequest(nil), p.queue...)
	p.mu.Unlock()

	for _, pending := range snapshot {
		handle, err := p.reserve(pending.req)
		if err != nil {
			// Control plane is short; try again on the next release
			break
		}

		p.mu.Lock()
		if p.shutdown {
			p.mu.Unlock()
			p.release(handle)
			break
		}
		idx := -1
		for i, queued := range p.queue {
			if queued == pending {
				idx = i
				break
			}
		}
		if idx < 0 {
			// Cancelled or already served
			p.mu.Unlock()
			p.release(handle)
			continue
		}
		agents, ok := p.tryAllocateLocked(pending.req)
		if !ok {
			p.mu.Unlock()
			p.release(handle)
			continue
		}
		p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
		p.commitReservationLocked(pending.req.TeamID, handle)
		out := cloneAgents(agents)
		p.recordLocked(pending.req, agents)
		p.updateGauges()
		p.mu.Unlock()

		p.persistAll(agents)
		p.publishAllocated(pending.req, agents)
		metrics.AllocationsTotal.Inc()
		pending.outcome <- &Result{RequestID: pending.req.ID, Agents: out}
		close(pending.outcome)
	}

	p.mu.Lock()
	queueLen := len(p.queue)
	p.mu.Unlock()
	metrics.AllocationsQueued.Set(float64(queueLen))
}

// CancelRequest removes a queued allocation request. The pending outcome
// channel is closed without a result.
func (p *Pool) CancelRequest(requestID string) bool {
	p.mu.Lock()
	for i, pending := range p.queue {
		if pending.req.ID == requestID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			queueLen := len(p.queue)
			p.mu.Unlock()
			close(pending.outcome)
			metrics.AllocationsQueued.Set(float64(queueLen))
			return true
		}
	}
	p.mu.Unlock()
	return false
}

// UpdatePerformance applies a delta to an agent's performance score, clamped
// to [0,1]. Dropping below the threshold demotes an AVAILABLE agent to
// MAINTENANCE.
func (p *Pool) UpdatePerformance(agentID string, delta float64) error {
	p.mu.Lock()
	agent, ok := p.agents[agentID]
	if !ok {
		p.mu.Unlock()
		return errdefs.NotFound("agent %s", agentID)
	}
	agent.PerformanceScore += delta
	if agent.PerformanceScore > 1 {
		agent.PerformanceScore = 1
	}
	if agent.PerformanceScore < 0 {
		agent.PerformanceScore = 0
	}
	if agent.State == types.AgentStateAvailable && agent.PerformanceScore < p.cfg.PerformanceThreshold {
		agent.State = types.AgentStateMaintenance
	}
	out := *agent
	p.updateGauges()
	p.mu.Unlock()

	p.persist(&out)
	return nil
}

// Get returns a copy of an agent
func (p *Pool) Get(agentID string) (*types.Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent, ok := p.agents[agentID]
	if !ok {
		return nil, errdefs.NotFound("agent %s", agentID)
	}
	out := *agent
	return &out, nil
}

// Status summarizes the pool
type Status struct {
	Size        int
	ByState     map[types.AgentState]int
	QueueLength int
	History     []AllocationRecord
}

// Status reports pool occupancy and queue depth
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := Status{
		Size:        len(p.agents),
		ByState:     make(map[types.AgentState]int),
		QueueLength: len(p.queue),
		History:     append([]AllocationRecord(nil), p.history...),
	}
	for _, agent := range p.agents {
		status.ByState[agent.State]++
	}
	return status
}

// ListAgents returns copies of all agents
func (p *Pool) ListAgents() []*types.Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.Agent, 0, len(p.agents))
	for _, agent := range p.agents {
		c := *agent
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown stops the health loop, rejects queued requests, and marks all
// agents TERMINATING.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	queue := p.queue
	p.queue = nil
	for _, agent := range p.agents {
		agent.State = types.AgentStateTerminating
	}
	p.mu.Unlock()

	close(p.stopCh)
	for _, pending := range queue {
		pending.outcome <- &Result{
			RequestID: pending.req.ID,
			Err:       errdefs.Precondition("pool is shut down"),
		}
		close(pending.outcome)
	}
	metrics.AllocationsQueued.Set(0)
}

// healthLoop is the background health monitor: it refreshes health
// timestamps and promotes recovered MAINTENANCE agents back to AVAILABLE.
func (p *Pool) healthLoop() {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.healthCheck()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) healthCheck() {
	p.mu.Lock()
	now := time.Now().UTC()
	promoted := 0
	for _, agent := range p.agents {
		agent.LastHealthCheck = now
		if agent.State == types.AgentStateMaintenance &&
			agent.PerformanceScore >= p.cfg.PerformanceThreshold {
			agent.State = types.AgentStateAvailable
			promoted++
		}
	}
	p.updateGauges()
	p.mu.Unlock()

	if promoted > 0 {
		p.logger.Debug().Int("promoted", promoted).Msg("health check promoted agents")
		p.drainQueue()
	}
}

// synthesizeAgent builds a new agent from the configured skill distribution
func (p *Pool) synthesizeAgent() *types.Agent {
	skills := []types.Skill{types.SkillGeneral}
	if len(p.cfg.SkillDistribution) > 0 {
		weighted := weightedSkills(p.cfg.SkillDistribution)
		if len(weighted) > 0 {
			pick := weighted[p.scalePick%len(weighted)]
			p.scalePick++
			if pick != types.SkillGeneral {
				skills = append(skills, pick)
			}
		}
	}
	profile := "generalist"
	if len(p.cfg.Profiles) > 0 {
		profile = p.cfg.Profiles[p.scalePick%len(p.cfg.Profiles)]
	}
	return &types.Agent{
		ID:               uuid.New().String(),
		Profile:          profile,
		Skills:           skills,
		State:            types.AgentStateAvailable,
		PerformanceScore: 0.8,
		LastHealthCheck:  time.Now().UTC(),
		CreatedAt:        time.Now().UTC(),
	}
}

// weightedSkills expands the distribution into a deterministic pick list
func weightedSkills(dist map[types.Skill]int) []types.Skill {
	keys := make([]types.Skill, 0, len(dist))
	for skill := range dist {
		keys = append(keys, skill)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []types.Skill
	for _, skill := range keys {
		for i := 0; i < dist[skill]; i++ {
			out = append(out, skill)
		}
	}
	return out
}

func hasAllSkills(agent *types.Agent, skills []types.Skill) bool {
	for _, skill := range skills {
		if !agent.HasSkill(skill) {
			return false
		}
	}
	return true
}

func (p *Pool) reserve(req types.AllocationRequest) (control.AllocationHandle, error) {
	if p.cfg.Allocator == nil {
		return "", nil
	}
	resources := req.PerAgentResources
	if resources == (types.Resources{}) {
		resources = p.cfg.PerAgentResources
	}
	return p.cfg.Allocator.Reserve(req.TeamID, resources.Scale(req.Count), req.Priority)
}

func (p *Pool) release(handle control.AllocationHandle) {
	if p.cfg.Allocator == nil || handle == "" {
		return
	}
	p.cfg.Allocator.Release(handle)
}

func (p *Pool) commitReservationLocked(teamID string, handle control.AllocationHandle) {
	if handle == "" {
		return
	}
	p.reservations[teamID] = append(p.reservations[teamID], handle)
}

func (p *Pool) recordLocked(req types.AllocationRequest, agents []*types.Agent) {
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	p.history = append(p.history, AllocationRecord{
		RequestID: req.ID,
		TeamID:    req.TeamID,
		AgentIDs:  ids,
		Timestamp: time.Now().UTC(),
	})
	if len(p.history) > historyLimit {
		p.history = p.history[len(p.history)-historyLimit:]
	}
}

func (p *Pool) updateGauges() {
	counts := make(map[types.AgentState]int)
	for _, agent := range p.agents {
		counts[agent.State]++
	}
	for _, state := range []types.AgentState{
		types.AgentStateAvailable, types.AgentStateAllocated,
		types.AgentStateBusy, types.AgentStateMaintenance,
		types.AgentStateError, types.AgentStateTerminating,
	} {
		metrics.AgentsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (p *Pool) persist(agent *types.Agent) {
	if p.cfg.Store == nil {
		return
	}
	if err := p.cfg.Store.SaveAgent(agent); err != nil {
		p.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("failed to snapshot agent")
	}
}

func (p *Pool) persistAll(agents []*types.Agent) {
	for _, agent := range agents {
		p.persist(agent)
	}
}

func (p *Pool) publishAllocated(req types.AllocationRequest, agents []*types.Agent) {
	if p.cfg.Broker == nil {
		return
	}
	p.cfg.Broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: events.EventAgentAllocated,
		Metadata: map[string]string{
			"request_id": req.ID,
			"team_id":    req.TeamID,
		},
	})
}

func (p *Pool) publishReleased(teamID string) {
	if p.cfg.Broker == nil {
		return
	}
	p.cfg.Broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: events.EventAgentReleased,
		Metadata: map[string]string{
			"team_id": teamID,
		},
	})
}

func (p *Pool) publishScaled(agent *types.Agent) {
	if p.cfg.Broker == nil {
		return
	}
	p.cfg.Broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: events.EventAgentScaled,
		Metadata: map[string]string{
			"agent_id": agent.ID,
		},
	})
}

func cloneAgents(agents []*types.Agent) []*types.Agent {
	out := make([]*types.Agent, 0, len(agents))
	for _, a := range agents {
		c := *a
		out = append(out, &c)
	}
	return out
}
