package workflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/handoff"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/registry"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/team"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStepTimeout bounds step execution when the step declares none
	DefaultStepTimeout = 10 * time.Minute

	// pollInterval paces the wait for handoff completion
	pollInterval = 100 * time.Millisecond

	// docContextPrefix marks start-context keys that seed input documents,
	// e.g. "doc:prd" -> document id.
	docContextPrefix = "doc:"
)

// GateEvaluator runs a named quality gate against a produced document
type GateEvaluator interface {
	EvaluateGate(gateID, documentID, teamID string) (*types.GateReport, error)
}

// Config holds engine construction options
type Config struct {
	Registry *registry.Registry
	Handoffs *handoff.Protocol
	Teams    *team.Orchestrator
	Store    storage.Store
	Broker   *events.Broker
	Gates    GateEvaluator

	StepTimeout time.Duration
}

// Engine drives workflow instances: it resolves step inputs, selects team
// members, issues handoffs and routes produced documents through quality
// gates. There is no automatic retry; a failed step fails the instance.
type Engine struct {
	mu sync.RWMutex

	cfg         Config
	definitions map[string]*types.WorkflowDefinition
	instances   map[string]*types.WorkflowInstance
	cancels     map[string]context.CancelFunc
	load        map[string]int // agent id -> in-flight steps

	logger zerolog.Logger
}

// NewEngine creates a workflow engine
func NewEngine(cfg Config) *Engine {
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	return &Engine{
		cfg:         cfg,
		definitions: make(map[string]*types.WorkflowDefinition),
		instances:   make(map[string]*types.WorkflowInstance),
		cancels:     make(map[string]context.CancelFunc),
		load:        make(map[string]int),
		logger:      log.WithComponent("workflow"),
	}
}

// RegisterWorkflow validates and stores a workflow definition
func (e *Engine) RegisterWorkflow(def *types.WorkflowDefinition) error {
	if def.Name == "" {
		return errdefs.InvalidArgument("workflow name is required")
	}
	if len(def.Steps) == 0 {
		return errdefs.InvalidArgument("workflow %s has no steps", def.Name)
	}
	seen := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			return errdefs.InvalidArgument("workflow %s has a step without an id", def.Name)
		}
		if seen[step.ID] {
			return errdefs.InvalidArgument("workflow %s declares step %s twice", def.Name, step.ID)
		}
		seen[step.ID] = true
		if step.OutputType == "" {
			return errdefs.InvalidArgument("step %s declares no output type", step.ID)
		}
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	e.mu.Lock()
	e.definitions[def.ID] = def
	e.mu.Unlock()

	if e.cfg.Store != nil {
		if err := e.cfg.Store.SaveWorkflow(def); err != nil {
			e.logger.Error().Err(err).Str("workflow_id", def.ID).Msg("failed to snapshot workflow definition")
		}
	}
	return nil
}

// StartWorkflow creates an instance and begins driving it. Context keys of
// the form "doc:<type>" seed input documents by id.
func (e *Engine) StartWorkflow(definitionID, teamID string, runContext map[string]string) (*types.WorkflowInstance, error) {
	e.mu.RLock()
	def, ok := e.definitions[definitionID]
	e.mu.RUnlock()
	if !ok {
		return nil, errdefs.NotFound("workflow definition %s", definitionID)
	}
	if e.cfg.Teams != nil {
		if _, err := e.cfg.Teams.GetTeam(teamID); err != nil {
			return nil, err
		}
	}

	instance := &types.WorkflowInstance{
		ID:           uuid.New().String(),
		WorkflowID:   definitionID,
		TeamID:       teamID,
		State:        types.WorkflowStateRunning,
		StepStates:   make(map[string]types.StepState, len(def.Steps)),
		StepHandoffs: make(map[string]string),
		Produced:     make(map[types.DocumentType]string),
		Context:      runContext,
		StartedAt:    time.Now().UTC(),
	}
	for _, step := range def.Steps {
		instance.StepStates[step.ID] = types.StepStatePending
	}
	for key, value := range runContext {
		if strings.HasPrefix(key, docContextPrefix) {
			docType := types.DocumentType(strings.TrimPrefix(key, docContextPrefix))
			instance.Produced[docType] = value
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.instances[instance.ID] = instance
	e.cancels[instance.ID] = cancel
	e.mu.Unlock()

	if e.cfg.Teams != nil {
		if err := e.cfg.Teams.BindWorkflow(teamID, instance.ID); err != nil {
			e.logger.Warn().Err(err).Str("instance_id", instance.ID).Msg("failed to bind workflow to team")
		}
	}

	e.snapshot(instance)
	e.publish(events.EventWorkflowStarted, instance)
	go e.run(ctx, instance.ID)

	return cloneInstance(instance), nil
}

// run advances the instance until it reaches a terminal state
func (e *Engine) run(ctx context.Context, instanceID string) {
	for {
		done, err := e.Advance(ctx, instanceID)
		if err != nil {
			e.fail(instanceID, err)
			return
		}
		if done {
			return
		}
	}
}

// Advance executes one wave of runnable steps in parallel. It returns true
// when the instance has reached a terminal state.
func (e *Engine) Advance(ctx context.Context, instanceID string) (bool, error) {
	e.mu.Lock()
	instance, ok := e.instances[instanceID]
	if !ok {
		e.mu.Unlock()
		return true, errdefs.NotFound("workflow instance %s", instanceID)
	}
	if instance.State != types.WorkflowStateRunning {
		e.mu.Unlock()
		return true, nil
	}
	def := e.definitions[instance.WorkflowID]
	if def == nil {
		e.mu.Unlock()
		return true, errdefs.Fatal("definition %s missing for instance %s", instance.WorkflowID, instanceID)
	}

	var runnable []*types.WorkflowStep
	pending := 0
	for _, step := range def.Steps {
		switch instance.StepStates[step.ID] {
		case types.StepStatePending:
			pending++
			if inputsReady(instance, step) {
				runnable = append(runnable, step)
			}
		}
	}

	if len(runnable) == 0 {
		if pending == 0 {
			instance.State = types.WorkflowStateCompleted
			instance.FinishedAt = time.Now().UTC()
			snapshot := cloneInstance(instance)
			e.mu.Unlock()
			e.finishInstance(snapshot, events.EventWorkflowCompleted)
			return true, nil
		}
		e.mu.Unlock()
		return true, errdefs.Precondition("workflow instance %s has %d steps with unsatisfiable inputs", instanceID, pending)
	}

	for _, step := range runnable {
		instance.StepStates[step.ID] = types.StepStateRunning
	}
	e.mu.Unlock()

	g, groupCtx := errgroup.WithContext(ctx)
	for _, step := range runnable {
		step := step
		g.Go(func() error {
			return e.executeStep(groupCtx, instanceID, step)
		})
	}
	if err := g.Wait(); err != nil {
		return true, err
	}
	return false, nil
}

// inputsReady reports whether every declared input type has been produced
func inputsReady(instance *types.WorkflowInstance, step *types.WorkflowStep) bool {
	for _, docType := range step.InputTypes {
		if _, ok := instance.Produced[docType]; !ok {
			return false
		}
	}
	return true
}

// executeStep hands the step's work to a team member and waits for the
// handoff to finish, then routes the produced document through the step's
// gate when one is declared.
func (e *Engine) executeStep(ctx context.Context, instanceID string, step *types.WorkflowStep) error {
	start := time.Now()
	defer func() {
		metrics.WorkflowStepDuration.Observe(time.Since(start).Seconds())
	}()

	e.mu.RLock()
	instance, ok := e.instances[instanceID]
	if !ok {
		e.mu.RUnlock()
		return errdefs.NotFound("workflow instance %s", instanceID)
	}
	teamID := instance.TeamID
	inputs := resolveInputs(instance, step)
	e.mu.RUnlock()

	assignee, err := e.selectMember(teamID, step.Role)
	if err != nil {
		return err
	}

	// A step with no inputs starts from a fresh draft owned by the assignee
	subjectDoc := ""
	action := step.Action
	if len(inputs) > 0 {
		subjectDoc = inputs[0]
	} else {
		doc, err := e.cfg.Registry.Create(registry.CreateRequest{
			Title:      step.OutputTitle,
			Type:       step.OutputType,
			Owner:      assignee,
			TeamID:     teamID,
			WorkflowID: instanceID,
		})
		if err != nil {
			return err
		}
		subjectDoc = doc.ID
		if action == "" {
			action = types.ActionCreate
		}
	}
	if action == "" {
		action = types.ActionEdit
	}

	timeout := step.Timeout
	if timeout == 0 {
		timeout = e.cfg.StepTimeout
	}

	h, err := e.cfg.Handoffs.Create(handoff.CreateRequest{
		DocumentID:     subjectDoc,
		FromAgent:      handoff.System,
		ToAgent:        assignee,
		Reason:         "workflow step: " + step.Name,
		Instructions:   step.OutputTitle,
		ExpectedAction: action,
		Priority:       types.PriorityMedium,
		Deadline:       time.Now().UTC().Add(timeout),
		WorkflowID:     instanceID,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if inst, ok := e.instances[instanceID]; ok {
		inst.StepHandoffs[step.ID] = h.ID
	}
	e.load[assignee]++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.load[assignee]--
		if inst, ok := e.instances[instanceID]; ok {
			delete(inst.StepHandoffs, step.ID)
		}
		e.mu.Unlock()
	}()

	final, err := e.awaitHandoff(ctx, h.ID, timeout)
	if err != nil {
		e.markStep(instanceID, step.ID, types.StepStateFailed)
		if _, cancelErr := e.cfg.Handoffs.Cancel(h.ID, handoff.System, "step timed out"); cancelErr != nil {
			e.logger.Debug().Err(cancelErr).Str("handoff_id", h.ID).Msg("timeout cancel skipped")
		}
		return err
	}

	switch final.State {
	case types.HandoffStateCompleted:
	case types.HandoffStateCancelled:
		e.markStep(instanceID, step.ID, types.StepStateSkipped)
		return nil
	default:
		e.markStep(instanceID, step.ID, types.StepStateFailed)
		return errdefs.Precondition("step %s handoff ended %s: %s", step.ID, final.State, final.ValidationError+final.RejectReason)
	}

	producedID := final.ResultDocumentID
	if producedID == "" {
		producedID = subjectDoc
	}

	if step.GateID != "" && e.cfg.Gates != nil {
		report, err := e.cfg.Gates.EvaluateGate(step.GateID, producedID, teamID)
		if err != nil {
			e.markStep(instanceID, step.ID, types.StepStateFailed)
			return err
		}
		switch report.Decision {
		case types.DecisionFail, types.DecisionBlocked:
			e.markStep(instanceID, step.ID, types.StepStateFailed)
			return errdefs.Precondition("gate %s failed for step %s", step.GateID, step.ID)
		case types.DecisionWaived:
			e.annotate(instanceID, "gate "+step.GateID+" waived on step "+step.ID)
		case types.DecisionConcerns:
			e.logger.Warn().Str("gate_id", step.GateID).Str("step_id", step.ID).
				Msg("gate passed with concerns")
		}
	}

	e.mu.Lock()
	if inst, ok := e.instances[instanceID]; ok {
		inst.StepStates[step.ID] = types.StepStateCompleted
		inst.Produced[step.OutputType] = producedID
		inst.ProducedDocs = append(inst.ProducedDocs, producedID)
		snapshot := cloneInstance(inst)
		e.mu.Unlock()
		e.snapshot(snapshot)
		return nil
	}
	e.mu.Unlock()
	return nil
}

// awaitHandoff polls the handoff until it reaches a terminal state
func (e *Engine) awaitHandoff(ctx context.Context, handoffID string, timeout time.Duration) (*types.Handoff, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		h, err := e.cfg.Handoffs.Get(handoffID)
		if err != nil {
			return nil, err
		}
		if h.State.Terminal() {
			return h, nil
		}
		if time.Now().After(deadline) {
			return nil, errdefs.Timeout("handoff %s did not finish within %s", handoffID, timeout)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errdefs.Timeout("workflow cancelled while waiting on handoff %s", handoffID)
		}
	}
}

// selectMember picks the team member for a role: matching role first, then
// lowest in-flight load, then lexicographic agent id.
func (e *Engine) selectMember(teamID string, role types.TeamRole) (string, error) {
	if e.cfg.Teams == nil {
		return "", errdefs.Precondition("no team orchestrator configured")
	}
	t, err := e.cfg.Teams.GetTeam(teamID)
	if err != nil {
		return "", err
	}

	var candidates []string
	for id, member := range t.Members {
		if role == "" || member.Role == role {
			candidates = append(candidates, id)
		}
	}
	// Fall back to the full roster when no member holds the role
	if len(candidates) == 0 {
		candidates = t.MemberIDs()
	}
	if len(candidates) == 0 {
		return "", errdefs.ResourceExhausted("team %s has no members", teamID)
	}

	e.mu.RLock()
	sort.Slice(candidates, func(i, j int) bool {
		if e.load[candidates[i]] != e.load[candidates[j]] {
			return e.load[candidates[i]] < e.load[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	e.mu.RUnlock()
	return candidates[0], nil
}

// Cancel stops a running instance. In-flight handoffs are cancelled;
// documents produced so far are retained.
func (e *Engine) Cancel(instanceID, reason string) error {
	e.mu.Lock()
	instance, ok := e.instances[instanceID]
	if !ok {
		e.mu.Unlock()
		return errdefs.NotFound("workflow instance %s", instanceID)
	}
	if instance.State != types.WorkflowStateRunning {
		e.mu.Unlock()
		return errdefs.Precondition("workflow instance %s is %s", instanceID, instance.State)
	}
	instance.State = types.WorkflowStateCancelled
	instance.Error = reason
	instance.FinishedAt = time.Now().UTC()
	cancel := e.cancels[instanceID]
	delete(e.cancels, instanceID)
	snapshot := cloneInstance(instance)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.cfg.Handoffs.CancelWorkflow(instanceID, reason)
	e.finishInstance(snapshot, events.EventWorkflowCancelled)
	return nil
}

// Status returns a copy of the instance
func (e *Engine) Status(instanceID string) (*types.WorkflowInstance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	instance, ok := e.instances[instanceID]
	if !ok {
		return nil, errdefs.NotFound("workflow instance %s", instanceID)
	}
	return cloneInstance(instance), nil
}

// Definitions lists registered workflow definitions
func (e *Engine) Definitions() []*types.WorkflowDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.WorkflowDefinition, 0, len(e.definitions))
	for _, def := range e.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fail moves the instance to FAILED with an error payload
func (e *Engine) fail(instanceID string, cause error) {
	e.mu.Lock()
	instance, ok := e.instances[instanceID]
	if !ok || instance.State != types.WorkflowStateRunning {
		e.mu.Unlock()
		return
	}
	instance.State = types.WorkflowStateFailed
	instance.Error = cause.Error()
	instance.FinishedAt = time.Now().UTC()
	delete(e.cancels, instanceID)
	snapshot := cloneInstance(instance)
	e.mu.Unlock()

	e.logger.Error().Err(cause).Str("instance_id", instanceID).Msg("workflow failed")
	e.finishInstance(snapshot, events.EventWorkflowFailed)
}

// finishInstance persists the terminal state and unbinds the team
func (e *Engine) finishInstance(instance *types.WorkflowInstance, eventType events.EventType) {
	e.snapshot(instance)
	e.publish(eventType, instance)
	metrics.WorkflowsTotal.WithLabelValues(string(instance.State)).Inc()
	if e.cfg.Teams != nil {
		if err := e.cfg.Teams.BindWorkflow(instance.TeamID, ""); err != nil {
			e.logger.Debug().Err(err).Str("team_id", instance.TeamID).Msg("workflow unbind skipped")
		}
	}
}

func (e *Engine) markStep(instanceID, stepID string, state types.StepState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if instance, ok := e.instances[instanceID]; ok {
		instance.StepStates[stepID] = state
	}
}

func (e *Engine) annotate(instanceID, note string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if instance, ok := e.instances[instanceID]; ok {
		instance.Annotations = append(instance.Annotations, note)
	}
}

func resolveInputs(instance *types.WorkflowInstance, step *types.WorkflowStep) []string {
	var inputs []string
	for _, docType := range step.InputTypes {
		if id, ok := instance.Produced[docType]; ok {
			inputs = append(inputs, id)
		}
	}
	inputs = append(inputs, step.InputDocuments...)
	return inputs
}

func (e *Engine) snapshot(instance *types.WorkflowInstance) {
	if e.cfg.Store == nil {
		return
	}
	if err := e.cfg.Store.SaveWorkflowInstance(instance); err != nil {
		e.logger.Error().Err(err).Str("instance_id", instance.ID).Msg("failed to snapshot workflow instance")
	}
}

func (e *Engine) publish(eventType events.EventType, instance *types.WorkflowInstance) {
	if e.cfg.Broker == nil {
		return
	}
	e.cfg.Broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Metadata: map[string]string{
			"instance_id": instance.ID,
			"workflow_id": instance.WorkflowID,
			"team_id":     instance.TeamID,
		},
	})
}

func cloneInstance(instance *types.WorkflowInstance) *types.WorkflowInstance {
	c := *instance
	c.StepStates = make(map[string]types.StepState, len(instance.StepStates))
	for k, v := range instance.StepStates {
		c.StepStates[k] = v
	}
	c.StepHandoffs = make(map[string]string, len(instance.StepHandoffs))
	for k, v := range instance.StepHandoffs {
		c.StepHandoffs[k] = v
	}
	c.Produced = make(map[types.DocumentType]string, len(instance.Produced))
	for k, v := range instance.Produced {
		c.Produced[k] = v
	}
	c.ProducedDocs = append([]string(nil), instance.ProducedDocs...)
	c.Annotations = append([]string(nil), instance.Annotations...)
	return &c
}
