package protocol

import (
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/google/uuid"
)

// VoteOption is one choice on a ballot
type VoteOption string

const (
	VoteYes     VoteOption = "yes"
	VoteNo      VoteOption = "no"
	VoteAbstain VoteOption = "abstain"
	VoteVeto    VoteOption = "veto"
)

// VoteOutcome is the tallied result of a vote
type VoteOutcome string

const (
	OutcomePassed   VoteOutcome = "passed"
	OutcomeFailed   VoteOutcome = "failed"
	OutcomeVetoed   VoteOutcome = "vetoed"
	OutcomeNoQuorum VoteOutcome = "no_quorum"
)

// VoteRequest opens a ballot for the team
type VoteRequest struct {
	Proposal    string
	Options     []VoteOption // default {yes, no, abstain} plus veto when allowed
	Deadline    time.Time
	Threshold   float64 // fraction of total members that must vote yes
	VetoAllowed bool
	Anonymous   bool
	InitiatorID string
}

// VoteResult is the tally of a closed or in-progress vote
type VoteResult struct {
	VoteID    string
	Proposal  string
	Outcome   VoteOutcome
	Counts    map[VoteOption]int
	Total     int // total team members, the tally denominator
	Received  int
	Reasoning []string // omitted for anonymous votes
}

type ballot struct {
	option    VoteOption
	reasoning string
}

type vote struct {
	id          string
	proposal    string
	options     map[VoteOption]bool
	deadline    time.Time
	threshold   float64
	vetoAllowed bool
	anonymous   bool
	ballots     map[string]ballot // agent id -> latest ballot
}

// StartVote opens a ballot. The deadline must be in the future and the
// threshold within [0,1].
func (p *Protocol) StartVote(req VoteRequest) (string, error) {
	if req.Proposal == "" {
		return "", errdefs.InvalidArgument("vote proposal is required")
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return "", errdefs.InvalidArgument("vote threshold %v outside [0,1]", req.Threshold)
	}
	now := time.Now().UTC()
	if !req.Deadline.After(now) {
		return "", errdefs.InvalidArgument("vote deadline must be in the future")
	}

	options := req.Options
	if len(options) == 0 {
		options = []VoteOption{VoteYes, VoteNo, VoteAbstain}
		if req.VetoAllowed {
			options = append(options, VoteVeto)
		}
	}
	optionSet := make(map[VoteOption]bool, len(options))
	for _, opt := range options {
		optionSet[opt] = true
	}

	v := &vote{
		id:          uuid.New().String(),
		proposal:    req.Proposal,
		options:     optionSet,
		deadline:    req.Deadline,
		threshold:   req.Threshold,
		vetoAllowed: req.VetoAllowed,
		anonymous:   req.Anonymous,
		ballots:     make(map[string]ballot),
	}

	p.mu.Lock()
	p.votes[v.id] = v
	p.stats.VotesStarted++
	p.mu.Unlock()

	p.appendHistory(Message{
		ID:        uuid.New().String(),
		Type:      MessageVote,
		From:      req.InitiatorID,
		Subject:   "vote opened",
		Body:      req.Proposal,
		Timestamp: now,
	})
	return v.id, nil
}

// SubmitVote records an agent's ballot. Submissions after the deadline are
// rejected; a resubmission replaces the agent's earlier ballot.
func (p *Protocol) SubmitVote(voteID, agentID string, option VoteOption, reasoning string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.votes[voteID]
	if !ok {
		return errdefs.NotFound("vote %s", voteID)
	}
	if !p.members[agentID] {
		return errdefs.PermissionDenied("agent %s is not a member of team %s", agentID, p.teamID)
	}
	if !time.Now().UTC().Before(v.deadline) {
		return errdefs.Timeout("vote %s deadline has passed", voteID)
	}
	if !v.options[option] {
		return errdefs.InvalidArgument("option %s is not on the ballot", option)
	}
	if option == VoteVeto && !v.vetoAllowed {
		return errdefs.InvalidArgument("veto is not allowed on vote %s", voteID)
	}

	v.ballots[agentID] = ballot{option: option, reasoning: reasoning}
	p.stats.VotesSubmitted++
	return nil
}

// Tally computes the outcome. Non-voters count against passage: the
// threshold is measured over total team members, not received ballots.
func (p *Protocol) Tally(voteID string) (*VoteResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.votes[voteID]
	if !ok {
		return nil, errdefs.NotFound("vote %s", voteID)
	}

	result := &VoteResult{
		VoteID:   v.id,
		Proposal: v.proposal,
		Counts:   make(map[VoteOption]int),
		Total:    len(p.members),
		Received: len(v.ballots),
	}
	for _, b := range v.ballots {
		result.Counts[b.option]++
		if !v.anonymous && b.reasoning != "" {
			result.Reasoning = append(result.Reasoning, b.reasoning)
		}
	}

	switch {
	case v.vetoAllowed && result.Counts[VoteVeto] > 0:
		result.Outcome = OutcomeVetoed
	case result.Total > 0 && float64(result.Counts[VoteYes])/float64(result.Total) >= v.threshold:
		result.Outcome = OutcomePassed
	case result.Received > 0:
		result.Outcome = OutcomeFailed
	default:
		result.Outcome = OutcomeNoQuorum
	}
	return result, nil
}
