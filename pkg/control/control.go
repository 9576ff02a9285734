// Package control defines the control-plane interfaces consumed by the pool,
// orchestrator, and workflow engine: resource admission and policy decisions.
// Implementations are pluggable; in-process defaults live in this package so
// the core runs standalone.
package control

import (
	"github.com/cadre-dev/cadre/pkg/types"
)

// AllocationHandle identifies a resource reservation for later release
type AllocationHandle string

// ResourceAllocator admits or denies resource reservations. Reservations are
// linearizable; partial failure is not supported.
type ResourceAllocator interface {
	// Reserve reserves resources for a team, returning a handle or
	// errdefs.ErrResourceExhausted.
	Reserve(teamID string, resources types.Resources, priority int) (AllocationHandle, error)

	// Release returns a reservation to the pool. Unknown handles are ignored.
	Release(handle AllocationHandle)

	// Available reports the currently unreserved capacity.
	Available() types.Resources
}

// Decision describes an action submitted for policy review
type Decision struct {
	Action   string // "form_team", "handoff", "resource_escalation"
	ActorID  string
	TeamID   string
	Subject  string
	Metadata map[string]string
}

// PolicyResult is the outcome of a policy check
type PolicyResult struct {
	Approved bool
	Reasons  []string
}

// PolicyGate validates sensitive actions before they execute.
// A rejected decision blocks the action and surfaces the reasons.
type PolicyGate interface {
	Validate(decision Decision) PolicyResult
}

// AllowAllGate approves every decision. It is the default gate when no
// policy implementation is provided.
type AllowAllGate struct{}

// Validate implements PolicyGate
func (AllowAllGate) Validate(decision Decision) PolicyResult {
	return PolicyResult{Approved: true}
}
