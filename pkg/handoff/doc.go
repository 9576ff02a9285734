/*
Package handoff implements the document transfer protocol between agents.

A handoff moves responsibility for a document from one agent to another
with an expected action, a priority, and an optional deadline and
validator. The protocol is the only component that grants and revokes
document access on behalf of the runtime: creating a handoff grants the
recipient READ, accepting an edit-style handoff grants WRITE.

# Lifecycle

	PENDING ──▶ DELIVERED ──▶ ACCEPTED ──▶ COMPLETED
	   │            │             │
	   │            │             └──▶ FAILED (validator)
	   │            └──▶ REJECTED
	   └──▶ CANCELLED

Terminal states are COMPLETED, REJECTED, CANCELLED and FAILED. A transfer
resets an active handoff back to PENDING for the new recipient.

Validator failures do not surface to the caller of Complete: the handoff
transitions to FAILED with a validation payload and the sender is notified.

# Notifications

State transitions emit notifications to per-agent handlers through a
single dispatcher goroutine, so an agent observes its transitions in
order. Handler errors and panics are contained and logged; the queue
drops on overflow rather than blocking a transition.

Per-agent queues order handoffs by priority (descending) then creation
time, so a CRITICAL handoff is picked up before older LOW ones.
*/
package handoff
