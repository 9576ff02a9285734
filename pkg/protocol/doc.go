/*
Package protocol is the team-scoped communication fabric.

It provides parallel broadcast with per-recipient error capture, status
reports with aggregation, threshold voting with optional veto, and the
synchronization primitives (barrier, lock, semaphore, event) agents use
to coordinate. All waits are timeout-bounded; primitive ids collide only
within a team.
*/
package protocol
