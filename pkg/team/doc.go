/*
Package team orchestrates the lifecycle of agent teams.

Formation validates the requested size, passes the control-plane policy
gate, reserves a resource budget sized by team size, allocates agents
from the pool and assigns roles by performance order: the top performer
leads once the team is large enough, architecture skill marks a
specialist, testing skill in the top third marks a reviewer, and the
first slot coordinates when no leader is assigned.

Teams move through the Tuckman stages

	FORMING → STORMING → NORMING → PERFORMING → ADJOURNING → DISSOLVED

driven by a per-team monitor goroutine: the first completed task norms
the team, rolling quality/efficiency/collaboration scores of 0.7 promote
it to performing, and an idle team with no tasks and no workflow is
dissolved after the auto-dissolve window. Dissolution archives a full
team snapshot and releases agents and resources best-effort; a formation
failure leaves no partial team behind.
*/
package team
