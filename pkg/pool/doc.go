/*
Package pool provides skill-matched agent allocation for Cadre teams.

The pool is the single authority on agent state: no other component mutates
an agent's lifecycle state or team binding. Allocation requests are scored
against the available agents, auto-scaling synthesizes new agents up to the
configured maximum, and requests that still cannot be satisfied wait in a
FIFO queue with an asynchronous outcome.

# Architecture

	┌──────────────────────── AGENT POOL ─────────────────────────┐
	│                                                              │
	│  Allocate(request)                                           │
	│      │                                                       │
	│      ▼                                                       │
	│  ┌─────────────────┐   insufficient  ┌──────────────────┐   │
	│  │ Score & select  │ ───────────────▶│  Auto-scale up   │   │
	│  │ candidates      │                 │  to max size     │   │
	│  └───────┬─────────┘                 └────────┬─────────┘   │
	│          │ still short                        │             │
	│          ▼                                    │             │
	│  ┌─────────────────┐                          │             │
	│  │  FIFO queue     │◀─────────────────────────┘             │
	│  │  (async outcome)│                                        │
	│  └───────┬─────────┘                                        │
	│          │ drained on release / health promotion            │
	│          ▼                                                  │
	│  ┌─────────────────┐      ┌──────────────────┐              │
	│  │ Health monitor  │      │  Control plane   │              │
	│  │ (ticker loop)   │      │  reservation     │              │
	│  └─────────────────┘      └──────────────────┘              │
	└──────────────────────────────────────────────────────────────┘

# Selection

Candidates must be AVAILABLE, hold every required skill, and clear the
performance threshold. Each candidate is scored

	(1 + 2·required + 1·optional + 3·profile) · performance − 0.01·allocations

so skill coverage weighted by performance dominates, with a small
load-balancing bias against frequently allocated agents. Ties break by
fewer prior allocations, then agent id.

# Health monitoring

A background loop refreshes health timestamps on a fixed interval and
promotes MAINTENANCE agents whose performance score has recovered back to
AVAILABLE. Performance drops below the threshold demote AVAILABLE agents to
MAINTENANCE immediately.
*/
package pool
