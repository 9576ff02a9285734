/*
Package types defines the core data structures used throughout Cadre.

This package contains all fundamental types of Cadre's domain model:
agents and their skills, teams and roles, documents and access levels,
handoffs, workflow definitions and instances, quality gates, and metric
samples. All other packages build on these types for state management
and orchestration logic.

# Core Types

Agent pool:
  - Agent: autonomous unit of execution with skills and a performance score
  - AgentState: available, allocated, busy, maintenance, error, terminating
  - AllocationRequest: skill-profiled request for N agents
  - Resources: CPU/memory/storage/bandwidth budget arithmetic

Teams:
  - Team: mission, lifecycle state, member map, budget and rolling metrics
  - TeamState: forming → storming → norming → performing → adjourning → dissolved
  - TeamRole: leader, coordinator, specialist, reviewer, member

Documents and handoffs:
  - Document: versioned artifact with content hash, ACLs and dependencies
  - AccessLevel: read < write < admin
  - Handoff: typed transfer of a document between agents with a priority,
    deadline, and validation requirement

Workflows:
  - WorkflowDefinition: ordered DAG of document-producing steps
  - WorkflowInstance: per-run step states, produced documents, annotations

Quality:
  - QualityGate: thresholds plus ordered criteria
  - QualityIssue: severity-tiered finding with optional waiver
  - GateReport: decision, metrics snapshot, recommendations

# Design Patterns

All enums are typed string constants serialized by their lowercase value.
Optional sub-records use pointers (nil = absent). Types are JSON-serializable
for the bbolt snapshot layer; timestamps serialize as RFC3339 UTC.

Mutation is synchronized by the owning component: the pool owns agent state,
the orchestrator owns team membership, the registry owns document metadata.
Types in this package carry no locks of their own.
*/
package types
