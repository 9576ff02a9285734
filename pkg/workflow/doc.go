/*
Package workflow executes document-producing workflows against teams.

A workflow definition is a DAG of steps; each step declares an executor
role, input document types, an output type and an optional quality gate.
A step becomes runnable as soon as all of its input types have been
produced, and runnable steps of a wave execute in parallel.

Executing a step means handing the work to a team member (selected by
role, then lowest in-flight load, then id), waiting for the handoff to
finish, registering the produced document with the instance, and running
the step's gate: FAIL halts the workflow, CONCERNS continues, WAIVED
continues with an annotation.

There is no automatic retry. A step failure fails the instance with an
error payload; cancellation cancels in-flight handoffs but keeps every
document produced so far.
*/
package workflow
