/*
Package control defines the control-plane collaborators consumed by the
pool, the team orchestrator and the workflow engine: a resource
allocator handing out linearizable reservations, and a policy gate
validating sensitive decisions before they execute. MemoryAllocator and
AllowAllGate are the in-process defaults.
*/
package control
