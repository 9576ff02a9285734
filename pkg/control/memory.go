package control

import (
	"sync"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
)

// MemoryAllocator is a capacity-bounded in-process resource allocator.
// Reservations are serialized under a single mutex.
type MemoryAllocator struct {
	mu           sync.Mutex
	capacity     types.Resources
	reserved     types.Resources
	reservations map[AllocationHandle]types.Resources
}

// NewMemoryAllocator creates an allocator with the given total capacity
func NewMemoryAllocator(capacity types.Resources) *MemoryAllocator {
	return &MemoryAllocator{
		capacity:     capacity,
		reservations: make(map[AllocationHandle]types.Resources),
	}
}

// Reserve implements ResourceAllocator
func (a *MemoryAllocator) Reserve(teamID string, resources types.Resources, priority int) (AllocationHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.reserved.Add(resources).Fits(a.capacity) {
		return "", errdefs.ResourceExhausted(
			"insufficient capacity for team %s: requested %.1f cores / %d bytes",
			teamID, resources.CPUCores, resources.MemoryBytes)
	}

	handle := AllocationHandle(uuid.New().String())
	a.reserved = a.reserved.Add(resources)
	a.reservations[handle] = resources
	return handle, nil
}

// Release implements ResourceAllocator
func (a *MemoryAllocator) Release(handle AllocationHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resources, ok := a.reservations[handle]
	if !ok {
		return
	}
	delete(a.reservations, handle)
	a.reserved = a.reserved.Sub(resources)
}

// Available implements ResourceAllocator
func (a *MemoryAllocator) Available() types.Resources {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity.Sub(a.reserved)
}
