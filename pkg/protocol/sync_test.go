package protocol

import (
	"sync"
	"testing"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestBarrierTripsWhenAllArrive(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateBarrier("sync-point", 3))

	var g errgroup.Group
	for _, id := range []string{"alice", "bob", "carol"} {
		id := id
		g.Go(func() error {
			return p.WaitBarrier("sync-point", id, 2*time.Second)
		})
	}
	assert.NoError(t, g.Wait())

	// Every arrival is visible, and the smallest arrived agent announced
	// the release
	history := p.History()
	assert.Len(t, history, 4)
	arrivals := make([]string, 0, 3)
	releases := 0
	for _, msg := range history {
		switch msg.Type {
		case MessageArrival:
			arrivals = append(arrivals, msg.From)
			assert.Equal(t, "sync-point", msg.Body)
		case MessageRelease:
			releases++
			assert.Equal(t, "alice", msg.From)
		}
	}
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, arrivals)
	assert.Equal(t, 1, releases)
	assert.Equal(t, int64(1), p.Statistics().BarriersHit)
}

func TestBarrierArrivalVisibleBeforeTrip(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateBarrier("standup", 2))

	done := make(chan error, 1)
	go func() {
		done <- p.WaitBarrier("standup", "alice", 2*time.Second)
	}()

	// The first arrival shows up in history while the barrier is still held
	assert.Eventually(t, func() bool {
		for _, msg := range p.History() {
			if msg.Type == MessageArrival && msg.From == "alice" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), p.Statistics().BarriersHit)

	assert.NoError(t, p.WaitBarrier("standup", "bob", 2*time.Second))
	assert.NoError(t, <-done)
	assert.Equal(t, int64(1), p.Statistics().BarriersHit)
}

func TestBarrierDefaultsToTeamSize(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateBarrier("all-hands", 0))

	err := p.WaitBarrier("all-hands", "alice", 50*time.Millisecond)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
}

func TestBarrierTimeout(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateBarrier("lonely", 2))

	start := time.Now()
	err := p.WaitBarrier("lonely", "alice", 50*time.Millisecond)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBarrierErrors(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateBarrier("b", 2))
	assert.ErrorIs(t, p.CreateBarrier("b", 2), errdefs.ErrPrecondition)
	assert.ErrorIs(t, p.WaitBarrier("missing", "alice", time.Millisecond), errdefs.ErrNotFound)
	assert.ErrorIs(t, p.WaitBarrier("b", "stranger", time.Millisecond), errdefs.ErrPermissionDenied)
}

func TestLockMutualExclusion(t *testing.T) {
	p := newTeamProtocol()

	assert.NoError(t, p.AcquireLock("deploy", "alice", time.Second))
	assert.Equal(t, "alice", p.LockHolder("deploy"))

	// Re-acquire by the holder is an error, not a deadlock
	assert.ErrorIs(t, p.AcquireLock("deploy", "alice", time.Second), errdefs.ErrPrecondition)

	// Another agent times out while the lock is held
	err := p.AcquireLock("deploy", "bob", 50*time.Millisecond)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)

	// Only the holder releases
	assert.ErrorIs(t, p.ReleaseLock("deploy", "bob"), errdefs.ErrPermissionDenied)
	assert.NoError(t, p.ReleaseLock("deploy", "alice"))
	assert.Empty(t, p.LockHolder("deploy"))

	// Released locks are acquirable again
	assert.NoError(t, p.AcquireLock("deploy", "bob", time.Second))
}

func TestLockHandover(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.AcquireLock("shared", "alice", time.Second))

	done := make(chan error, 1)
	go func() {
		done <- p.AcquireLock("shared", "bob", 2*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, p.ReleaseLock("shared", "alice"))

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Equal(t, "bob", p.LockHolder("shared"))
	case <-time.After(3 * time.Second):
		t.Fatal("waiting acquirer never got the lock")
	}
}

func TestReleaseUnheldLock(t *testing.T) {
	p := newTeamProtocol()
	assert.ErrorIs(t, p.ReleaseLock("never-created", "alice"), errdefs.ErrPrecondition)
}

func TestSemaphoreCounting(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateSemaphore("workers", 2))

	assert.NoError(t, p.AcquireSemaphore("workers", 1, time.Second))
	assert.NoError(t, p.AcquireSemaphore("workers", 1, time.Second))

	// No permits left
	err := p.AcquireSemaphore("workers", 1, 50*time.Millisecond)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)

	assert.NoError(t, p.ReleaseSemaphore("workers", 1))
	assert.NoError(t, p.AcquireSemaphore("workers", 1, time.Second))
}

func TestSemaphoreBatchedAcquire(t *testing.T) {
	p := newTeamProtocol()
	assert.NoError(t, p.CreateSemaphore("batch", 3))

	assert.NoError(t, p.AcquireSemaphore("batch", 2, time.Second))

	// A two-permit request waits until both are back
	done := make(chan error, 1)
	go func() {
		done <- p.AcquireSemaphore("batch", 2, 2*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, p.ReleaseSemaphore("batch", 2))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("batched acquire never completed")
	}
}

func TestSemaphoreValidation(t *testing.T) {
	p := newTeamProtocol()
	assert.ErrorIs(t, p.CreateSemaphore("neg", -1), errdefs.ErrInvalidArgument)
	assert.NoError(t, p.CreateSemaphore("s", 1))
	assert.ErrorIs(t, p.CreateSemaphore("s", 1), errdefs.ErrPrecondition)
	assert.ErrorIs(t, p.AcquireSemaphore("s", 0, time.Second), errdefs.ErrInvalidArgument)
	assert.ErrorIs(t, p.AcquireSemaphore("missing", 1, time.Millisecond), errdefs.ErrNotFound)
	assert.ErrorIs(t, p.ReleaseSemaphore("missing", 1), errdefs.ErrNotFound)
}

func TestEventSetWakesWaiters(t *testing.T) {
	p := newTeamProtocol()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.WaitEvent("ready", 2*time.Second)
		}()
	}

	time.Sleep(30 * time.Millisecond)
	p.SetEvent("ready")
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	// A set event satisfies later waits immediately
	assert.NoError(t, p.WaitEvent("ready", time.Millisecond))
}

func TestEventClearBlocksAgain(t *testing.T) {
	p := newTeamProtocol()

	p.SetEvent("flag")
	assert.NoError(t, p.WaitEvent("flag", time.Millisecond))

	p.ClearEvent("flag")
	assert.ErrorIs(t, p.WaitEvent("flag", 30*time.Millisecond), errdefs.ErrTimeout)

	// Set and clear are idempotent
	p.SetEvent("flag")
	p.SetEvent("flag")
	p.ClearEvent("flag")
	p.ClearEvent("flag")
	p.ClearEvent("never-created")
}
