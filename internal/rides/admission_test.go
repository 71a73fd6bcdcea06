package rides

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-events/internal/models"
	"github.com/example/ride-events/internal/storage"
)

func seedRideWithPending(t *testing.T, store *storage.MemoryStore, capacity, pending int) *models.Ride {
	t.Helper()
	ctx := context.Background()
	r := &models.Ride{
		ID:              "ride-1",
		HostID:          "host",
		Name:            "test ride",
		Status:          models.RideUpcoming,
		MaxParticipants: capacity,
		StartTime:       time.Now().Add(time.Hour),
		CreatedAt:       time.Now(),
	}
	if err := store.CreateRide(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	for i := 0; i < pending; i++ {
		p := &models.Participation{
			RideID:      r.ID,
			UserID:      fmt.Sprintf("user-%d", i),
			Status:      models.ParticipationPending,
			RequestedAt: time.Now(),
		}
		if err := store.CreateParticipation(ctx, p); err != nil {
			t.Fatalf("create participation: %v", err)
		}
	}
	return r
}

func TestConcurrentApprovalsNeverExceedCapacity(t *testing.T) {
	const capacity = 2
	const contenders = 5

	store := storage.NewMemoryStore()
	ride := seedRideWithPending(t, store, capacity, contenders)
	ac := NewAdmissionController(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ac.Approve(ctx, ride, fmt.Sprintf("user-%d", i), time.Now())
		}(i)
	}
	wg.Wait()

	approved, capErrs := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrCapacityExceeded):
			capErrs++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if approved != capacity || capErrs != contenders-capacity {
		t.Fatalf("got %d approved, %d capacity errors; want %d and %d",
			approved, capErrs, capacity, contenders-capacity)
	}

	count, err := store.CountApproved(ctx, ride.ID)
	if err != nil {
		t.Fatalf("count approved: %v", err)
	}
	if count != capacity {
		t.Fatalf("approved count %d exceeds capacity %d", count, capacity)
	}

	// losers remain PENDING
	pending := 0
	parts, _ := store.ListParticipants(ctx, ride.ID)
	for _, p := range parts {
		if p.Status == models.ParticipationPending {
			pending++
		}
	}
	if pending != contenders-capacity {
		t.Fatalf("expected %d still pending, got %d", contenders-capacity, pending)
	}
}

func TestApproveAfterConcurrentLeaveReportsInvalidState(t *testing.T) {
	store := storage.NewMemoryStore()
	ride := seedRideWithPending(t, store, 3, 1)
	ac := NewAdmissionController(store)
	ctx := context.Background()

	if err := store.DeleteParticipation(ctx, ride.ID, "user-0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ac.Approve(ctx, ride, "user-0", time.Now()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestAdmissionLocksArePruned(t *testing.T) {
	store := storage.NewMemoryStore()
	ride := seedRideWithPending(t, store, 1, 1)
	ac := NewAdmissionController(store)

	if err := ac.Approve(context.Background(), ride, "user-0", time.Now()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	ac.mu.Lock()
	n := len(ac.locks)
	ac.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected lock map to be empty, got %d entries", n)
	}
}
