package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-events/internal/models"
)

func seedRide(t *testing.T, m *MemoryStore, id string, createdAt time.Time) {
	t.Helper()
	err := m.CreateRide(context.Background(), &models.Ride{
		ID: id, HostID: "host", Name: id, Status: models.RideUpcoming,
		MaxParticipants: 3, CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("create ride %s: %v", id, err)
	}
}

func seedParticipation(t *testing.T, m *MemoryStore, rideID, userID string, status models.ParticipationStatus) {
	t.Helper()
	err := m.CreateParticipation(context.Background(), &models.Participation{
		RideID: rideID, UserID: userID, Status: status, RequestedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create participation %s/%s: %v", rideID, userID, err)
	}
}

func TestCreateParticipationRejectsDuplicates(t *testing.T) {
	m := NewMemoryStore()
	seedRide(t, m, "r1", time.Now())
	seedParticipation(t, m, "r1", "u1", models.ParticipationRejected)

	err := m.CreateParticipation(context.Background(), &models.Participation{
		RideID: "r1", UserID: "u1", Status: models.ParticipationPending, RequestedAt: time.Now(),
	})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists for existing (ride,user) pair, got %v", err)
	}
}

func TestApproveWithinCapacity(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1", time.Now())
	seedParticipation(t, m, "r1", "u1", models.ParticipationApproved)
	seedParticipation(t, m, "r1", "u2", models.ParticipationPending)

	// capacity 1 and one slot taken: refuse
	if err := m.ApproveWithinCapacity(ctx, "r1", "u2", 1, time.Now()); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	p, _ := m.GetParticipation(ctx, "r1", "u2")
	if p.Status != models.ParticipationPending {
		t.Fatalf("record must stay PENDING after refusal, got %s", p.Status)
	}

	// capacity 2: approve and stamp the decision
	if err := m.ApproveWithinCapacity(ctx, "r1", "u2", 2, time.Now()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	p, _ = m.GetParticipation(ctx, "r1", "u2")
	if p.Status != models.ParticipationApproved || p.DecisionAt == nil {
		t.Fatalf("expected APPROVED with decisionAt, got %+v", p)
	}

	// non-pending records are not approvable
	if err := m.ApproveWithinCapacity(ctx, "r1", "u2", 5, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for decided record, got %v", err)
	}
	if err := m.ApproveWithinCapacity(ctx, "r1", "ghost", 5, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestRejectIfPending(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1", time.Now())
	seedParticipation(t, m, "r1", "u1", models.ParticipationPending)
	seedParticipation(t, m, "r1", "u2", models.ParticipationApproved)

	if err := m.RejectIfPending(ctx, "r1", "u1", time.Now()); err != nil {
		t.Fatalf("reject pending: %v", err)
	}
	p, _ := m.GetParticipation(ctx, "r1", "u1")
	if p.Status != models.ParticipationRejected || p.DecisionAt == nil {
		t.Fatalf("expected REJECTED with decisionAt, got %+v", p)
	}

	// terminal rows are untouchable
	if err := m.RejectIfPending(ctx, "r1", "u2", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for approved record, got %v", err)
	}
	p, _ = m.GetParticipation(ctx, "r1", "u2")
	if p.Status != models.ParticipationApproved {
		t.Fatalf("approved record must be untouched, got %s", p.Status)
	}
	if err := m.RejectIfPending(ctx, "r1", "ghost", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestListRidesOrderedByCreation(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now()
	seedRide(t, m, "later", base.Add(time.Minute))
	seedRide(t, m, "earlier", base)
	seedRide(t, m, "earliest", base.Add(-time.Minute))

	rides, err := m.ListRides(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"earliest", "earlier", "later"}
	for i, id := range want {
		if rides[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, rides[i].ID, id)
		}
	}
}

func TestDeleteParticipationFreesSlot(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1", time.Now())
	seedParticipation(t, m, "r1", "u1", models.ParticipationApproved)

	n, _ := m.CountApproved(ctx, "r1")
	if n != 1 {
		t.Fatalf("expected 1 approved, got %d", n)
	}
	if err := m.DeleteParticipation(ctx, "r1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ = m.CountApproved(ctx, "r1")
	if n != 0 {
		t.Fatalf("expected 0 approved after delete, got %d", n)
	}
	if err := m.DeleteParticipation(ctx, "r1", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUserStoreUniqueUsername(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	u := &models.User{ID: "u1", Username: "alice", Name: "Alice", CreatedAt: time.Now()}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &models.User{ID: "u2", Username: "alice", Name: "Other", CreatedAt: time.Now()}
	if err := m.CreateUser(ctx, dup); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, err := m.GetUserByUsername(ctx, "alice")
	if err != nil || got.ID != "u1" {
		t.Fatalf("lookup by username: got %+v, err %v", got, err)
	}
}
