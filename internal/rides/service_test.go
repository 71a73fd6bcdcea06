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

type sentEvent struct {
	userID string
	ev     models.Event
}

// recordNotifier captures fan-out calls for assertions.
type recordNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (r *recordNotifier) SendToUser(userID string, ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{userID, ev})
}

func (r *recordNotifier) events() []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentEvent, len(r.sent))
	copy(out, r.sent)
	return out
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStore, *recordNotifier) {
	t.Helper()
	store := storage.NewMemoryStore()
	notifier := &recordNotifier{}
	svc := NewService(store, store, notifier, nil)
	return svc, store, notifier
}

func addUser(t *testing.T, store *storage.MemoryStore, id, username string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &models.User{
		ID: id, Username: username, Name: username, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func mustCreateRide(t *testing.T, svc *Service, hostID string, capacity int) *models.Ride {
	t.Helper()
	r, err := svc.CreateRide(context.Background(), hostID, models.RideSpec{
		Name:            "coastal run",
		StartTime:       time.Now().Add(48 * time.Hour),
		StartPoint:      "marina",
		EndPoint:        "lighthouse",
		MaxParticipants: capacity,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func TestCreateRideValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRide(ctx, "host", models.RideSpec{StartPoint: "a", EndPoint: "b", StartTime: time.Now()})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("missing name: expected ErrValidation, got %v", err)
	}
	_, err = svc.CreateRide(ctx, "host", models.RideSpec{
		Name: "r", StartTime: time.Now(), StartPoint: "a", EndPoint: "b", MaxParticipants: -1,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("negative capacity: expected ErrValidation, got %v", err)
	}
}

func TestCreateRideDefaultsCapacity(t *testing.T) {
	svc, _, _ := newTestService(t)
	r, err := svc.CreateRide(context.Background(), "host", models.RideSpec{
		Name: "r", StartTime: time.Now().Add(time.Hour), StartPoint: "a", EndPoint: "b",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.MaxParticipants != 20 {
		t.Fatalf("expected default capacity 20, got %d", r.MaxParticipants)
	}
	if r.Status != models.RideUpcoming {
		t.Fatalf("expected UPCOMING, got %s", r.Status)
	}
}

func TestHostCannotRequestOwnRide(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := mustCreateRide(t, svc, "host", 3)
	_, err := svc.RequestParticipation(context.Background(), "host", r.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequestNotifiesHost(t *testing.T) {
	svc, _, notifier := newTestService(t)
	r := mustCreateRide(t, svc, "host", 3)

	p, err := svc.RequestParticipation(context.Background(), "rider", r.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if p.Status != models.ParticipationPending {
		t.Fatalf("expected PENDING, got %s", p.Status)
	}
	if p.RequestedAt.IsZero() || p.DecisionAt != nil {
		t.Fatalf("expected requestedAt set and decisionAt unset, got %+v", p)
	}

	sent := notifier.events()
	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	if sent[0].userID != "host" || sent[0].ev.Type != models.EventNewJoinRequest || sent[0].ev.FromUser != "rider" {
		t.Fatalf("unexpected notification %+v", sent[0])
	}
}

func TestRequestOnMissingRide(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RequestParticipation(context.Background(), "rider", "no-such-ride")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectedUserCannotRequestAgain(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 3)

	if _, err := svc.RequestParticipation(ctx, "rider", r.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "rider", false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// rejection is permanent, the record is never recreated
	_, err := svc.RequestParticipation(ctx, "rider", r.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDuplicateRequestConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 3)

	if _, err := svc.RequestParticipation(ctx, "rider", r.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err := svc.RequestParticipation(ctx, "rider", r.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDecideNotifiesParticipant(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 3)

	if _, err := svc.RequestParticipation(ctx, "rider", r.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	p, err := svc.DecideParticipation(ctx, "host", r.ID, "rider", true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.Status != models.ParticipationApproved || p.DecisionAt == nil {
		t.Fatalf("expected APPROVED with decisionAt, got %+v", p)
	}

	sent := notifier.events()
	last := sent[len(sent)-1]
	if last.userID != "rider" || last.ev.Type != models.EventParticipationDecision {
		t.Fatalf("unexpected notification %+v", last)
	}
	if last.ev.Approved == nil || !*last.ev.Approved {
		t.Fatalf("expected approved=true in event, got %+v", last.ev)
	}
}

func TestDecideByNonHostForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 3)
	if _, err := svc.RequestParticipation(ctx, "rider", r.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err := svc.DecideParticipation(ctx, "intruder", r.ID, "rider", true)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// the permission error wins even when no request exists, so a non-host
	// caller cannot probe for requests
	_, err = svc.DecideParticipation(ctx, "intruder", r.ID, "nobody", true)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-host on missing record, got %v", err)
	}
	_, err = svc.DecideParticipation(ctx, "host", r.ID, "nobody", true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for host on missing record, got %v", err)
	}
}

func TestRejectNeverOverwritesApproved(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 3)
	if _, err := svc.RequestParticipation(ctx, "rider", r.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "rider", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := svc.DecideParticipation(ctx, "host", r.ID, "rider", false)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	p, err := store.GetParticipation(ctx, r.ID, "rider")
	if err != nil {
		t.Fatalf("get participation: %v", err)
	}
	if p.Status != models.ParticipationApproved {
		t.Fatalf("approval must survive the late reject, got %s", p.Status)
	}
}

func TestCapacityExceededLeavesPending(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 1)

	for _, u := range []string{"u1", "u2"} {
		if _, err := svc.RequestParticipation(ctx, u, r.ID); err != nil {
			t.Fatalf("request %s: %v", u, err)
		}
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u1", true); err != nil {
		t.Fatalf("approve u1: %v", err)
	}
	_, err := svc.DecideParticipation(ctx, "host", r.ID, "u2", true)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	p, err := store.GetParticipation(ctx, r.ID, "u2")
	if err != nil {
		t.Fatalf("get participation: %v", err)
	}
	if p.Status != models.ParticipationPending {
		t.Fatalf("loser should stay PENDING, got %s", p.Status)
	}
}

func TestLeaveFreesApprovedSlot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 1)

	for _, u := range []string{"u1", "u2"} {
		if _, err := svc.RequestParticipation(ctx, u, r.ID); err != nil {
			t.Fatalf("request %s: %v", u, err)
		}
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u1", true); err != nil {
		t.Fatalf("approve u1: %v", err)
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u2", true); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected full ride, got %v", err)
	}

	if err := svc.LeaveRide(ctx, "u1", r.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u2", true); err != nil {
		t.Fatalf("approve u2 after slot freed: %v", err)
	}
}

func TestLeaveErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 2)

	if err := svc.LeaveRide(ctx, "host", r.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("host leave: expected ErrForbidden, got %v", err)
	}
	if err := svc.LeaveRide(ctx, "stranger", r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-member leave: expected ErrNotFound, got %v", err)
	}
}

func TestCancelCascadesToAllParticipants(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 2)

	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := svc.RequestParticipation(ctx, u, r.ID); err != nil {
			t.Fatalf("request %s: %v", u, err)
		}
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u1", true); err != nil {
		t.Fatalf("approve: %v", err)
	}

	failed, err := svc.CancelRide(ctx, "host", r.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if failed != 0 {
		t.Fatalf("expected no cascade failures, got %d", failed)
	}

	ride, err := store.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if ride.Status != models.RideCancelled {
		t.Fatalf("expected CANCELLED, got %s", ride.Status)
	}
	parts, _ := store.ListParticipants(ctx, r.ID)
	for _, p := range parts {
		if p.Status != models.ParticipationRejected {
			t.Fatalf("participant %s: expected REJECTED after cancel, got %s", p.UserID, p.Status)
		}
	}

	// re-cancel by the host is idempotent
	if _, err := svc.CancelRide(ctx, "host", r.ID); err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
}

func TestCancelByNonHostForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := mustCreateRide(t, svc, "host", 2)
	if _, err := svc.CancelRide(context.Background(), "stranger", r.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRideDetailsConfidentiality(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	addUser(t, store, "host", "hostname")
	addUser(t, store, "u1", "alice")
	addUser(t, store, "u2", "bob")
	addUser(t, store, "u3", "carol")
	r := mustCreateRide(t, svc, "host", 2)

	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := svc.RequestParticipation(ctx, u, r.ID); err != nil {
			t.Fatalf("request %s: %v", u, err)
		}
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u1", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.DecideParticipation(ctx, "host", r.ID, "u2", false); err != nil {
		t.Fatalf("reject: %v", err)
	}

	hostView, err := svc.GetRideDetails(ctx, r.ID, "host")
	if err != nil {
		t.Fatalf("host details: %v", err)
	}
	if len(hostView.Approved) != 1 || len(hostView.Pending) != 1 || len(hostView.Rejected) != 1 {
		t.Fatalf("host view groups: approved=%d pending=%d rejected=%d",
			len(hostView.Approved), len(hostView.Pending), len(hostView.Rejected))
	}
	if hostView.Approved[0].User.Username != "alice" {
		t.Fatalf("expected username resolution, got %+v", hostView.Approved[0].User)
	}

	riderView, err := svc.GetRideDetails(ctx, r.ID, "u1")
	if err != nil {
		t.Fatalf("rider details: %v", err)
	}
	if len(riderView.Approved) != 1 {
		t.Fatalf("rider should see approved group, got %d", len(riderView.Approved))
	}
	if len(riderView.Pending) != 0 || len(riderView.Rejected) != 0 {
		t.Fatalf("rider must never see pending/rejected, got pending=%d rejected=%d",
			len(riderView.Pending), len(riderView.Rejected))
	}
}

func TestListRidesFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	full := mustCreateRide(t, svc, "hostA", 1)
	open := mustCreateRide(t, svc, "hostA", 2)
	other := mustCreateRide(t, svc, "hostB", 2)

	if _, err := svc.RequestParticipation(ctx, "rider", full.ID); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.DecideParticipation(ctx, "hostA", full.ID, "rider", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.CancelRide(ctx, "hostB", other.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	hosted, err := svc.ListRides(ctx, "hostA", models.ListFilter{HostedByMe: true})
	if err != nil {
		t.Fatalf("hosted: %v", err)
	}
	if len(hosted) != 2 {
		t.Fatalf("expected 2 hosted rides, got %d", len(hosted))
	}

	st := models.RideUpcoming
	upcoming, err := svc.ListRides(ctx, "rider", models.ListFilter{Status: &st})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 upcoming rides, got %d", len(upcoming))
	}

	participating, err := svc.ListRides(ctx, "rider", models.ListFilter{Participating: true})
	if err != nil {
		t.Fatalf("participating: %v", err)
	}
	if len(participating) != 1 || participating[0].Ride.ID != full.ID {
		t.Fatalf("expected only the joined ride, got %+v", participating)
	}
	if participating[0].ApprovedCount != 1 {
		t.Fatalf("expected approvedCount 1, got %d", participating[0].ApprovedCount)
	}

	available, err := svc.ListRides(ctx, "rider", models.ListFilter{Available: true})
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(available) != 1 || available[0].Ride.ID != open.ID {
		t.Fatalf("expected only the open ride, got %+v", available)
	}
}

func TestListRidesPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustCreateRide(t, svc, fmt.Sprintf("host-%d", i), 2)
	}

	page, err := svc.ListRides(ctx, "anyone", models.ListFilter{Skip: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	tail, err := svc.ListRides(ctx, "anyone", models.ListFilter{Skip: 4, Limit: 10})
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(tail) != 1 {
		t.Fatalf("expected 1 ride on last page, got %d", len(tail))
	}

	empty, err := svc.ListRides(ctx, "anyone", models.ListFilter{Skip: 99})
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}

	if _, err := svc.ListRides(ctx, "anyone", models.ListFilter{Skip: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative skip: expected ErrValidation, got %v", err)
	}
}

func TestConcurrentServiceApprovalsProperty(t *testing.T) {
	// capacity 2, five distinct pending riders deciding at once:
	// exactly two approvals, three capacity failures that stay PENDING.
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreateRide(t, svc, "host", 2)

	riders := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range riders {
		if _, err := svc.RequestParticipation(ctx, u, r.ID); err != nil {
			t.Fatalf("request %s: %v", u, err)
		}
	}

	var wg sync.WaitGroup
	results := make([]error, len(riders))
	for i, u := range riders {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, results[i] = svc.DecideParticipation(ctx, "host", r.ID, u, true)
		}(i, u)
	}
	wg.Wait()

	ok, capExceeded := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCapacityExceeded):
			capExceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 2 || capExceeded != 3 {
		t.Fatalf("got %d approved, %d capacity-exceeded; want 2 and 3", ok, capExceeded)
	}
	count, _ := store.CountApproved(ctx, r.ID)
	if count != 2 {
		t.Fatalf("approved count %d, want 2", count)
	}
}
