package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-events/internal/models"
)

type partKey struct {
	rideID string
	userID string
}

// MemoryStore is an in-process RideStore and UserStore used for local runs
// and tests. A single mutex guards all maps, which also makes
// ApproveWithinCapacity trivially atomic.
type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[string]models.Ride
	parts  map[partKey]models.Participation
	users  map[string]models.User
	byName map[string]string // username -> user id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:  make(map[string]models.Ride),
		parts:  make(map[partKey]models.Participation),
		users:  make(map[string]models.User),
		byName: make(map[string]string),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return ErrExists
	}
	m.rides[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, rideID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListRides(ctx context.Context) ([]models.Ride, error) {
	m.mu.RLock()
	out := make([]models.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateRideStatus(ctx context.Context, rideID string, status models.RideStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	m.rides[rideID] = r
	return nil
}

func (m *MemoryStore) CreateParticipation(ctx context.Context, p *models.Participation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := partKey{p.RideID, p.UserID}
	if _, ok := m.parts[k]; ok {
		return ErrExists
	}
	m.parts[k] = *p
	return nil
}

func (m *MemoryStore) GetParticipation(ctx context.Context, rideID, userID string) (*models.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parts[partKey{rideID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) ListParticipants(ctx context.Context, rideID string) ([]models.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Participation
	for k, p := range m.parts {
		if k.rideID == rideID {
			out = append(out, p)
		}
	}
	sortParticipations(out)
	return out, nil
}

func (m *MemoryStore) ListUserParticipations(ctx context.Context, userID string) ([]models.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Participation
	for k, p := range m.parts {
		if k.userID == userID {
			out = append(out, p)
		}
	}
	sortParticipations(out)
	return out, nil
}

func (m *MemoryStore) SetParticipationStatus(ctx context.Context, rideID, userID string, status models.ParticipationStatus, decisionAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := partKey{rideID, userID}
	p, ok := m.parts[k]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.DecisionAt = &decisionAt
	m.parts[k] = p
	return nil
}

func (m *MemoryStore) DeleteParticipation(ctx context.Context, rideID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := partKey{rideID, userID}
	if _, ok := m.parts[k]; !ok {
		return ErrNotFound
	}
	delete(m.parts, k)
	return nil
}

func (m *MemoryStore) CountApproved(ctx context.Context, rideID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countApprovedLocked(rideID), nil
}

func (m *MemoryStore) ApproveWithinCapacity(ctx context.Context, rideID, userID string, max int, decisionAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := partKey{rideID, userID}
	p, ok := m.parts[k]
	if !ok || p.Status != models.ParticipationPending {
		return ErrNotFound
	}
	if m.countApprovedLocked(rideID) >= max {
		return ErrCapacity
	}
	p.Status = models.ParticipationApproved
	p.DecisionAt = &decisionAt
	m.parts[k] = p
	return nil
}

func (m *MemoryStore) RejectIfPending(ctx context.Context, rideID, userID string, decisionAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := partKey{rideID, userID}
	p, ok := m.parts[k]
	if !ok || p.Status != models.ParticipationPending {
		return ErrNotFound
	}
	p.Status = models.ParticipationRejected
	p.DecisionAt = &decisionAt
	m.parts[k] = p
	return nil
}

func (m *MemoryStore) countApprovedLocked(rideID string) int {
	n := 0
	for k, p := range m.parts {
		if k.rideID == rideID && p.Status == models.ParticipationApproved {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return ErrExists
	}
	if _, ok := m.users[u.ID]; ok {
		return ErrExists
	}
	m.users[u.ID] = *u
	m.byName[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func sortParticipations(ps []models.Participation) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].RequestedAt.Equal(ps[j].RequestedAt) {
			return ps[i].UserID < ps[j].UserID
		}
		return ps[i].RequestedAt.Before(ps[j].RequestedAt)
	})
}
