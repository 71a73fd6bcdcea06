package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-events/internal/models"
)

// PostgresStore implements RideStore and UserStore on top of lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides(ride_id, host_id, ride_name, ride_start_time, ride_start_point, ride_end_point,
			ride_duration, halt_duration, route_link, max_participants, status, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.HostID, r.Name, r.StartTime, r.StartPoint, r.EndPoint,
		r.Duration, r.HaltDuration, r.RouteLink, r.MaxParticipants, string(r.Status), r.CreatedAt)
	return mapPQError(err)
}

func (p *PostgresStore) GetRide(ctx context.Context, rideID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT ride_id, host_id, ride_name, ride_start_time, ride_start_point, ride_end_point,
			ride_duration, halt_duration, route_link, max_participants, status, created_at
		 FROM rides WHERE ride_id=$1`, rideID)
	return scanRide(row)
}

func (p *PostgresStore) ListRides(ctx context.Context) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT ride_id, host_id, ride_name, ride_start_time, ride_start_point, ride_end_point,
			ride_duration, halt_duration, route_link, max_participants, status, created_at
		 FROM rides ORDER BY created_at, ride_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateRideStatus(ctx context.Context, rideID string, status models.RideStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET status=$1 WHERE ride_id=$2`, string(status), rideID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) CreateParticipation(ctx context.Context, pt *models.Participation) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ride_participants(ride_id, user_id, status, requested_at) VALUES($1,$2,$3,$4)`,
		pt.RideID, pt.UserID, string(pt.Status), pt.RequestedAt)
	return mapPQError(err)
}

func (p *PostgresStore) GetParticipation(ctx context.Context, rideID, userID string) (*models.Participation, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT ride_id, user_id, status, requested_at, decision_at
		 FROM ride_participants WHERE ride_id=$1 AND user_id=$2`, rideID, userID)
	return scanParticipation(row)
}

func (p *PostgresStore) ListParticipants(ctx context.Context, rideID string) ([]models.Participation, error) {
	return p.queryParticipations(ctx,
		`SELECT ride_id, user_id, status, requested_at, decision_at
		 FROM ride_participants WHERE ride_id=$1 ORDER BY requested_at, user_id`, rideID)
}

func (p *PostgresStore) ListUserParticipations(ctx context.Context, userID string) ([]models.Participation, error) {
	return p.queryParticipations(ctx,
		`SELECT ride_id, user_id, status, requested_at, decision_at
		 FROM ride_participants WHERE user_id=$1 ORDER BY requested_at, ride_id`, userID)
}

func (p *PostgresStore) SetParticipationStatus(ctx context.Context, rideID, userID string, status models.ParticipationStatus, decisionAt time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ride_participants SET status=$1, decision_at=$2 WHERE ride_id=$3 AND user_id=$4`,
		string(status), decisionAt, rideID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) DeleteParticipation(ctx context.Context, rideID, userID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM ride_participants WHERE ride_id=$1 AND user_id=$2`, rideID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) CountApproved(ctx context.Context, rideID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ride_participants WHERE ride_id=$1 AND status='APPROVED'`, rideID).Scan(&n)
	return n, err
}

// ApproveWithinCapacity runs the capacity check and the status flip in one
// transaction that first takes a row lock on the ride. Concurrent approvals
// for the same ride serialize on that lock, so under READ COMMITTED the
// count subquery always sees the previous winner's committed row and the
// invariant holds even across processes sharing the database.
func (p *PostgresStore) ApproveWithinCapacity(ctx context.Context, rideID, userID string, max int, decisionAt time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT ride_id FROM rides WHERE ride_id=$1 FOR UPDATE`, rideID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE ride_participants SET status='APPROVED', decision_at=$1
		 WHERE ride_id=$2 AND user_id=$3 AND status='PENDING'
		   AND (SELECT COUNT(*) FROM ride_participants WHERE ride_id=$2 AND status='APPROVED') < $4`,
		decisionAt, rideID, userID, max)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return tx.Commit()
	}
	// Zero rows: either the ride is full or the record is gone/decided.
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ride_participants WHERE ride_id=$1 AND status='APPROVED'`, rideID).Scan(&count); err != nil {
		return err
	}
	if count >= max {
		return ErrCapacity
	}
	return ErrNotFound
}

// RejectIfPending is the guarded counterpart for rejections: a terminal
// status already on the row is never overwritten.
func (p *PostgresStore) RejectIfPending(ctx context.Context, rideID, userID string, decisionAt time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ride_participants SET status='REJECTED', decision_at=$1
		 WHERE ride_id=$2 AND user_id=$3 AND status='PENDING'`,
		decisionAt, rideID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, name, password_hash, bike_name, created_at) VALUES($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, u.Name, u.PasswordHash, u.BikeName, u.CreatedAt)
	return mapPQError(err)
}

func (p *PostgresStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT user_id, username, name, password_hash, bike_name, created_at FROM users WHERE user_id=$1`, userID)
	return scanUser(row)
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT user_id, username, name, password_hash, bike_name, created_at FROM users WHERE username=$1`, username)
	return scanUser(row)
}

func (p *PostgresStore) queryParticipations(ctx context.Context, query string, arg string) ([]models.Participation, error) {
	rows, err := p.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Participation
	for rows.Next() {
		pt, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pt)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var status string
	err := row.Scan(&r.ID, &r.HostID, &r.Name, &r.StartTime, &r.StartPoint, &r.EndPoint,
		&r.Duration, &r.HaltDuration, &r.RouteLink, &r.MaxParticipants, &status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.RideStatus(status)
	return &r, nil
}

func scanParticipation(row rowScanner) (*models.Participation, error) {
	var pt models.Participation
	var status string
	var decisionAt sql.NullTime
	err := row.Scan(&pt.RideID, &pt.UserID, &status, &pt.RequestedAt, &decisionAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pt.Status = models.ParticipationStatus(status)
	if decisionAt.Valid {
		pt.DecisionAt = &decisionAt.Time
	}
	return &pt, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.BikeName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
		return ErrExists
	}
	return err
}
