// README: Postgres persistence for rides and drivers; every transition runs in one transaction with row locks.
package ride

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxi/internal/apperr"
)

// Repository is the relational source of truth for ride and driver state.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ride(ctx context.Context, id int64) (*Ride, error)
}

// Tx reads lock the returned rows until the transaction ends.
type Tx interface {
	RideByID(ctx context.Context, id int64) (*Ride, error)
	DriverByID(ctx context.Context, id int64) (*Driver, error)
	DriverByUserID(ctx context.Context, userID int64) (*Driver, error)
	CreateRide(ctx context.Context, r *Ride) error
	UpdateRide(ctx context.Context, r *Ride) error
	DeleteRide(ctx context.Context, id int64) error
	UpdateDriver(ctx context.Context, d *Driver) error
}

const (
	rideColumns = `id, passenger_id, driver_id, fare,
		start_lat, start_lng, start_location, end_lat, end_lng, end_location,
		status, created_at, updated_at`
	driverColumns = `id, user_id, car_number, capacity, car_name, license, phone_number,
		status, total_rides, created_at, updated_at`
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

func (s *Store) Ride(ctx context.Context, id int64) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) RideByID(ctx context.Context, id int64) (*Ride, error) {
	return scanRide(t.tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) DriverByID(ctx context.Context, id int64) (*Driver, error) {
	return scanDriver(t.tx.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) DriverByUserID(ctx context.Context, userID int64) (*Driver, error) {
	return scanDriver(t.tx.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE user_id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) CreateRide(ctx context.Context, r *Ride) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO rides (passenger_id, driver_id, fare,
			start_lat, start_lng, start_location, end_lat, end_lng, end_location, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		r.PassengerID, r.DriverID, r.Fare,
		r.StartLat, r.StartLng, r.StartLocation, r.EndLat, r.EndLng, r.EndLocation, r.Status,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return apperr.Internal("insert ride", err)
	}
	return nil
}

func (t *pgTx) UpdateRide(ctx context.Context, r *Ride) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE rides SET status = $2, fare = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		r.ID, r.Status, r.Fare,
	).Scan(&r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRideNotFound
	}
	if err != nil {
		return apperr.Internal("update ride", err)
	}
	return nil
}

// DeleteRide is a no-op for an absent ride.
func (t *pgTx) DeleteRide(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, id); err != nil {
		return apperr.Internal("delete ride", err)
	}
	return nil
}

func (t *pgTx) UpdateDriver(ctx context.Context, d *Driver) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE drivers SET status = $2, total_rides = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Status, d.TotalRides,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoDriver
	}
	if err != nil {
		return apperr.Internal("update driver", err)
	}
	return nil
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	err := row.Scan(
		&r.ID, &r.PassengerID, &r.DriverID, &r.Fare,
		&r.StartLat, &r.StartLng, &r.StartLocation, &r.EndLat, &r.EndLng, &r.EndLocation,
		&r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load ride", err)
	}
	return &r, nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	err := row.Scan(
		&d.ID, &d.UserID, &d.CarNumber, &d.Capacity, &d.CarName, &d.License, &d.PhoneNumber,
		&d.Status, &d.TotalRides, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNoDriver
	}
	if err != nil {
		return nil, apperr.Internal("load driver", err)
	}
	return &d, nil
}
