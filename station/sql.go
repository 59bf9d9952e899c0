package station

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("station not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// Record is the persisted description of a station. Inventory is not stored
// here; it is rebuilt from the bikes table.
type Record struct {
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Address      string          `db:"address"`
	Latitude     float64         `db:"latitude"`
	Longitude    float64         `db:"longitude"`
	Capacity     int             `db:"capacity"`
	Status       Status          `db:"status"`
	ChargingRate sql.NullFloat64 `db:"charging_rate"`
}

// Station builds the in-memory station described by the record, applying its
// administrative status and charging configuration.
func (r Record) Station() (*Station, error) {
	s, err := New(r.ID, r.Name, r.Address, r.Latitude, r.Longitude, r.Capacity)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case Maintenance:
		s.SetMaintenance()
	case Inactive:
		s.Deactivate()
	case Active, Full, Empty:
	}
	if r.ChargingRate.Valid {
		if err := s.EnableCharging(r.ChargingRate.Float64); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (r *Repository) GetStations(ctx context.Context) ([]Record, error) {
	var stations []Record
	err := r.db.SelectContext(ctx, &stations, getStations)
	return stations, err
}

const getStations = `SELECT id, name, address, latitude, longitude, capacity, status, charging_rate FROM stations ORDER BY id`

func (r *Repository) GetStation(ctx context.Context, id string) (Record, error) {
	var station Record
	err := r.db.GetContext(ctx, &station, getStation, id)
	if errors.Is(err, sql.ErrNoRows) {
		return station, ErrNotFound
	}
	return station, err
}

const getStation = `SELECT id, name, address, latitude, longitude, capacity, status, charging_rate FROM stations WHERE id = $1`

// UpdateStatus stores the administrative status of a station.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := r.db.ExecContext(ctx, updateStatus, status.String(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const updateStatus = `UPDATE stations SET status = $1 WHERE id = $2`
