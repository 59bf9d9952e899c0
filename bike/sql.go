package bike

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("bike not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Record is the persisted form of a bike.
type Record struct {
	ID               string         `db:"id"`
	Type             Type           `db:"type"`
	Status           Status         `db:"status"`
	Charge           float64        `db:"charge"`
	TotalRides       int            `db:"total_rides"`
	TotalDistance    float64        `db:"total_distance"`
	NeedsMaintenance bool           `db:"needs_maintenance"`
	StationID        sql.NullString `db:"station_id"`
	LastUsed         sql.NullTime   `db:"last_used"`
	LastMaintenance  time.Time      `db:"last_maintenance"`
}

func (r Record) Snapshot() Snapshot {
	return Snapshot{
		ID:               r.ID,
		Type:             r.Type,
		Status:           r.Status,
		Charge:           r.Charge,
		TotalRides:       r.TotalRides,
		TotalDistance:    r.TotalDistance,
		NeedsMaintenance: r.NeedsMaintenance,
		StationID:        r.StationID.String,
		LastUsed:         r.LastUsed.Time,
		LastMaintenance:  r.LastMaintenance,
	}
}

func (r *Repository) GetBikes(ctx context.Context) ([]Record, error) {
	var bikes []Record
	err := r.db.SelectContext(ctx, &bikes, getBikes)
	return bikes, err
}

const getBikes = `SELECT id, type, status, charge, total_rides, total_distance, needs_maintenance,
       station_id, last_used, last_maintenance
FROM bikes ORDER BY id`

func (r *Repository) GetBike(ctx context.Context, id string) (Record, error) {
	var bike Record
	err := r.db.GetContext(ctx, &bike, getBike, id)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, ErrNotFound
	}
	return bike, err
}

const getBike = `SELECT id, type, status, charge, total_rides, total_distance, needs_maintenance,
       station_id, last_used, last_maintenance
FROM bikes WHERE id = $1`

// SaveBike upserts the bike's current state.
func (r *Repository) SaveBike(ctx context.Context, s Snapshot) error {
	var stationID sql.NullString
	if s.StationID != "" {
		stationID = sql.NullString{String: s.StationID, Valid: true}
	}
	var lastUsed sql.NullTime
	if !s.LastUsed.IsZero() {
		lastUsed = sql.NullTime{Time: s.LastUsed, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, saveBike,
		s.ID, s.Type.String(), s.Status.String(), s.Charge, s.TotalRides, s.TotalDistance,
		s.NeedsMaintenance, stationID, lastUsed, s.LastMaintenance)
	return err
}

const saveBike = `
INSERT INTO bikes (id, type, status, charge, total_rides, total_distance, needs_maintenance,
                   station_id, last_used, last_maintenance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    charge = EXCLUDED.charge,
    total_rides = EXCLUDED.total_rides,
    total_distance = EXCLUDED.total_distance,
    needs_maintenance = EXCLUDED.needs_maintenance,
    station_id = EXCLUDED.station_id,
    last_used = EXCLUDED.last_used,
    last_maintenance = EXCLUDED.last_maintenance
`
