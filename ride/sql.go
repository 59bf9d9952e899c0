package ride

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// Record is a finished ride as stored in the rides table.
type Record struct {
	ID             string              `db:"id"`
	RiderID        string              `db:"rider_id"`
	BikeID         string              `db:"bike_id"`
	StartStationID string              `db:"start_station_id"`
	EndStationID   sql.NullString      `db:"end_station_id"`
	Status         Status              `db:"status"`
	StartedAt      time.Time           `db:"started_at"`
	EndedAt        time.Time           `db:"ended_at"`
	ActiveMinutes  int                 `db:"active_minutes"`
	Distance       float64             `db:"distance"`
	BikeType       bike.Type           `db:"bike_type"`
	Membership     customer.Membership `db:"membership"`
	BaseCost       float64             `db:"base_cost"`
	AdditionalCost float64             `db:"additional_cost"`
	Discount       float64             `db:"discount"`
	FinalCost      float64             `db:"final_cost"`
	Notes          sql.NullString      `db:"notes"`
}

// SaveRide stores a ride that reached a terminal state. Saving the same ride
// twice is a no-op.
func (r *Repository) SaveRide(ctx context.Context, s Snapshot) error {
	_, err := r.db.ExecContext(ctx, saveRideQuery,
		s.ID, s.RiderID, s.BikeID, s.StartStationID, nullString(s.EndStationID), s.Status.String(),
		s.StartedAt, s.EndedAt, s.ActiveMinutes, s.Distance, s.BikeType.String(), s.Membership.String(),
		s.Fare.Base, s.Fare.Additional, s.Fare.Discount, s.Fare.Final, nullString(s.Notes))
	return err
}

const saveRideQuery = `
INSERT INTO rides (id, rider_id, bike_id, start_station_id, end_station_id, status,
                   started_at, ended_at, active_minutes, distance, bike_type, membership,
                   base_cost, additional_cost, discount, final_cost, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO NOTHING
`

func (r *Repository) GetRidesByRider(ctx context.Context, riderID string) ([]Record, error) {
	var rides []Record
	err := r.db.SelectContext(ctx, &rides, getRidesByRiderQuery, riderID)
	return rides, err
}

const getRidesByRiderQuery = `
SELECT id, rider_id, bike_id, start_station_id, end_station_id, status, started_at, ended_at,
       active_minutes, distance, bike_type, membership, base_cost, additional_cost, discount,
       final_cost, notes
FROM rides WHERE rider_id = $1 ORDER BY started_at DESC
`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
