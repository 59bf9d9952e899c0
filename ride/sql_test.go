package ride

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
)

func TestRepository_SaveRide(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(sqlx.NewDb(db, "pgx"))

	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(65 * time.Minute)
	require.NoError(t, r.Complete("ST-2", 0, bike.Standard, customer.Basic, 0))
	s := r.Snapshot()

	mock.ExpectExec(regexp.QuoteMeta(saveRideQuery)).
		WithArgs("RIDE-1", "RIDER-1", "BIKE-1", "ST-1", nullString("ST-2"), "completed",
			wednesdayNoon, wednesdayNoon.Add(65*time.Minute), 65, 0.0, "standard", "basic",
			s.Fare.Base, 0.0, 0.0, 9.75, nullString("")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveRide(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetRidesByRider(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(sqlx.NewDb(db, "pgx"))

	end := wednesdayNoon.Add(10 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(getRidesByRiderQuery)).WithArgs("RIDER-1").WillReturnRows(
		sqlmock.NewRows([]string{
			"id", "rider_id", "bike_id", "start_station_id", "end_station_id", "status", "started_at", "ended_at",
			"active_minutes", "distance", "bike_type", "membership", "base_cost", "additional_cost", "discount",
			"final_cost", "notes",
		}).AddRow("RIDE-9", "RIDER-1", "BIKE-3", "ST-1", nil, "cancelled", wednesdayNoon, end,
			10, 0.0, "electric", "student", 0.0, 0.0, 0.0, 1.0, "changed my mind"),
	)

	rides, err := repo.GetRidesByRider(context.Background(), "RIDER-1")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, Cancelled, rides[0].Status)
	assert.Equal(t, bike.Electric, rides[0].BikeType)
	assert.Equal(t, customer.Student, rides[0].Membership)
	assert.False(t, rides[0].EndStationID.Valid)
	assert.Equal(t, "changed my mind", rides[0].Notes.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}
