package customer

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeCustomer(t *testing.T, m Membership, balance float64) *Customer {
	t.Helper()
	c, err := New("RIDER-1", "Ada", m)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	if balance > 0 {
		require.NoError(t, c.AddFunds(balance))
	}
	return c
}

func TestNew(t *testing.T) {
	c, err := New(" RIDER-1 ", "Ada", Student)
	require.NoError(t, err)
	assert.Equal(t, "RIDER-1", c.ID())
	assert.Equal(t, PendingVerification, c.Status())
	assert.Zero(t, c.Balance())

	_, err = New("", "Ada", Basic)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = New("R", "Ada", Membership(9))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClaim(t *testing.T) {
	for _, tc := range []struct {
		name    string
		setup   func(*Customer)
		balance float64
		wantErr error
	}{
		{name: "eligible", balance: 5},
		{name: "below minimum", balance: 4.99, wantErr: ErrInsufficientBalance},
		{name: "suspended", balance: 20, setup: func(c *Customer) { _ = c.Suspend() }, wantErr: ErrNotEligible},
		{name: "ride in progress", balance: 20, setup: func(c *Customer) { _ = c.Claim("RIDE-0", 0) }, wantErr: ErrActiveRide},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := activeCustomer(t, Basic, tc.balance)
			if tc.setup != nil {
				tc.setup(c)
			}
			err := c.Claim("RIDE-1", 5)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "RIDE-1", c.CurrentRideID())
		})
	}
}

func TestClaim_PendingAccount(t *testing.T) {
	c, err := New("RIDER-2", "", Basic)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Claim("RIDE-1", 0), ErrNotEligible)
}

func TestReleaseAndFinish(t *testing.T) {
	c := activeCustomer(t, Basic, 10)
	require.NoError(t, c.Claim("RIDE-1", 5))

	c.Release("RIDE-other")
	assert.Equal(t, "RIDE-1", c.CurrentRideID())
	c.Release("RIDE-1")
	assert.Empty(t, c.CurrentRideID())
	assert.Zero(t, c.Snapshot().TotalRides)

	require.NoError(t, c.Claim("RIDE-2", 5))
	assert.ErrorIs(t, c.Finish("RIDE-1"), ErrNoActiveRide)
	require.NoError(t, c.Finish("RIDE-2"))
	assert.Equal(t, 1, c.Snapshot().TotalRides)
	assert.ErrorIs(t, c.Finish("RIDE-2"), ErrNoActiveRide)
}

func TestFunds(t *testing.T) {
	c := activeCustomer(t, Basic, 0)

	assert.ErrorIs(t, c.AddFunds(0), ErrInvalidArgument)
	assert.ErrorIs(t, c.AddFunds(MaxTopUp+1), ErrInvalidArgument)
	require.NoError(t, c.AddFunds(MaxTopUp))

	require.NoError(t, c.Deduct(12.5))
	assert.InDelta(t, 987.5, c.Balance(), 1e-9)
	assert.InDelta(t, 12.5, c.Snapshot().TotalSpent, 1e-9)

	assert.ErrorIs(t, c.Deduct(-1), ErrInvalidArgument)
	assert.ErrorIs(t, c.Deduct(2000), ErrInsufficientBalance)
	assert.InDelta(t, 987.5, c.Balance(), 1e-9)
}

func TestDiscount(t *testing.T) {
	for _, tc := range []struct {
		membership Membership
		rides      int
		want       float64
	}{
		{Basic, 0, 0},
		{Premium, 0, 0.15},
		{Student, 51, 0.23},
		{Corporate, 101, 0.15},
		{VIP, 101, 0.30},
		{Student, 200, 0.25},
		{Basic, 50, 0},
	} {
		t.Run(tc.membership.String(), func(t *testing.T) {
			c, err := Restore(Snapshot{ID: "R", Status: Active, Membership: tc.membership, TotalRides: tc.rides})
			require.NoError(t, err)
			assert.InDelta(t, tc.want, c.Discount(), 1e-9)
		})
	}
}

func TestAccountTransitions(t *testing.T) {
	c := activeCustomer(t, Basic, 10)
	assert.ErrorIs(t, c.Activate(), ErrInvalidTransition)

	require.NoError(t, c.UpdateMembership(Premium))
	assert.Equal(t, Premium, c.Membership())

	require.NoError(t, c.Suspend())
	assert.ErrorIs(t, c.UpdateMembership(Basic), ErrNotEligible)
	require.NoError(t, c.Activate())

	require.NoError(t, c.Claim("RIDE-1", 0))
	assert.ErrorIs(t, c.Deactivate(), ErrActiveRide)
	c.Release("RIDE-1")
	require.NoError(t, c.Deactivate())
	assert.Equal(t, Inactive, c.Status())
	assert.ErrorIs(t, c.Activate(), ErrInvalidTransition)
}

func TestParseMembership(t *testing.T) {
	m, err := ParseMembership(" VIP ")
	require.NoError(t, err)
	assert.Equal(t, VIP, m)

	var scanned Membership
	require.NoError(t, scanned.Scan([]byte("corporate")))
	assert.Equal(t, Corporate, scanned)

	_, err = ParseMembership("gold")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRepository_GetCustomers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(sqlx.NewDb(db, "pgx"))

	mock.ExpectQuery(regexp.QuoteMeta(getCustomersQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "stripe_id", "status", "membership", "balance", "total_rides", "total_spent"}).
			AddRow("RIDER-1", "Ada", "cus_123", "active", "premium", 25.0, 60, 140.0).
			AddRow("RIDER-2", nil, nil, "suspended", "basic", 0.0, 0, 0.0),
	)

	records, err := repo.GetCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	c, err := Restore(records[0].Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "cus_123", c.StripeID())
	assert.InDelta(t, 0.18, c.Discount(), 1e-9)
	assert.Equal(t, Suspended, records[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetCustomer_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(sqlx.NewDb(db, "pgx"))

	mock.ExpectQuery(regexp.QuoteMeta(getCustomerQuery)).WithArgs("nobody").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetCustomer(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(sqlx.NewDb(db, "pgx"))

	mock.ExpectExec(regexp.QuoteMeta(updateAccountQuery)).
		WithArgs(7.5, 3, 12.5, "RIDER-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateAccount(context.Background(), Snapshot{ID: "RIDER-1", Balance: 7.5, TotalRides: 3, TotalSpent: 12.5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
