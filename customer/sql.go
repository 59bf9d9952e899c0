package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

var ErrNotFound = errors.New("customer not found")

type Record struct {
	ID         string         `db:"id"`
	Name       sql.NullString `db:"name"`
	StripeID   sql.NullString `db:"stripe_id"`
	Status     Status         `db:"status"`
	Membership Membership     `db:"membership"`
	Balance    float64        `db:"balance"`
	TotalRides int            `db:"total_rides"`
	TotalSpent float64        `db:"total_spent"`
}

func (r Record) Snapshot() Snapshot {
	return Snapshot{
		ID:         r.ID,
		Name:       r.Name.String,
		StripeID:   r.StripeID.String,
		Status:     r.Status,
		Membership: r.Membership,
		Balance:    r.Balance,
		TotalRides: r.TotalRides,
		TotalSpent: r.TotalSpent,
	}
}

func (r *Repository) GetCustomers(ctx context.Context) ([]Record, error) {
	var customers []Record
	err := r.db.SelectContext(ctx, &customers, getCustomersQuery)
	return customers, err
}

const getCustomersQuery = `SELECT id, name, stripe_id, status, membership, balance, total_rides, total_spent FROM customers ORDER BY id`

func (r *Repository) GetCustomer(ctx context.Context, id string) (Record, error) {
	var customer Record
	err := r.db.GetContext(ctx, &customer, getCustomerQuery, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return customer, nil
}

const getCustomerQuery = `SELECT id, name, stripe_id, status, membership, balance, total_rides, total_spent FROM customers WHERE id = $1`

// UpdateAccount stores the balance and ride counters after a settled ride.
func (r *Repository) UpdateAccount(ctx context.Context, s Snapshot) error {
	_, err := r.db.ExecContext(ctx, updateAccountQuery, s.Balance, s.TotalRides, s.TotalSpent, s.ID)
	return err
}

const updateAccountQuery = `UPDATE customers SET balance = $1, total_rides = $2, total_spent = $3 WHERE id = $4`
