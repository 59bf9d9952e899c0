package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

type mockStripe struct {
	mock.Mock
}

func (m *mockStripe) GetCustomer(id string) (*stripe.Customer, error) {
	args := m.Called(id)
	c, _ := args.Get(0).(*stripe.Customer)
	return c, args.Error(1)
}

func (m *mockStripe) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(params)
	pi, _ := args.Get(0).(*stripe.PaymentIntent)
	return pi, args.Error(1)
}

func lookup(riderID string) (string, bool) {
	if riderID == "RIDER-1" {
		return "cus_123", true
	}
	return "", false
}

func customerWithCard() *stripe.Customer {
	return &stripe.Customer{
		ID: "cus_123",
		InvoiceSettings: &stripe.CustomerInvoiceSettings{
			DefaultPaymentMethod: &stripe.PaymentMethod{ID: "pm_card"},
		},
	}
}

func TestStripeAuthorizer_Authorize(t *testing.T) {
	m := new(mockStripe)
	m.On("GetCustomer", "cus_123").Return(customerWithCard(), nil)
	m.On("CreatePaymentIntent", mock.MatchedBy(func(p *stripe.PaymentIntentParams) bool {
		return *p.Amount == 648 && *p.Currency == "eur" && *p.Customer == "cus_123" &&
			*p.PaymentMethod == "pm_card" && *p.CaptureMethod == "manual"
	})).Return(&stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresCapture}, nil)

	a := NewStripeAuthorizer(m, lookup, "")
	require.NoError(t, a.Authorize(context.Background(), "RIDER-1", 6.48))
	m.AssertExpectations(t)
}

func TestStripeAuthorizer_ZeroFareSkipsProvider(t *testing.T) {
	m := new(mockStripe)
	a := NewStripeAuthorizer(m, lookup, "eur")

	require.NoError(t, a.Authorize(context.Background(), "RIDER-1", 0.004))
	m.AssertNotCalled(t, "GetCustomer", mock.Anything)
}

func TestStripeAuthorizer_Failures(t *testing.T) {
	t.Run("unknown rider", func(t *testing.T) {
		a := NewStripeAuthorizer(new(mockStripe), lookup, "eur")
		assert.ErrorIs(t, a.Authorize(context.Background(), "RIDER-2", 3), ErrNoCustomer)
	})

	t.Run("no default card", func(t *testing.T) {
		m := new(mockStripe)
		m.On("GetCustomer", "cus_123").Return(&stripe.Customer{ID: "cus_123"}, nil)
		a := NewStripeAuthorizer(m, lookup, "eur")
		assert.ErrorIs(t, a.Authorize(context.Background(), "RIDER-1", 3), ErrNoMethod)
	})

	t.Run("card error", func(t *testing.T) {
		m := new(mockStripe)
		m.On("GetCustomer", "cus_123").Return(customerWithCard(), nil)
		m.On("CreatePaymentIntent", mock.Anything).
			Return(nil, &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "insufficient funds"})
		a := NewStripeAuthorizer(m, lookup, "eur")
		assert.ErrorIs(t, a.Authorize(context.Background(), "RIDER-1", 3), ErrDeclined)
	})

	t.Run("requires action", func(t *testing.T) {
		m := new(mockStripe)
		m.On("GetCustomer", "cus_123").Return(customerWithCard(), nil)
		m.On("CreatePaymentIntent", mock.Anything).
			Return(&stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresAction}, nil)
		a := NewStripeAuthorizer(m, lookup, "eur")
		assert.ErrorIs(t, a.Authorize(context.Background(), "RIDER-1", 3), ErrDeclined)
	})

	t.Run("api error", func(t *testing.T) {
		m := new(mockStripe)
		m.On("GetCustomer", "cus_123").Return(nil, errors.New("connection reset"))
		a := NewStripeAuthorizer(m, lookup, "eur")
		err := a.Authorize(context.Background(), "RIDER-1", 3)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDeclined)
	})
}

func TestBreaker_OpensOnProviderErrors(t *testing.T) {
	calls := 0
	failing := AuthorizerFunc(func(context.Context, string, float64) error {
		calls++
		return errors.New("timeout")
	})
	b := NewBreaker(failing, BreakerSettings{FailureThreshold: 2, Timeout: time.Hour}, nil)

	assert.Error(t, b.Authorize(context.Background(), "RIDER-1", 1))
	assert.Error(t, b.Authorize(context.Background(), "RIDER-1", 1))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Authorize(context.Background(), "RIDER-1", 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, calls)
}

func TestBreaker_DeclinesKeepCircuitClosed(t *testing.T) {
	f := NewFake()
	f.Decline["RIDER-1"] = true
	b := NewBreaker(f, BreakerSettings{FailureThreshold: 1}, nil)

	for range 3 {
		assert.ErrorIs(t, b.Authorize(context.Background(), "RIDER-1", 1), ErrDeclined)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Len(t, f.Charges(), 3)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(648), Cents(6.48))
	assert.Equal(t, int64(975), Cents(9.75))
	assert.Equal(t, int64(0), Cents(0.004))
}
