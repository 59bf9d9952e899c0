package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// StripeClient is the subset of the Stripe API the authorizer uses.
type StripeClient interface {
	GetCustomer(id string) (*stripe.Customer, error)
	CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeAPI calls Stripe through the package-level resource clients. The API
// key is taken from stripe.Key.
type StripeAPI struct{}

func (StripeAPI) GetCustomer(id string) (*stripe.Customer, error) {
	return stripecustomer.Get(id, nil)
}

func (StripeAPI) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

// CustomerLookup resolves a rider to their Stripe customer id.
type CustomerLookup func(riderID string) (string, bool)

// StripeAuthorizer places a manual-capture hold on the rider's default card
// for the fare of each ride.
type StripeAuthorizer struct {
	client   StripeClient
	lookup   CustomerLookup
	currency string
}

func NewStripeAuthorizer(client StripeClient, lookup CustomerLookup, currency string) *StripeAuthorizer {
	if currency == "" {
		currency = string(stripe.CurrencyEUR)
	}
	return &StripeAuthorizer{
		client:   client,
		lookup:   lookup,
		currency: strings.ToLower(currency),
	}
}

func (a *StripeAuthorizer) Authorize(ctx context.Context, riderID string, amount float64) error {
	if Cents(amount) <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	customerID, ok := a.lookup(riderID)
	if !ok || customerID == "" {
		return fmt.Errorf("%w: %s", ErrNoCustomer, riderID)
	}

	c, err := a.client.GetCustomer(customerID)
	if err != nil {
		return fmt.Errorf("get stripe customer: %w", err)
	}
	if c.InvoiceSettings == nil || c.InvoiceSettings.DefaultPaymentMethod == nil {
		return fmt.Errorf("%w: %s", ErrNoMethod, customerID)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(Cents(amount)),
		Currency:      stripe.String(a.currency),
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(c.InvoiceSettings.DefaultPaymentMethod.ID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String("Bike ride for " + riderID),
	}
	params.AddMetadata("rider_id", riderID)

	pi, err := a.client.CreatePaymentIntent(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			return fmt.Errorf("%w: %s", ErrDeclined, serr.Msg)
		}
		return fmt.Errorf("create payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusSucceeded:
		return nil
	default:
		return fmt.Errorf("%w: payment intent %s is %s", ErrDeclined, pi.ID, pi.Status)
	}
}
