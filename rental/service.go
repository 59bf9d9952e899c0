// Package rental coordinates bikes, stations, rides and riders so that
// starting and ending a rental appears atomic to every observer.
//
// Locks are always taken in the same order: the ride's entry lock, then the
// station lock, then the entity mutexes inside bike, ride and customer.
// Payment, notification and persistence run after the in-memory state is
// committed and never undo it.
package rental

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/notify"
	"github.com/semanticallynull/bikeshare-fleet/internal/payment"
	"github.com/semanticallynull/bikeshare-fleet/ride"
)

type Option func(*Service)

func WithTariff(t ride.Tariff) Option {
	return func(s *Service) { s.tariff = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithAuthorizer(a payment.Authorizer) Option {
	return func(s *Service) { s.payments = a }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("rental") }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(next func() string) Option {
	return func(s *Service) { s.newID = next }
}

// NewRideID returns ids of the form RIDE-1A2B3C4D.
func NewRideID() string {
	return "RIDE-" + strings.ToUpper(uuid.NewString()[:8])
}

type entry struct {
	// mu serializes every operation on one ride.
	mu   sync.Mutex
	ride *ride.Ride
}

type Service struct {
	fleet    *Fleet
	tariff   ride.Tariff
	logger   *slog.Logger
	payments payment.Authorizer
	notifier notify.Notifier
	journal  Journal
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string

	mu    sync.RWMutex
	rides map[string]*entry
	order []string

	// holdMu guards holds (bike id to rider id) and is held across the
	// station call when a reservation is made or dropped.
	holdMu sync.Mutex
	holds  map[string]string

	// opsMu serializes operator work on bikes that are not docked, so an
	// idle undocked bike cannot be re-docked while it is being serviced.
	opsMu sync.Mutex
}

func New(fleet *Fleet, opts ...Option) *Service {
	s := &Service{
		fleet:    fleet,
		tariff:   ride.DefaultTariff(),
		logger:   slog.Default(),
		payments: payment.Approve,
		notifier: notify.Discard{},
		journal:  nopJournal{},
		tracer:   otel.GetTracerProvider().Tracer("rental"),
		now:      time.Now,
		newID:    NewRideID,
		rides:    map[string]*entry{},
		holds:    map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Fleet() *Fleet { return s.fleet }

func (s *Service) Tariff() ride.Tariff { return s.tariff }

func (s *Service) entry(rideID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRideNotFound, rideID)
	}
	return e, nil
}

func (s *Service) register(r *ride.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides[r.ID()] = &entry{ride: r}
	s.order = append(s.order, r.ID())
}

// fail records a rejected operation on the span and in metrics.
func (s *Service) fail(span trace.Span, op, step string, err error) error {
	err = stepErr(op, step, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	s.metrics.failure(op, step)
	return err
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "rental."+name, trace.WithAttributes(attrs...))
}

// settle authorizes amount with the payment provider and deducts it from the
// rider's balance. It reports whether the rider was charged in full.
func (s *Service) settle(ctx context.Context, rider *customer.Customer, rideID string, amount float64) bool {
	if amount <= 0 {
		return true
	}
	logger := s.logger.With(slog.String("ride_id", rideID), slog.String("rider_id", rider.ID()))

	if err := s.payments.Authorize(ctx, rider.ID(), amount); err != nil {
		logger.ErrorContext(ctx, "payment authorization failed", slog.Float64("amount", amount), slog.Any("error", err))
		s.metrics.payment("failed")
		return false
	}
	if err := rider.Deduct(amount); err != nil {
		logger.WarnContext(ctx, "balance not settled", slog.Float64("amount", amount), slog.Any("error", err))
		s.metrics.payment("unsettled")
		return false
	}
	s.metrics.payment("authorized")
	return true
}

func (s *Service) publish(e notify.Event) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.notifier.Notify(e)
}

func (s *Service) warnLowBalance(rider *customer.Customer) {
	if bal := rider.Balance(); bal < s.tariff.MinimumRideBalance {
		s.publish(notify.Event{Kind: notify.LowBalance, RiderID: rider.ID(), Amount: bal})
	}
}
