// Package notify delivers ride lifecycle events to riders and downstream
// systems. Delivery is best-effort: a slow or failing sink never blocks the
// caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type Kind string

const (
	RideStarted   Kind = "ride.started"
	RideCompleted Kind = "ride.completed"
	RideCancelled Kind = "ride.cancelled"
	LowBalance    Kind = "rider.low_balance"
)

type Event struct {
	Kind      Kind      `json:"kind"`
	RideID    string    `json:"rideId,omitempty"`
	RiderID   string    `json:"riderId"`
	BikeID    string    `json:"bikeId,omitempty"`
	StationID string    `json:"stationId,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier is the fire-and-forget capability used by the rental service.
type Notifier interface {
	Notify(Event)
}

type Discard struct{}

func (Discard) Notify(Event) {}

// Sink receives events from a Bus on its own goroutine.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Deliver(ctx context.Context, e Event) error { return f(ctx, e) }

const queueSize = 64

// Bus fans events out to every attached sink. Each sink drains its own
// buffered queue; when a queue is full the event is dropped for that sink.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	queues []chan Event
	closed bool
	wg     sync.WaitGroup
}

func NewBus(logger *slog.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{logger: logger}
	for _, s := range sinks {
		b.Attach(s)
	}
	return b
}

func (b *Bus) Attach(s Sink) {
	ch := make(chan Event, queueSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queues = append(b.queues, ch)
	b.wg.Add(1)
	go b.drain(s, ch)
}

func (b *Bus) drain(s Sink, ch <-chan Event) {
	defer b.wg.Done()
	for e := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Deliver(ctx, e); err != nil {
			b.logger.Error("failed to deliver event",
				slog.String("kind", string(e.Kind)),
				slog.String("ride_id", e.RideID),
				slog.Any("error", err))
		}
		cancel()
	}
}

func (b *Bus) Notify(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.queues {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event queue full, dropping event",
				slog.String("kind", string(e.Kind)),
				slog.String("ride_id", e.RideID))
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.queues {
		close(ch)
	}
	b.queues = nil
	b.mu.Unlock()

	b.wg.Wait()
}

// LogSink writes every event to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, e Event) error {
	s.Logger.InfoContext(ctx, "notification",
		slog.String("kind", string(e.Kind)),
		slog.String("rider_id", e.RiderID),
		slog.String("ride_id", e.RideID),
		slog.String("bike_id", e.BikeID),
		slog.String("station_id", e.StationID),
		slog.Float64("amount", e.Amount))
	return nil
}
