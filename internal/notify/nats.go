package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<kind>, for example
// bikeshare.ride.completed.
type NATSSink struct {
	pub    Publisher
	prefix string
}

func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "bikeshare"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

func (s *NATSSink) Subject(k Kind) string {
	return s.prefix + "." + string(k)
}

func (s *NATSSink) Deliver(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	if err := s.pub.Publish(s.Subject(e.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", s.Subject(e.Kind), err)
	}
	return nil
}

// DialNATS connects with reconnects enabled so a broker restart does not lose
// the connection for good.
func DialNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
}
