package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// NATS publishes events as core NATS messages, one subject per event type.
type NATS struct {
	conn *nats.Conn
}

// NewNATS connects to url.
func NewNATS(url string, opts ...nats.Option) (*NATS, error) {
	opts = append([]nats.Option{nats.Name("flexcard")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{conn: nc}, nil
}

func (n *NATS) Publish(ctx context.Context, evt domain.CardEvent) error {
	body, err := encode(evt)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(Subject(evt.Type))
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, evt.ID)
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", evt.Type, err)
	}
	// wait for the server to acknowledge the buffered publish
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
	return nil
}
