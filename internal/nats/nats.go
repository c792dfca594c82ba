// Package nats wraps the NATS connection used for event publishing and
// subscription. Outbound notification events go through JetStream so they
// survive consumer restarts; inbound invoice events use core queue
// subscriptions so replicas share the work.
package nats

import (
	"context"
	"fmt"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds connection settings.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Client is a connected NATS client with a JetStream context.
type Client struct {
	conn *natsio.Conn
	js   jetstream.JetStream
}

// New connects to NATS and initializes JetStream.
func New(cfg Config) (*Client, error) {
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	conn, err := natsio.Connect(cfg.URL,
		natsio.Name(cfg.Name),
		natsio.MaxReconnects(cfg.MaxReconnects),
		natsio.ReconnectWait(wait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish publishes a message through JetStream and waits for the ack.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// Request sends a core request and waits for a single reply.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

// QueueSubscribe subscribes to a core subject within a queue group.
func (c *Client) QueueSubscribe(subject, queue string, handler natsio.MsgHandler) (*natsio.Subscription, error) {
	return c.conn.QueueSubscribe(subject, queue, handler)
}

// Drain flushes pending messages and unsubscribes all subscriptions.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// Close closes the connection immediately. Prefer Drain during shutdown.
func (c *Client) Close() {
	c.conn.Close()
}
