// Package nats is a thin JetStream publishing client.
package nats

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client publishes messages to JetStream.
type Client struct {
	conn *natsgo.Conn
	js   jetstream.JetStream
}

// Connect dials url and prepares a JetStream context.
func Connect(url, name string) (*Client, error) {
	conn, err := natsgo.Connect(url,
		natsgo.Name(name),
		natsgo.Timeout(5*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	return &Client{conn: conn, js: js}, nil
}

// Publish sends data on subject and waits for the stream acknowledgement.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// Close drains pending publishes and closes the connection.
func (c *Client) Close() error {
	return c.conn.Drain()
}
