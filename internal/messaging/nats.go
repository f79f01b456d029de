// Package messaging provides a NATS client wrapper for pub/sub between the
// chat server and the moderation worker. It handles connection lifecycle,
// subject-based subscriptions, and convenience methods for the moderation
// channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	SubjectModeration       = "moderation.check"
	SubjectModerationReport = "moderation.report"
	SubjectModerationResult = "moderation.result" // + .<user_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "kindred",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// PublishModerationCheck publishes a moderation check request.
func (c *NATSClient) PublishModerationCheck(data []byte) error {
	return c.Publish(SubjectModeration, data)
}

// SubscribeModerationCheck subscribes to moderation check requests.
func (c *NATSClient) SubscribeModerationCheck(handler func(data []byte)) error {
	return c.Subscribe(SubjectModeration, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishReportNotice publishes a filed abuse report for the moderation
// worker.
func (c *NATSClient) PublishReportNotice(data []byte) error {
	return c.Publish(SubjectModerationReport, data)
}

// SubscribeReportNotices subscribes to filed abuse reports.
func (c *NATSClient) SubscribeReportNotices(handler func(data []byte)) error {
	return c.Subscribe(SubjectModerationReport, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishModerationResult publishes a moderation verdict for a specific user.
func (c *NATSClient) PublishModerationResult(userID string, data []byte) error {
	return c.Publish(SubjectModerationResult+"."+userID, data)
}

// SubscribeModerationResults subscribes to all moderation verdicts.
func (c *NATSClient) SubscribeModerationResults(handler func(data []byte)) error {
	return c.Subscribe(SubjectModerationResult+".*", func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}
