package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReconnectWait  = 2 * time.Second
	defaultMaxReconnects  = 10
	defaultDuplicateTTL   = 2 * time.Minute
	defaultStreamMaxMsgs  = 1_000_000
	eventStreamDescriptor = "Casino round, bet, jackpot and balance events"
)

// NATSClient publishes engine events through NATS JetStream
type NATSClient struct {
	servers string
	name    string
	nc      *nats.Conn
	js      nats.JetStreamContext
}

// NewNATSClient creates a client for the comma-separated server list
func NewNATSClient(servers, name string) *NATSClient {
	return &NATSClient{servers: servers, name: name}
}

// Connect dials NATS and opens a JetStream context. A deadline on ctx bounds
// the initial dial.
func (c *NATSClient) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.MaxReconnects(defaultMaxReconnects),
		nats.ReconnectWait(defaultReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
				return
			}
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("server", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			entry := log.WithError(err)
			if sub != nil {
				entry = entry.WithField("subject", sub.Subject)
			}
			entry.Error("NATS async error")
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.nc, c.js = nc, js
	log.WithField("servers", c.servers).Info("Connected to NATS with JetStream")
	return nil
}

// EnsureStream creates the stream, or widens an existing one whose subject
// list or retention drifted from what the engine publishes
func (c *NATSClient) EnsureStream(streamName string, subjects []string, maxAge time.Duration) error {
	if c.js == nil {
		return errors.New("not connected to NATS JetStream")
	}

	info, err := c.js.StreamInfo(streamName)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:        streamName,
			Description: eventStreamDescriptor,
			Subjects:    subjects,
			Retention:   nats.LimitsPolicy,
			MaxAge:      maxAge,
			MaxMsgs:     defaultStreamMaxMsgs,
			Duplicates:  defaultDuplicateTTL,
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
		log.WithFields(log.Fields{
			"stream":   streamName,
			"subjects": subjects,
		}).Info("Created JetStream stream")
		return nil
	case err != nil:
		return fmt.Errorf("failed to inspect stream %s: %w", streamName, err)
	}

	cfg := info.Config
	missing := false
	for _, subject := range subjects {
		if !slices.Contains(cfg.Subjects, subject) {
			cfg.Subjects = append(cfg.Subjects, subject)
			missing = true
		}
	}
	if !missing && cfg.MaxAge == maxAge {
		log.WithField("stream", streamName).Debug("JetStream stream up to date")
		return nil
	}

	cfg.MaxAge = maxAge
	if _, err := c.js.UpdateStream(&cfg); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", streamName, err)
	}
	log.WithFields(log.Fields{
		"stream":   streamName,
		"subjects": cfg.Subjects,
		"max_age":  maxAge,
	}).Info("Updated JetStream stream")
	return nil
}

// Publish sends data to subject and waits for the JetStream ack. A non-empty
// msgID is set as Nats-Msg-Id so the stream drops duplicates.
func (c *NATSClient) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	if c.js == nil {
		return errors.New("not connected to NATS JetStream")
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	ack, err := c.js.Publish(subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"size":      len(data),
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("Published message to NATS")
	return nil
}

// IsConnected reports whether the connection is currently up
func (c *NATSClient) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Close drains pending publishes and closes the connection
func (c *NATSClient) Close() error {
	if c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	log.Info("NATS connection closed")
	return nil
}
