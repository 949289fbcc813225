package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

var errBrokersRequired = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type dialFunc func(ctx context.Context, network, address string) (*kafkago.Conn, error)

// Client publishes storefront events to Kafka. One writer serves every topic;
// the topic travels on each message.
type Client struct {
	brokers []string
	writer  messageWriter
	dial    dialFunc
}

// NewClient builds a Kafka writer for the configured brokers and checks that
// at least one broker answers.
func NewClient(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Client, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errBrokersRequired
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: false,
	}

	c := &Client{
		brokers: brokers,
		writer:  writer,
		dial:    (&kafkago.Dialer{Timeout: dialTimeout}).DialContext,
	}
	if err := c.Ping(ctx); err != nil {
		_ = writer.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "brokers", strings.Join(brokers, ",")), "kafka client initialized")
	}
	return c, nil
}

// Publish writes one keyed message. Messages sharing a key land on the same
// partition, which keeps per-aggregate ordering.
func (c *Client) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if c == nil || c.writer == nil {
		return errors.New("kafka client not initialized")
	}
	if strings.TrimSpace(topic) == "" {
		return errors.New("kafka topic is required")
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message to %s: %w", topic, err)
	}
	return nil
}

// Ping dials the brokers in order and succeeds on the first that answers.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dial == nil {
		return errors.New("kafka client not initialized")
	}
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := c.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close flushes and closes the writer.
func (c *Client) Close() error {
	if c == nil || c.writer == nil {
		return nil
	}
	return c.writer.Close()
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
