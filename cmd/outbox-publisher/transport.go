package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// message is the transport-neutral form of one outbox row on the wire.
type message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

type transport interface {
	Name() string
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg message) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type pubSubTransport struct {
	client  pubSubClient
	resolve func(topic string) topicPublisher

	mu    sync.Mutex
	cache map[string]topicPublisher
}

func newPubSubTransport(client pubSubClient) *pubSubTransport {
	t := &pubSubTransport{client: client, cache: make(map[string]topicPublisher)}
	t.resolve = func(topic string) topicPublisher {
		return newGCPPublisher(client.Publisher(topic))
	}
	return t
}

func (t *pubSubTransport) Name() string { return "pubsub" }

func (t *pubSubTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *pubSubTransport) Publish(ctx context.Context, topic string, msg message) error {
	pub := t.publisher(topic)
	if pub == nil {
		return errPublisherMissing
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if result == nil {
		return errPublisherMissing
	}
	_, err := result.Get(ctx)
	return err
}

func (t *pubSubTransport) publisher(topic string) topicPublisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.cache[topic]; ok {
		return pub
	}
	pub := t.resolve(topic)
	if pub != nil {
		t.cache[topic] = pub
	}
	return pub
}

var errPublisherMissing = errors.New("publisher not configured")

func newGCPPublisher(p *gcppubsub.Publisher) topicPublisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

type kafkaClient interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type kafkaTransport struct {
	client kafkaClient
}

func newKafkaTransport(client kafkaClient) *kafkaTransport {
	return &kafkaTransport{client: client}
}

func (t *kafkaTransport) Name() string { return "kafka" }

func (t *kafkaTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *kafkaTransport) Publish(ctx context.Context, topic string, msg message) error {
	return t.client.Publish(ctx, topic, msg.Key, msg.Data, msg.Attributes)
}
