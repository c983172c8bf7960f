package pubsub

import (
	"context"
	"sync"

	"content-publisher/infrastructure/logger"

	"cloud.google.com/go/pubsub"
)

type IPubSub interface {
	Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error)
	Close() error
}

// PubSub publishes to Google Cloud Pub/Sub topics, creating them on first use.
type PubSub struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	return pubsub.NewClient(ctx, projectID)
}

func NewPubSub(client *pubsub.Client) *PubSub {
	return &PubSub{client: client, topics: make(map[string]*pubsub.Topic)}
}

func (p *PubSub) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}

	t := p.client.Topic(name)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", name).Info("Topic doesn't exist - creating it")
		if t, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	p.topics[name] = t
	return t, nil
}

func (p *PubSub) Publish(ctx context.Context, topicName string, payload []byte, attrs map[string]string) (string, error) {
	t, err := p.topic(ctx, topicName)
	if err != nil {
		return "", err
	}
	serverID, err := t.Publish(ctx, &pubsub.Message{Data: payload, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", err
	}
	logger.GetLogger().WithField("server_id", serverID).WithField("topic", topicName).Debug("Message published")
	return serverID, nil
}

// Close flushes pending messages and closes the client.
func (p *PubSub) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	return p.client.Close()
}
