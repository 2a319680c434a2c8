package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"supergraph/utils"

	"go.uber.org/zap"
)

// SchemaChannel carries subgraph schema announcements
const SchemaChannel = "supergraph:schema-changed"

// SchemaEvent announces that a subgraph started serving a schema version
type SchemaEvent struct {
	Service string    `json:"service"`
	Version string    `json:"version"`
	At      time.Time `json:"at"`
}

// EncodeSchemaEvent returns the wire payload of ev
func EncodeSchemaEvent(ev SchemaEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeSchemaEvent parses a payload published on SchemaChannel
func DecodeSchemaEvent(payload []byte) (SchemaEvent, error) {
	var ev SchemaEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return SchemaEvent{}, fmt.Errorf("decode schema event: %w", err)
	}
	if ev.Service == "" {
		return SchemaEvent{}, fmt.Errorf("decode schema event: service is empty")
	}
	return ev, nil
}

// SchemaPublisher публикует события изменения схемы subgraph
type SchemaPublisher struct {
	service *Service
}

// NewSchemaPublisher creates a publisher over s
func NewSchemaPublisher(s *Service) *SchemaPublisher {
	return &SchemaPublisher{service: s}
}

// PublishSchemaChanged announces that service now serves version
func (p *SchemaPublisher) PublishSchemaChanged(ctx context.Context, service, version string) error {
	client, err := p.service.Client()
	if err != nil {
		return err
	}

	payload, err := EncodeSchemaEvent(SchemaEvent{Service: service, Version: version, At: time.Now().UTC()})
	if err != nil {
		return err
	}

	if err := client.Publish(ctx, SchemaChannel, payload).Err(); err != nil {
		return &UnavailableError{Err: err}
	}

	utils.Logger.Info("Published schema change",
		zap.String("channel", SchemaChannel),
		zap.String("service", service),
		zap.String("version", version),
	)
	return nil
}

// resubscribeInterval is the first pause before subscribing again
const resubscribeInterval = time.Second

// SchemaSubscriber delivers schema events to the gateway
type SchemaSubscriber struct {
	service   *Service
	subscribe func(ctx context.Context) (<-chan SchemaEvent, error)
	retry     time.Duration
}

// NewSchemaSubscriber creates a subscriber over s
func NewSchemaSubscriber(s *Service) *SchemaSubscriber {
	sub := &SchemaSubscriber{service: s, retry: resubscribeInterval}
	sub.subscribe = sub.Subscribe
	return sub
}

// Listen delivers schema events until ctx is done. It subscribes whenever
// Redis is connected and subscribes again when the subscription ends or the
// connection is lost, so the returned channel outlives Redis outages.
func (s *SchemaSubscriber) Listen(ctx context.Context) <-chan SchemaEvent {
	out := make(chan SchemaEvent, 8)

	go func() {
		defer close(out)

		retry := s.retry
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.service.Ready():
			}

			lost := s.service.Lost()
			subCtx, cancel := context.WithCancel(ctx)
			events, err := s.subscribe(subCtx)
			if err != nil {
				cancel()
				utils.Logger.Warn("Schema subscription failed",
					zap.String("channel", SchemaChannel),
					zap.Duration("retry_in", retry),
					zap.Error(err))
			} else {
				retry = s.retry
				forwardEvents(ctx, events, lost, out)
				cancel()
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			if err != nil {
				retry = nextInterval(retry)
			}
		}
	}()

	return out
}

// forwardEvents copies events to out until the subscription ends, the
// connection is lost or ctx is done
func forwardEvents(ctx context.Context, events <-chan SchemaEvent, lost <-chan struct{}, out chan<- SchemaEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
			utils.Logger.Warn("Redis connection lost, schema subscription will be renewed", zap.String("channel", SchemaChannel))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Subscribe listens on SchemaChannel until ctx is done. The returned channel
// is closed when the subscription ends.
func (s *SchemaSubscriber) Subscribe(ctx context.Context) (<-chan SchemaEvent, error) {
	client, err := s.service.Client()
	if err != nil {
		return nil, err
	}

	pubsub := client.Subscribe(ctx, SchemaChannel)
	// Receive confirms the subscription before messages are read
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, &UnavailableError{Err: err}
	}

	messages := pubsub.Channel()
	out := make(chan SchemaEvent, 8)

	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				utils.Logger.Error("Error closing Redis pubsub",
					zap.String("channel", SchemaChannel),
					zap.Error(err))
			}
			utils.Logger.Info("Schema subscription ended", zap.String("channel", SchemaChannel))
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					utils.Logger.Warn("Redis channel closed", zap.String("channel", SchemaChannel))
					return
				}

				ev, err := DecodeSchemaEvent([]byte(msg.Payload))
				if err != nil {
					utils.Logger.Warn("Ignoring malformed schema event",
						zap.String("channel", SchemaChannel),
						zap.Error(err))
					continue
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
