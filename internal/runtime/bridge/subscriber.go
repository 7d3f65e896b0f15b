package bridge

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	"github.com/drblury/msgflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
)

// SubscriberSource is a fabric source fed by a Watermill topic. Run
// subscribes and delivers each decoded message to the connected sinks.
type SubscriberSource[M any] struct {
	*fabric.Fanout[M]

	subscriber message.Subscriber
	topic      string
	codec      Codec[M]
	log        loggingpkg.ServiceLogger
}

// SubscriberOptions configures a SubscriberSource.
type SubscriberOptions struct {
	Name    string
	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.Metrics
}

// NewSubscriberSource validates its collaborators and returns the source.
func NewSubscriberSource[M any](subscriber message.Subscriber, topic string, codec Codec[M], opts SubscriberOptions) (*SubscriberSource[M], error) {
	if subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if err := requireCodec(codec); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "subscriber-" + topic
	}
	log := loggingpkg.OrNop(opts.Logger).With(loggingpkg.LogFields{"topic": topic})
	return &SubscriberSource[M]{
		Fanout:     fabric.New[M](fabric.Options{Name: name, Logger: log, Metrics: opts.Metrics}),
		subscriber: subscriber,
		topic:      topic,
		codec:      codec,
		log:        log,
	}, nil
}

// Topic returns the subscribed topic.
func (s *SubscriberSource[M]) Topic() string { return s.topic }

// Run consumes the topic until ctx ends or the subscription closes.
//
// Decoded messages are posted with PostAsync and acked afterwards. Payloads
// that fail to decode are acked and logged, since redelivery cannot fix
// them. A message still in delivery when ctx ends is nacked.
func (s *SubscriberSource[M]) Run(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}
	s.log.Info("Subscriber source started", nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case wm, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(ctx, wm)
		}
	}
}

func (s *SubscriberSource[M]) handle(ctx context.Context, wm *message.Message) {
	msg, err := s.codec.Decode(wm.Payload)
	if err != nil {
		s.log.Error("Discarding undecodable message", err, loggingpkg.LogFields{
			"message_uuid": wm.UUID,
			"schema":       wm.Metadata.Get(metadata.KeySchema),
		})
		wm.Ack()
		return
	}

	// PostAsync only fails when ctx ended before every sink finished.
	if err := s.PostAsync(ctx, msg); err != nil {
		wm.Nack()
		return
	}
	wm.Ack()
}
