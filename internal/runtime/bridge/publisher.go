package bridge

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	"github.com/drblury/msgflow/internal/runtime/metadata"
)

// PublisherSink is a fabric sink that publishes every message to a topic.
type PublisherSink[M any] struct {
	publisher message.Publisher
	topic     string
	codec     Codec[M]
	metadata  metadata.Metadata
	log       loggingpkg.ServiceLogger
}

// PublisherOptions configures a PublisherSink.
type PublisherOptions struct {
	// Metadata is attached to every published message.
	Metadata metadata.Metadata
	Logger   loggingpkg.ServiceLogger
}

// NewPublisherSink validates its collaborators and returns the sink.
func NewPublisherSink[M any](publisher message.Publisher, topic string, codec Codec[M], opts PublisherOptions) (*PublisherSink[M], error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if err := requireCodec(codec); err != nil {
		return nil, err
	}
	return &PublisherSink[M]{
		publisher: publisher,
		topic:     topic,
		codec:     codec,
		metadata:  opts.Metadata.Clone(),
		log:       loggingpkg.OrNop(opts.Logger),
	}, nil
}

// Topic returns the destination topic.
func (p *PublisherSink[M]) Topic() string { return p.topic }

func (p *PublisherSink[M]) Post(msg M) error {
	return p.PostAsync(context.Background(), msg)
}

// PostAsync encodes msg and publishes it. The returned error is the codec or
// publisher failure.
func (p *PublisherSink[M]) PostAsync(ctx context.Context, msg M) error {
	wm, err := p.NewMessage(msg)
	if err != nil {
		return err
	}
	wm.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, wm); err != nil {
		p.log.Error("Failed to publish message", err, loggingpkg.LogFields{
			"topic":        p.topic,
			"message_uuid": wm.UUID,
		})
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// NewMessage builds the Watermill message for msg without publishing it.
func (p *PublisherSink[M]) NewMessage(msg M) (*message.Message, error) {
	payload, err := p.codec.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message payload: %w", err)
	}
	wm := message.NewMessage(idspkg.CreateULID(), payload)
	wm.Metadata = metadata.ToWatermill(p.metadata.With(metadata.KeySchema, p.codec.Schema()))
	return wm, nil
}
