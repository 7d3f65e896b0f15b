// Package bridge connects the in-process fabric to Watermill publishers and
// subscribers, so a graph can hand messages to (or receive them from) any
// transport registered under the transport package.
package bridge

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/jsoncodec"
)

// Codec converts fabric messages to and from Watermill payloads.
type Codec[M any] interface {
	Encode(msg M) ([]byte, error)
	Decode(payload []byte) (M, error)
	// Schema names the payload type in the msgflow_schema header.
	Schema() string
}

// JSONCodec encodes messages as JSON.
type JSONCodec[M any] struct{}

func (JSONCodec[M]) Encode(msg M) ([]byte, error) {
	return jsoncodec.Marshal(msg)
}

func (JSONCodec[M]) Decode(payload []byte) (M, error) {
	if !jsoncodec.Valid(payload) {
		var zero M
		return zero, fmt.Errorf("msgflow: invalid JSON payload for %s", JSONCodec[M]{}.Schema())
	}
	return jsoncodec.UnmarshalAs[M](payload)
}

func (JSONCodec[M]) Schema() string {
	var zero M
	return fmt.Sprintf("%T", zero)
}

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

var protoJSONUnmarshalOptions = protojson.UnmarshalOptions{
	DiscardUnknown: true,
}

// ProtoCodec encodes generated protobuf messages with protojson. M must be a
// concrete message pointer type such as *orderv1.OrderCreated.
type ProtoCodec[M proto.Message] struct{}

func (ProtoCodec[M]) Encode(msg M) ([]byte, error) {
	if any(msg) == nil || !msg.ProtoReflect().IsValid() {
		return nil, fmt.Errorf("msgflow: cannot encode nil %T", msg)
	}
	return protoJSONMarshalOptions.Marshal(msg)
}

func (ProtoCodec[M]) Decode(payload []byte) (M, error) {
	var zero M
	msg, ok := zero.ProtoReflect().New().Interface().(M)
	if !ok {
		return zero, fmt.Errorf("msgflow: cannot instantiate %T", zero)
	}
	if err := protoJSONUnmarshalOptions.Unmarshal(payload, msg); err != nil {
		return zero, fmt.Errorf("failed to unmarshal %T: %w", zero, err)
	}
	return msg, nil
}

func (ProtoCodec[M]) Schema() string {
	var zero M
	return string(zero.ProtoReflect().Descriptor().FullName())
}

func requireCodec[M any](codec Codec[M]) error {
	if codec == nil {
		return errspkg.ErrCodecRequired
	}
	return nil
}
