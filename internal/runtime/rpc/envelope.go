// Package rpc layers correlated request/reply on top of the fabric: a
// Correlator stamps outgoing requests with an id and completes the caller's
// Call when the matching reply arrives, times out or is canceled.
package rpc

import (
	"strconv"

	"github.com/drblury/msgflow/internal/runtime/metadata"
)

// Request is an outgoing payload stamped with its correlation id.
type Request[P any] struct {
	CorrelationID uint64
	Payload       P
	Metadata      metadata.Metadata
}

// Reply answers the request with the same CorrelationID. A non-empty Err
// marks a failure reported by the responder.
type Reply[P any] struct {
	CorrelationID uint64
	Payload       P
	Err           string
	Metadata      metadata.Metadata
}

// Respond stamps a successful reply to req.
func Respond[Req, Resp any](req Request[Req], payload Resp) Reply[Resp] {
	return Reply[Resp]{
		CorrelationID: req.CorrelationID,
		Payload:       payload,
		Metadata:      replyMetadata(req),
	}
}

// RespondError stamps a failed reply to req.
func RespondError[Req, Resp any](req Request[Req], err error) Reply[Resp] {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	md := replyMetadata(req).With(metadata.KeyError, msg)
	return Reply[Resp]{
		CorrelationID: req.CorrelationID,
		Err:           msg,
		Metadata:      md,
	}
}

func replyMetadata[Req any](req Request[Req]) metadata.Metadata {
	return req.Metadata.With(metadata.KeyCorrelationID, strconv.FormatUint(req.CorrelationID, 10))
}
