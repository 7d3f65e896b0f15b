package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired     = sterrors.New("msgflow: configuration is required")
	ErrLoggerRequired     = sterrors.New("msgflow: logger is required")
	ErrServiceRequired    = sterrors.New("msgflow: service is required")
	ErrSinkRequired       = sterrors.New("msgflow: sink is required")
	ErrPublisherRequired  = sterrors.New("msgflow: publisher is required")
	ErrSubscriberRequired = sterrors.New("msgflow: subscriber is required")
	ErrTopicRequired      = sterrors.New("msgflow: topic is required")
	ErrCodecRequired      = sterrors.New("msgflow: codec is required")
	ErrComparatorRequired = sterrors.New("msgflow: priority comparator is required")

	// ErrMessageDropped reports that a bounded buffer discarded the posted
	// message because of its overflow policy.
	ErrMessageDropped = sterrors.New("msgflow: message dropped by overflow policy")

	ErrForwarderClosed  = sterrors.New("msgflow: forwarder is closed")
	ErrRequestTimeout   = sterrors.New("msgflow: request timed out")
	ErrRequestCanceled  = sterrors.New("msgflow: request canceled")
	ErrCorrelatorClosed = sterrors.New("msgflow: correlator is closed")
	ErrRequestPending   = sterrors.New("msgflow: request is still pending")
)

// ConfigValidationError wraps the joined errors returned by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "msgflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil so callers can wrap the
// result of Validate unconditionally.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ConfigurationError reports structural misuse detected while wiring a graph,
// for example connecting a sink whose accepted type can never be delivered.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Component == "" {
		return "msgflow: configuration error: " + e.Reason
	}
	return fmt.Sprintf("msgflow: configuration error in %s: %s", e.Component, e.Reason)
}

// RemoteError carries the failure reported by the responder of a request.
type RemoteError struct {
	CorrelationID uint64
	Message       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("msgflow: request %d failed remotely: %s", e.CorrelationID, e.Message)
}
