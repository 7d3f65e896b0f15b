package msgflow

import (
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/msgflow/internal/runtime"
	"github.com/drblury/msgflow/internal/runtime/bridge"
	"github.com/drblury/msgflow/internal/runtime/clock"
	configpkg "github.com/drblury/msgflow/internal/runtime/config"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	"github.com/drblury/msgflow/internal/runtime/forwarder"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	"github.com/drblury/msgflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/msgflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
	"github.com/drblury/msgflow/internal/runtime/queue"
	"github.com/drblury/msgflow/internal/runtime/rpc"
	transportpkg "github.com/drblury/msgflow/transport"
)

type (
	Config              = configpkg.Config
	QueueConfig         = configpkg.QueueConfig
	ForwarderConfig     = configpkg.ForwarderConfig
	CorrelatorConfig    = configpkg.CorrelatorConfig
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	ComponentInfo       = runtimepkg.ComponentInfo
	ComponentSnapshot   = runtimepkg.ComponentSnapshot

	// Connection fabric
	Sink[M any]       = fabric.Sink[M]
	Source[M any]     = fabric.Source[M]
	Connection[M any] = fabric.Connection[M]
	SinkFunc[M any]   = fabric.SinkFunc[M]
	Fanout[M any]     = fabric.Fanout[M]
	FanoutOptions     = fabric.Options
	Subscription      = fabric.Subscription
	Middleware[M any] = fabric.Middleware[M]
	Envelope          = fabric.Envelope

	// Receivers
	Buffer[M any]           = queue.Buffer[M]
	Receiver[M any]         = queue.Receiver[M]
	PriorityReceiver[M any] = queue.PriorityReceiver[M]
	QueueOptions            = queue.Options
	OverflowPolicy          = queue.OverflowPolicy
	Waitable                = queue.Waitable

	// Active forwarder
	Forwarder[M any] = forwarder.Forwarder[M]
	ForwarderOptions = forwarder.Options
	ForwarderStats   = forwarder.Stats
	WorkerContext    = forwarder.WorkerContext
	WorkerHooks      = forwarder.WorkerHooks
	RetireReason     = forwarder.RetireReason

	// Request/reply
	Request[P any]                = rpc.Request[P]
	Reply[P any]                  = rpc.Reply[P]
	Call[Resp any]                = rpc.Call[Resp]
	Correlator[Req, Resp any]     = rpc.Correlator[Req, Resp]
	CorrelatorOptions             = rpc.Options
	RequestHandler[Req, Resp any] = rpc.Handler[Req, Resp]

	// Watermill bridge
	Codec[M any]                = bridge.Codec[M]
	JSONCodec[M any]            = bridge.JSONCodec[M]
	ProtoCodec[M proto.Message] = bridge.ProtoCodec[M]
	PublisherSink[M any]        = bridge.PublisherSink[M]
	SubscriberSource[M any]     = bridge.SubscriberSource[M]

	Clock       = clock.Clock
	Timer       = clock.Timer
	ManualClock = clock.Manual
	Metrics     = metricspkg.Metrics
	Metadata    = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError
	ConfigurationError    = errspkg.ConfigurationError
	RemoteError           = errspkg.RemoteError

	// Transport registry
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

// Overflow policies for bounded receivers.
const (
	Block      = queue.Block
	DropNewest = queue.DropNewest
	DropOldest = queue.DropOldest

	// Unbounded disables the capacity limit of a receiver.
	Unbounded = configpkg.Unbounded
)

// Retire reasons reported to WorkerHooks.OnWorkerRetire.
const (
	RetireIdle     = forwarder.RetireIdle
	RetireShutdown = forwarder.RetireShutdown
)

// Metadata keys written by msgflow components.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeySchema        = metadatapkg.KeySchema
	MetadataKeySource        = metadatapkg.KeySource
	MetadataKeyError         = metadatapkg.KeyError
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig

	ParseOverflowPolicy = queue.ParseOverflowPolicy
	WaitAny             = queue.WaitAny

	LoggingHooks  = forwarder.LoggingHooks
	MetricsHooks  = forwarder.MetricsHooks
	AlertingHooks = forwarder.AlertingHooks

	RealClock      = clock.Real
	NewManualClock = clock.NewManual
	NewMetrics     = metricspkg.New

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrServiceRequired    = errspkg.ErrServiceRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrSinkRequired       = errspkg.ErrSinkRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrCodecRequired      = errspkg.ErrCodecRequired
	ErrComparatorRequired = errspkg.ErrComparatorRequired
	ErrMessageDropped     = errspkg.ErrMessageDropped
	ErrForwarderClosed    = errspkg.ErrForwarderClosed
	ErrRequestTimeout     = errspkg.ErrRequestTimeout
	ErrRequestCanceled    = errspkg.ErrRequestCanceled
	ErrRequestPending     = errspkg.ErrRequestPending
	ErrCorrelatorClosed   = errspkg.ErrCorrelatorClosed
	ErrUnknownTransport   = transportpkg.ErrUnknownTransport

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.NopLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

func NewFanout[M any](svc *Service, name string) (*Fanout[M], error) {
	return runtimepkg.NewFanout[M](svc, name)
}

func NewReceiver[M any](svc *Service, name string) (*Receiver[M], error) {
	return runtimepkg.NewReceiver[M](svc, name)
}

func NewPriorityReceiver[M any](svc *Service, name string, less func(a, b M) bool) (*PriorityReceiver[M], error) {
	return runtimepkg.NewPriorityReceiver(svc, name, less)
}

func NewForwarder[M any](svc *Service, name string, hooks ...WorkerHooks) (*Forwarder[M], error) {
	return runtimepkg.NewForwarder[M](svc, name, hooks...)
}

func NewPriorityForwarder[M any](svc *Service, name string, less func(a, b M) bool, hooks ...WorkerHooks) (*Forwarder[M], error) {
	return runtimepkg.NewPriorityForwarder(svc, name, less, hooks...)
}

func NewCorrelator[Req, Resp any](svc *Service, name string) (*Correlator[Req, Resp], error) {
	return runtimepkg.NewCorrelator[Req, Resp](svc, name)
}

func NewPublisherSink[M any](svc *Service, topic string, codec Codec[M]) (*PublisherSink[M], error) {
	return runtimepkg.NewPublisherSink(svc, topic, codec)
}

func NewSubscriberSource[M any](svc *Service, topic string, codec Codec[M]) (*SubscriberSource[M], error) {
	return runtimepkg.NewSubscriberSource(svc, topic, codec)
}

// NewStandaloneFanout builds a fan-out without a Service.
func NewStandaloneFanout[M any](opts FanoutOptions) *Fanout[M] {
	return fabric.New[M](opts)
}

// NewStandaloneReceiver builds a FIFO receiver without a Service.
func NewStandaloneReceiver[M any](opts QueueOptions) *Receiver[M] {
	return queue.New[M](opts)
}

// NewStandaloneForwarder builds a FIFO forwarder without a Service. The
// caller must Close it.
func NewStandaloneForwarder[M any](qopts QueueOptions, opts ForwarderOptions) (*Forwarder[M], error) {
	return forwarder.NewQueue[M](qopts, opts)
}

// NewStandaloneCorrelator builds a correlator without a Service.
func NewStandaloneCorrelator[Req, Resp any](opts CorrelatorOptions) *Correlator[Req, Resp] {
	return rpc.New[Req, Resp](opts)
}

func Chain[M any](src Source[M], next Connection[M]) Connection[M] {
	return fabric.Chain(src, next)
}

func Discard[M any]() Sink[M] {
	return fabric.Discard[M]()
}

// ConnectWeak subscribes target without keeping it alive.
func ConnectWeak[M, T any, P interface {
	*T
	Sink[M]
}](f *Fanout[M], target P) P {
	return fabric.ConnectWeak[M, T, P](f, target)
}

func Narrow[M, T any](sink Sink[T]) (Sink[M], error) {
	return fabric.Narrow[M, T](sink)
}

func Match[T any](v any) (T, bool) {
	return fabric.Match[T](v)
}

func Wrap[T any](kind string, payload T) Envelope {
	return fabric.Wrap(kind, payload)
}

func Unwrap[T any](e Envelope) (T, bool) {
	return fabric.Unwrap[T](e)
}

func Route[T any](kind string, sink Sink[T]) Sink[Envelope] {
	return fabric.Route(kind, sink)
}

func Apply[M any](sink Sink[M], mws ...Middleware[M]) Sink[M] {
	return fabric.Apply(sink, mws...)
}

func Recoverer[M any]() Middleware[M] {
	return fabric.Recoverer[M]()
}

func LoggingMiddleware[M any](log ServiceLogger, name string) Middleware[M] {
	return fabric.Logging[M](log, name)
}

// TracingMiddleware uses the global tracer provider when tracer is nil.
func TracingMiddleware[M any](tracer trace.Tracer, name string) Middleware[M] {
	return fabric.Tracing[M](tracer, name)
}

func Respond[Req, Resp any](req Request[Req], payload Resp) Reply[Resp] {
	return rpc.Respond(req, payload)
}

func RespondError[Req, Resp any](req Request[Req], err error) Reply[Resp] {
	return rpc.RespondError[Req, Resp](req, err)
}

func Serve[Req, Resp any](handler RequestHandler[Req, Resp], replies Sink[Reply[Resp]]) Sink[Request[Req]] {
	return rpc.Serve(handler, replies)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
