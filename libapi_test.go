package msgflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestBuilderExportsPropagateErrors(t *testing.T) {
	if _, err := NewForwarder[int](nil, "jobs"); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
	if _, err := NewCorrelator[int, int](nil, "rpc"); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
	if _, err := NewPublisherSink[*structpb.Struct](nil, "topic", ProtoCodec[*structpb.Struct]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
}

func TestServiceGraph(t *testing.T) {
	svc, err := TryNewService(&Config{}, NopLogger(), context.Background(), ServiceDependencies{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fwd, err := NewForwarder[string](svc, "jobs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inbox, err := NewReceiver[string](svc, "inbox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fwd.Connect(inbox)

	if err := fwd.Post("hello"); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := inbox.Receive(ctx)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestStandaloneCorrelatorRoundTrip(t *testing.T) {
	c := NewStandaloneCorrelator[string, int](CorrelatorOptions{DefaultTimeout: time.Second})
	c.Connect(Serve(func(_ context.Context, s string) (int, error) { return len(s), nil }, Sink[Reply[int]](c)))

	n, err := c.Request(context.Background(), "four")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
}

func TestEnvelopeExports(t *testing.T) {
	var got []int
	sink := Route[int]("count", SinkFunc[int](func(_ context.Context, n int) error {
		got = append(got, n)
		return nil
	}))

	_ = sink.Post(Wrap("count", 3))
	_ = sink.Post(Wrap("name", "x"))

	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected [3], got %v", got)
	}
}

func TestOverflowPolicyExports(t *testing.T) {
	policy, err := ParseOverflowPolicy("drop-oldest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy != DropOldest {
		t.Fatalf("expected DropOldest, got %v", policy)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryServiceLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeySource, "value")
	if md[MetadataKeySource] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return &clone
}
