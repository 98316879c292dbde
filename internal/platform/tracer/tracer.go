// Package tracer provides a small tracing abstraction so registry code can
// emit spans without importing OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: for tests and when tracing is disabled
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"time"

	"aidreg/pkg/platform/privacy"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// RecipientID records a hashed recipient id so traces correlate without
// carrying the identifier itself.
func RecipientID(value string) Attribute {
	return String(AttrRecipientIDHash, privacy.HashIdentifier(value))
}

// Span names used by the recipient registry.
const (
	SpanRegister             = "recipient.register"
	SpanVerify               = "recipient.verify"
	SpanIsVerified           = "recipient.is_verified"
	SpanGetDetails           = "recipient.get_details"
	SpanList                 = "recipient.list"
	SpanVerificationStatuses = "recipient.verification_statuses"
	SpanTransferAdmin        = "registry.transfer_admin"
	SpanReadAdmin            = "registry.read_admin"
	SpanDeploy               = "registry.deploy"
)

// Attribute keys.
const (
	AttrRecipientIDHash = "recipient.id_hash"
	AttrHeight          = "registry.height"
	AttrResultCode      = "registry.result_code"
	AttrBatchSize       = "registry.batch_size"
	AttrFound           = "registry.found"
)

// Event names.
const (
	EventAuditEmitted = "audit.emitted"
)
