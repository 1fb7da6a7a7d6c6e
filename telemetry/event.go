// Package telemetry carries the ambient observability stack spec.md §7
// requires but §1 scopes out of the core algorithms: structured logging,
// a state-change/error hook registry, Prometheus metrics, and a durable
// log of codec/security failures for post-hoc diagnosis.
package telemetry

import (
	"context"
	"time"
)

// EventKind classifies a recorded telemetry Event.
type EventKind string

const (
	EventDecodeError    EventKind = "decode_error"
	EventSecurityError  EventKind = "security_error"
	EventStateChange    EventKind = "state_change"
)

// Event is one durable telemetry record: a dropped frame or an observable
// state transition, carrying enough entity identity to correlate with
// logs (spec.md §7: "logs carry connection/group/reader identity").
type Event struct {
	Kind         EventKind
	ConnectionID uint32
	GroupID      uint32
	ReaderID     uint32
	Message      string
	Cause        string
	At           time.Time
}

// Store persists telemetry Events keyed by an opaque, caller-assigned id
// (the teacher's generic store.Store[T] interface, specialized to Event
// so this package doesn't need a type parameter at every call site).
type Store interface {
	Save(ctx context.Context, key string, event Event) error
	Load(ctx context.Context, key string) (Event, error)
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
