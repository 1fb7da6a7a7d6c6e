// Package pubsub implements the subscribe-side control plane: the
// PubSubManager/Connection/ReaderGroup/DataSetReader hierarchy, their
// cascading state machines, and the receive pipeline that demultiplexes
// inbound NetworkMessages onto DataSetReaders.
package pubsub

import (
	"time"

	"github.com/axmq/uapubsub/message"
	"github.com/axmq/uapubsub/transport"
	"github.com/axmq/uapubsub/wire"
)

// RTLevel is a ReaderGroup's real-time configuration level.
type RTLevel int

const (
	RTLevelNone RTLevel = iota
	RTLevelFixedSize
)

func (l RTLevel) String() string {
	if l == RTLevelFixedSize {
		return "FIXED_SIZE"
	}
	return "NONE"
}

// Encoding is the NetworkMessage wire encoding a ReaderGroup expects.
type Encoding int

const (
	EncodingUADP Encoding = iota
	EncodingJSON
)

func (e Encoding) String() string {
	if e == EncodingJSON {
		return "JSON"
	}
	return "UADP"
}

// SecurityMode is the message-layer security mode a ReaderGroup enforces.
type SecurityMode int

const (
	SecurityModeNone SecurityMode = iota
	SecurityModeSign
	SecurityModeSignAndEncrypt
)

// Default timing values, spec.md §3 "Essential attributes".
const (
	DefaultSubscribingIntervalMS uint32 = 5
	DefaultSocketTimeoutMS       uint32 = 1000
)

// ReconnectBackoff parameterizes the delay Connection.connect tracks
// between failed binds, modeled on the teacher's qos.Config retry fields
// (RetryInterval / RetryBackoff / MaxRetryInterval). connect advances the
// delay on each failure and resets it on success; nothing schedules a
// reconnect attempt with it.
type ReconnectBackoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultReconnectBackoff mirrors the teacher's qos.DefaultConfig values,
// scaled down for a control-plane reconnect rather than a message retry.
func DefaultReconnectBackoff() ReconnectBackoff {
	return ReconnectBackoff{Initial: time.Second, Multiplier: 2.0, Max: 30 * time.Second}
}

// Next returns the delay following cur, capped at Max.
func (b ReconnectBackoff) Next(cur time.Duration) time.Duration {
	if cur <= 0 {
		return b.Initial
	}
	next := time.Duration(float64(cur) * b.Multiplier)
	if next > b.Max {
		return b.Max
	}
	return next
}

// ConnectionConfig holds a Connection's essential attributes (spec.md §3).
type ConnectionConfig struct {
	Name                string
	PublisherID         wire.PublisherID
	TransportProfileURI string
	Address             string
	Settings            map[string]string
	EventLoopOverride   transport.EventLoop
	Backoff             ReconnectBackoff
}

// ReaderGroupConfig holds a ReaderGroup's essential attributes.
type ReaderGroupConfig struct {
	Name                  string
	SubscribingIntervalMS uint32
	SocketTimeoutMS       uint32
	EnableBlockingSocket  bool
	HasCustomScheduler    bool
	RTLevel               RTLevel
	Encoding              Encoding
	SecurityMode          SecurityMode
	SecurityGroupID       string
	QueueName             string // MQTT broker-transport-settings "queueName"
}

// applyDefaults fills in the zero-value defaults spec.md §3 names.
func (c *ReaderGroupConfig) applyDefaults() {
	if c.SubscribingIntervalMS == 0 {
		c.SubscribingIntervalMS = DefaultSubscribingIntervalMS
	}
	if c.EnableBlockingSocket {
		c.SocketTimeoutMS = 0
	} else if c.SocketTimeoutMS == 0 {
		c.SocketTimeoutMS = DefaultSocketTimeoutMS
	}
}

// TargetVariable binds one decoded DataSet field to an external value
// backend. Write stands in for the out-of-scope Information Model node
// write (spec.md §1).
type TargetVariable struct {
	FieldName string
	Write     func(message.FieldValue) error
}

// DataSetReaderConfig holds a DataSetReader's essential attributes.
type DataSetReaderConfig struct {
	Name                  string
	PublisherID           wire.PublisherID
	WriterGroupID         uint16
	DataSetWriterID       uint16
	Fields                []message.FieldSchema
	TargetVariables       []TargetVariable
	RequireEncodingMatch  bool
	RequiredEncoding      Encoding
}
