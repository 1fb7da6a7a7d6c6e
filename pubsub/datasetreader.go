package pubsub

import (
	"github.com/axmq/uapubsub/ids"
	"github.com/axmq/uapubsub/message"
	"github.com/axmq/uapubsub/status"
)

// DataSetReader subscribes to a specific (PublisherId, WriterGroupId,
// DataSetWriterId) tuple and maps its decoded fields to target variables
// (spec.md §4.4).
type DataSetReader struct {
	id     ids.ID
	group  *ReaderGroup
	config DataSetReaderConfig
	state  State

	frozen       bool
	offsetBuffer []message.FieldSchema // cleared by freeze/unfreeze; nothing in this package builds it, so decoding is always field by field
}

// ID returns the reader's unique identifier.
func (r *DataSetReader) ID() ids.ID { return r.id }

// State returns the reader's current lifecycle state.
func (r *DataSetReader) State() State { return r.state }

// Config returns a copy of the reader's configuration.
func (r *DataSetReader) Config() DataSetReaderConfig { return r.config }

// matchesHeader implements spec.md §4.4's identifier check against a
// decoded NetworkMessage Header: PublisherId equal (type-aware), and
// WriterGroupId/DataSetWriterId equal when the corresponding sub-header
// is present. A mismatch is silent, never an error.
func (r *DataSetReader) matchesHeader(h *message.Header) bool {
	if !h.PublisherID.Equal(r.config.PublisherID) {
		return false
	}
	if h.HasGroup && h.Group.WriterGroupID != r.config.WriterGroupID {
		return false
	}
	if len(h.DataSetWriterIDs) > 0 {
		found := false
		for _, id := range h.DataSetWriterIDs {
			if id == r.config.DataSetWriterID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matchesEncoding additionally requires an encoding match when the
// reader's own config sets RequireEncodingMatch; enc is the encoding of
// the reader's group.
func (r *DataSetReader) matchesEncoding(enc Encoding) bool {
	if !r.config.RequireEncodingMatch {
		return true
	}
	return r.config.RequiredEncoding == enc
}

// setState applies a new state and notifies the configured state-change
// callback with cause — a reader is itself an observable entity (spec.md
// §6 "callback invoked on every observable state transition", §7 "All
// state transitions invoke the configured state-change callback", §8
// scenario 4's "one per descendant group and reader"). It never
// cascades further, since a reader has no children of its own (spec.md
// §4.4: "Tracks parent group").
func (r *DataSetReader) setState(s State, cause status.Code) {
	r.state = s
	r.group.conn.manager.notify(StateChange{EntityID: r.id, State: s, Cause: cause})
}

// promoteOnDispatch implements "receiving a valid frame while
// PREOPERATIONAL promotes to OPERATIONAL" (spec.md §4.4). It is a no-op
// once already OPERATIONAL or in a state dispatch cannot promote from.
func (r *DataSetReader) promoteOnDispatch() bool {
	if r.state == StatePreOperational {
		r.setState(StateOperational, status.OK)
		return true
	}
	return false
}

// fail drives the reader (not its group) to ERROR with cause, per
// spec.md §4.4: "any fatal decode error drives the reader... to ERROR".
func (r *DataSetReader) fail(cause *status.Error) {
	r.setState(StateError, status.CodeOf(cause))
}

// freeze marks the reader frozen and clears its offset buffer. The
// buffer is not rebuilt from received frames; the receive pipeline keeps
// decoding the reader's fields one by one.
func (r *DataSetReader) freeze() {
	r.frozen = true
	r.offsetBuffer = nil
}

// unfreeze clears the frozen flag and any built offset buffer.
func (r *DataSetReader) unfreeze() {
	r.frozen = false
	r.offsetBuffer = nil
}

// validateFixedSize checks spec.md §4.3 step 4's per-field constraints
// for FIXED_SIZE real-time mode: every field must be numeric/boolean, or
// a string/byte-string with a caller-specified MaxStringLength bound.
func (r *DataSetReader) validateFixedSize() *status.Error {
	for _, f := range r.config.Fields {
		if f.Type.IsNumericOrBoolean() {
			continue
		}
		if f.MaxStringLength == 0 {
			return status.New(status.NotSupported, "pubsub: FIXED_SIZE field has unbounded variable length: "+f.Name)
		}
	}
	return nil
}
