package pubsub

import (
	"context"
	"strconv"
	"time"

	"github.com/axmq/uapubsub/message"
	"github.com/axmq/uapubsub/security"
	"github.com/axmq/uapubsub/status"
	"github.com/axmq/uapubsub/telemetry"
	"github.com/axmq/uapubsub/wire"
)

// process implements the receive pipeline of spec.md §4.5: decode the
// Header, select the ReaderGroup whose security context applies, verify
// and decrypt the payload if required, decode DataSetMessages, and
// dispatch decoded fields to every matching DataSetReader. It loops over
// the datagram since a transport may coalesce several NetworkMessages
// into one buffer (spec.md §4.5: "while bytes remain"). Called with
// mgr.mu already held.
func process(mgr *PubSubManager, conn *Connection, buf []byte) {
	r := wire.NewReader(buf)
	for r.Remaining() > 0 {
		h, err := message.DecodeHeader(r, conn.config.PublisherID.Type)
		if err != nil {
			logDecodeError(mgr, conn, nil, err)
			return // cursor is unreliable past a malformed header; drop the rest of the datagram
		}

		group := selectReaderGroup(conn, h)

		var dsMessages []message.DataSetMessage
		if h.HasSecurity {
			dsMessages, err = decodeSecured(mgr, conn, group, h, r)
			if err != nil {
				return
			}
		} else {
			dsMessages, err = message.DecodeDataSetMessages(r, h, buildResolver(conn))
			if err != nil {
				logDecodeError(mgr, conn, group, err)
				return
			}
		}

		dispatch(mgr, conn, h, dsMessages)
	}
}

// decodeSecured handles spec.md §4.5 step 2's security branch: slice the
// encrypted payload and trailing signature out of r using the header's
// SecurityFooterSize, verify and decrypt via the selected group's
// PolicyContext (PassthroughPolicy if the group carries none, i.e. mode
// NONE), then decode DataSetMessages from the plaintext.
//
// The simplified wire format carries no per-message length field, so an
// encrypted NetworkMessage is assumed to occupy the remainder of the
// datagram: only one secured NetworkMessage per datagram is supported.
func decodeSecured(mgr *PubSubManager, conn *Connection, group *ReaderGroup, h *message.Header, r *wire.Reader) ([]message.DataSetMessage, error) {
	footerSize := int(h.Security.SecurityFooterSize)
	remaining := r.Remaining()
	if footerSize > remaining {
		sErr := status.New(status.InternalError, "pubsub: security footer larger than remaining datagram")
		logSecurityError(mgr, conn, group, sErr)
		return nil, sErr
	}
	payloadLen := remaining - footerSize

	encPayload, err := r.Bytes(payloadLen)
	if err != nil {
		logDecodeError(mgr, conn, group, err)
		return nil, err
	}
	signature, err := r.Bytes(footerSize)
	if err != nil {
		logDecodeError(mgr, conn, group, err)
		return nil, err
	}

	if group == nil {
		sErr := status.New(status.NotFound, "pubsub: no reader group matches this secured message")
		logSecurityError(mgr, conn, nil, sErr)
		return nil, sErr
	}

	policy := group.policyContext()
	plaintext, sErr := policy.VerifyAndDecrypt(nil, encPayload, signature)
	if sErr != nil {
		logSecurityError(mgr, conn, group, sErr)
		return nil, sErr
	}

	pr := wire.NewReader(plaintext)
	dsMessages, err := message.DecodeDataSetMessages(pr, h, buildResolver(conn))
	if err != nil {
		logDecodeError(mgr, conn, group, err)
		return nil, err
	}
	return dsMessages, nil
}

// selectReaderGroup implements spec.md §4.5 step 2's group-selection
// rule: the first ReaderGroup (newest-first) owning a DataSetReader whose
// identifier check matches h, or nil if none does.
func selectReaderGroup(conn *Connection, h *message.Header) *ReaderGroup {
	for _, g := range conn.readerGroups {
		for _, rd := range g.readers {
			if rd.matchesHeader(h) {
				return g
			}
		}
	}
	return nil
}

// buildResolver returns a message.SchemaResolver that searches every
// ReaderGroup/DataSetReader owned by conn (newest-first) for one
// configured with the given DataSetWriterId, returning its field schema.
func buildResolver(conn *Connection) message.SchemaResolver {
	return func(dataSetWriterID uint16) ([]message.FieldSchema, bool) {
		for _, g := range conn.readerGroups {
			for _, rd := range g.readers {
				if rd.config.DataSetWriterID == dataSetWriterID {
					return rd.config.Fields, true
				}
			}
		}
		return nil, false
	}
}

// dispatch implements spec.md §4.5 steps 3-4: every DataSetReader whose
// identifier check and, if configured, encoding requirement match is
// handed its DataSetMessage's fields and promoted to OPERATIONAL if it was
// PREOPERATIONAL. A PREOPERATIONAL parent ReaderGroup is driven to
// OPERATIONAL through setState, which promotes every reader of the group.
func dispatch(mgr *PubSubManager, conn *Connection, h *message.Header, dsMessages []message.DataSetMessage) {
	if len(dsMessages) == 0 {
		return
	}
	for _, g := range conn.readerGroups {
		for _, rd := range g.readers {
			if !rd.matchesHeader(h) || !rd.matchesEncoding(g.config.Encoding) {
				continue
			}
			for _, dsm := range dsMessages {
				if dsm.DataSetWriterID != rd.config.DataSetWriterID {
					continue
				}
				writeFields(rd, dsm.Fields)
				rd.promoteOnDispatch() // notifies the reader's own promotion internally
				if g.state == StatePreOperational {
					g.setState(StateOperational) // promotes every reader, then notifies the group
				}
				if mgr.metrics != nil {
					mgr.metrics.Dispatches.WithLabelValues(g.config.Name, rd.config.Name).Inc()
				}
			}
		}
	}
}

// writeFields implements spec.md §4.4's "map decoded fields to target
// variables": each TargetVariable is paired positionally with the
// decoded field it names.
func writeFields(rd *DataSetReader, fields []message.FieldValue) {
	for _, tv := range rd.config.TargetVariables {
		idx := -1
		for i, f := range rd.config.Fields {
			if f.Name == tv.FieldName {
				idx = i
				break
			}
		}
		if idx < 0 || idx >= len(fields) || tv.Write == nil {
			continue
		}
		if err := tv.Write(fields[idx]); err != nil {
			rd.fail(status.Wrap(status.InternalError, err, "pubsub: target variable write failed"))
		}
	}
}

func logDecodeError(mgr *PubSubManager, conn *Connection, group *ReaderGroup, err error) {
	mgr.logger.Warn("pubsub: dropping malformed frame", "connection", conn.id, "error", err)
	code := status.CodeOf(err)
	if mgr.metrics != nil {
		mgr.metrics.DecodeErrors.WithLabelValues(code.String()).Inc()
	}
	event := telemetry.Event{
		Kind:         telemetry.EventDecodeError,
		ConnectionID: connIDFor(conn),
		GroupID:      groupIDFor(group),
		Message:      err.Error(),
		Cause:        code.String(),
		At:           time.Now(),
	}
	if mgr.hooks != nil {
		mgr.hooks.DispatchDecodeError(event)
	}
	recordEvent(mgr, event)
}

func logSecurityError(mgr *PubSubManager, conn *Connection, group *ReaderGroup, err *status.Error) {
	mgr.logger.Warn("pubsub: security verification failed", "connection", conn.id, "error", err)
	code := status.CodeOf(err)
	if mgr.metrics != nil {
		mgr.metrics.SecurityErrors.WithLabelValues(code.String()).Inc()
	}
	event := telemetry.Event{
		Kind:         telemetry.EventSecurityError,
		ConnectionID: connIDFor(conn),
		GroupID:      groupIDFor(group),
		Message:      err.Error(),
		Cause:        code.String(),
		At:           time.Now(),
	}
	if mgr.hooks != nil {
		mgr.hooks.DispatchSecurityError(event)
	}
	recordEvent(mgr, event)
}

// recordEvent persists ev to the configured Store, if any, keyed by its
// arrival order. Store writes are best-effort: a failure is logged but
// never turns a dropped frame into a second error.
func recordEvent(mgr *PubSubManager, ev telemetry.Event) {
	if mgr.store == nil {
		return
	}
	key := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := mgr.store.Save(context.Background(), key, ev); err != nil {
		mgr.logger.Warn("pubsub: failed to persist telemetry event", "error", err)
	}
}

func connIDFor(conn *Connection) uint32 {
	if conn == nil {
		return 0
	}
	return uint32(conn.id)
}

func groupIDFor(group *ReaderGroup) uint32 {
	if group == nil {
		return 0
	}
	return uint32(group.id)
}

// policyContext returns the group's installed PolicyContext, or a
// PassthroughPolicy when the group has no security context configured
// (mode NONE).
func (g *ReaderGroup) policyContext() security.PolicyContext {
	if g.keyStorage == nil {
		return security.PassthroughPolicy{}
	}
	return g.keyStorage.Policy
}
