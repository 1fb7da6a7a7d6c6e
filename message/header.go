package message

import "github.com/axmq/uapubsub/wire"

// Header-flags bit layout (UADP Part 14 §7.2.2, simplified to the fields
// this control plane actually inspects).
const (
	flagPublisherIDEnabled = 1 << 0
	flagGroupHeaderEnabled = 1 << 1
	flagPayloadHeaderEnabled = 1 << 2
	flagExtendedHeaderEnabled = 1 << 3
	flagSecurityEnabled = 1 << 4
)

// SecurityHeader carries the key-rollover token and nonce needed to
// select and initialize the correct decrypt/verify context.
type SecurityHeader struct {
	SecurityTokenID    uint32
	MessageNonce       []byte
	SecurityFooterSize uint16
}

// GroupHeader carries the WriterGroup-level fields; its WriterGroupID is
// the one the DataSetReader identifier check compares.
type GroupHeader struct {
	WriterGroupID        uint16
	GroupVersion         uint32
	NetworkMessageNumber uint16
	SequenceNumber       uint16
}

// Header is the decoded, unencrypted prefix of a NetworkMessage: version,
// flags, PublisherId, and the optional Group/Payload/Security sub-headers.
type Header struct {
	Version     uint8
	PublisherID wire.PublisherID
	HasGroup    bool
	Group       GroupHeader
	DataSetWriterIDs []uint16 // PayloadHeader, present iff len > 0
	HasSecurity bool
	Security    SecurityHeader
}

// DecodeHeader decodes the Header starting at r's current position,
// leaving the cursor positioned at the start of the (possibly encrypted)
// payload. On any malformed input it returns wire's sentinel errors
// unwrapped — the caller (pubsub/pipeline.go) is responsible for turning
// that into a logged, dropped-frame outcome per spec.md §4.5 step 1.
func DecodeHeader(r *wire.Reader, publisherIDType wire.PublisherIDType) (*Header, error) {
	version, err := r.Uint8()
	if err != nil {
		return nil, err
	}

	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}

	h := &Header{Version: version}

	if flags&flagPublisherIDEnabled != 0 {
		pid, err := wire.ReadPublisherID(r, publisherIDType)
		if err != nil {
			return nil, err
		}
		h.PublisherID = pid
	}

	if flags&flagGroupHeaderEnabled != 0 {
		h.HasGroup = true
		if h.Group.WriterGroupID, err = r.Uint16(); err != nil {
			return nil, err
		}
		if h.Group.GroupVersion, err = r.Uint32(); err != nil {
			return nil, err
		}
		if h.Group.NetworkMessageNumber, err = r.Uint16(); err != nil {
			return nil, err
		}
		if h.Group.SequenceNumber, err = r.Uint16(); err != nil {
			return nil, err
		}
	}

	if flags&flagPayloadHeaderEnabled != 0 {
		count, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		ids := make([]uint16, count)
		for i := range ids {
			if ids[i], err = r.Uint16(); err != nil {
				return nil, err
			}
		}
		h.DataSetWriterIDs = ids
	}

	if flags&flagExtendedHeaderEnabled != 0 {
		// Timestamp + picoseconds + promoted fields: not consulted by the
		// control plane, but still present on the wire and must be
		// skipped so the payload cursor lands correctly.
		if _, err := r.Bytes(10); err != nil {
			return nil, err
		}
	}

	if flags&flagSecurityEnabled != 0 {
		h.HasSecurity = true
		if h.Security.SecurityTokenID, err = r.Uint32(); err != nil {
			return nil, err
		}
		nonceLen, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		if h.Security.MessageNonce, err = r.Bytes(int(nonceLen)); err != nil {
			return nil, err
		}
		if h.Security.SecurityFooterSize, err = r.Uint16(); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// EncodeHeader writes h to w, the encode-side counterpart used by tests to
// build frames.
func EncodeHeader(w *wire.Writer, h *Header) error {
	w.Uint8(h.Version)

	flags := byte(0)
	flags |= flagPublisherIDEnabled
	if h.HasGroup {
		flags |= flagGroupHeaderEnabled
	}
	if len(h.DataSetWriterIDs) > 0 {
		flags |= flagPayloadHeaderEnabled
	}
	if h.HasSecurity {
		flags |= flagSecurityEnabled
	}
	w.Uint8(flags)

	if err := wire.WritePublisherID(w, h.PublisherID); err != nil {
		return err
	}

	if h.HasGroup {
		w.Uint16(h.Group.WriterGroupID)
		w.Uint32(h.Group.GroupVersion)
		w.Uint16(h.Group.NetworkMessageNumber)
		w.Uint16(h.Group.SequenceNumber)
	}

	if len(h.DataSetWriterIDs) > 0 {
		w.Uint8(uint8(len(h.DataSetWriterIDs)))
		for _, id := range h.DataSetWriterIDs {
			w.Uint16(id)
		}
	}

	if h.HasSecurity {
		w.Uint32(h.Security.SecurityTokenID)
		w.Uint8(uint8(len(h.Security.MessageNonce)))
		w.Raw(h.Security.MessageNonce)
		w.Uint16(h.Security.SecurityFooterSize)
	}

	return nil
}
