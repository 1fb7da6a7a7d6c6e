package message

import "github.com/axmq/uapubsub/wire"

// DataSetMessage is one decoded payload entry within a NetworkMessage,
// tagged with the DataSetWriterId that selects its target DataSetReader.
type DataSetMessage struct {
	DataSetWriterID uint16
	Fields          []FieldValue
}

// DecodeDataSetMessages decodes the payload (it reads no footer/signature
// bytes; on the secured path security verification has already sliced
// them off before this call) for every DataSetWriterId named in the header's
// PayloadHeader, using resolve to look up each one's field schema.
//
// A DataSetWriterId with no resolvable schema still has its bytes
// consumed via a length-prefixed raw skip, so the cursor lands correctly
// for the next NetworkMessage in the datagram (spec.md §4.5 edge case c).
func DecodeDataSetMessages(r *wire.Reader, h *Header, resolve SchemaResolver) ([]DataSetMessage, error) {
	writerIDs := h.DataSetWriterIDs
	if len(writerIDs) == 0 {
		// No PayloadHeader: a single anonymous DataSetMessage. Nothing in
		// this control plane identifies it without a writer id, so it is
		// decoded generically as a loopback/no-match discard.
		n, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		if _, err := r.Bytes(int(n)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	out := make([]DataSetMessage, 0, len(writerIDs))
	for _, writerID := range writerIDs {
		schema, ok := resolve(writerID)
		if !ok {
			n, err := r.Uint32()
			if err != nil {
				return nil, err
			}
			if _, err := r.Bytes(int(n)); err != nil {
				return nil, err
			}
			continue
		}

		fields, err := decodeFields(r, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, DataSetMessage{DataSetWriterID: writerID, Fields: fields})
	}
	return out, nil
}

func decodeFields(r *wire.Reader, schema []FieldSchema) ([]FieldValue, error) {
	fields := make([]FieldValue, len(schema))
	for i, f := range schema {
		v, err := decodeField(r, f)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	return fields, nil
}

func decodeField(r *wire.Reader, f FieldSchema) (FieldValue, error) {
	switch f.Type {
	case FieldBoolean:
		v, err := r.Bool()
		return FieldValue{Type: f.Type, Bool: v}, err
	case FieldInt16:
		v, err := r.Uint16()
		return FieldValue{Type: f.Type, I16: int16(v)}, err
	case FieldUInt16:
		v, err := r.Uint16()
		return FieldValue{Type: f.Type, U16: v}, err
	case FieldInt32:
		v, err := r.Int32()
		return FieldValue{Type: f.Type, I32: v}, err
	case FieldUInt32:
		v, err := r.Uint32()
		return FieldValue{Type: f.Type, U32: v}, err
	case FieldFloat:
		v, err := r.Float32()
		return FieldValue{Type: f.Type, F32: v}, err
	case FieldDouble:
		v, err := r.Float64()
		return FieldValue{Type: f.Type, F64: v}, err
	case FieldString:
		v, err := r.String()
		return FieldValue{Type: f.Type, Str: v}, err
	case FieldByteString:
		v, err := r.ByteString()
		return FieldValue{Type: f.Type, Bytes: v}, err
	default:
		return FieldValue{}, wire.ErrInvalidVariant
	}
}
