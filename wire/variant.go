package wire

// PublisherIDType is the tag for the PublisherId variant. This codec does
// not write it to the wire: the header decoder is handed the type the
// Connection is configured with.
type PublisherIDType byte

const (
	PublisherIDByte PublisherIDType = iota
	PublisherIDUInt16
	PublisherIDUInt32
	PublisherIDUInt64
	PublisherIDString
)

// IsFixedSize reports whether the variant has a compile-time-known wire
// size. Strings are excluded from FIXED_SIZE real-time mode for exactly
// this reason.
func (t PublisherIDType) IsFixedSize() bool {
	return t != PublisherIDString
}

// PublisherID is a type-tagged PublisherId value. Only one of the numeric
// fields or Str is meaningful, selected by Type.
type PublisherID struct {
	Type   PublisherIDType
	Byte   uint8
	UInt16 uint16
	UInt32 uint32
	UInt64 uint64
	Str    string
}

// Equal performs the type-aware comparison DataSetReader identifier
// checking requires: values of different wire types are never equal,
// even if numerically coercible.
func (p PublisherID) Equal(other PublisherID) bool {
	if p.Type != other.Type {
		return false
	}
	switch p.Type {
	case PublisherIDByte:
		return p.Byte == other.Byte
	case PublisherIDUInt16:
		return p.UInt16 == other.UInt16
	case PublisherIDUInt32:
		return p.UInt32 == other.UInt32
	case PublisherIDUInt64:
		return p.UInt64 == other.UInt64
	case PublisherIDString:
		return p.Str == other.Str
	default:
		return false
	}
}

// ReadPublisherID decodes a PublisherId of the given wire type from r.
func ReadPublisherID(r *Reader, t PublisherIDType) (PublisherID, error) {
	switch t {
	case PublisherIDByte:
		v, err := r.Uint8()
		return PublisherID{Type: t, Byte: v}, err
	case PublisherIDUInt16:
		v, err := r.Uint16()
		return PublisherID{Type: t, UInt16: v}, err
	case PublisherIDUInt32:
		v, err := r.Uint32()
		return PublisherID{Type: t, UInt32: v}, err
	case PublisherIDUInt64:
		v, err := r.Uint64()
		return PublisherID{Type: t, UInt64: v}, err
	case PublisherIDString:
		v, err := r.String()
		return PublisherID{Type: t, Str: v}, err
	default:
		return PublisherID{}, ErrInvalidVariant
	}
}

// WritePublisherID encodes v according to its Type.
func WritePublisherID(w *Writer, v PublisherID) error {
	switch v.Type {
	case PublisherIDByte:
		w.Uint8(v.Byte)
	case PublisherIDUInt16:
		w.Uint16(v.UInt16)
	case PublisherIDUInt32:
		w.Uint32(v.UInt32)
	case PublisherIDUInt64:
		w.Uint64(v.UInt64)
	case PublisherIDString:
		return w.String(v.Str)
	default:
		return ErrInvalidVariant
	}
	return nil
}
