// Package message implements the UADP NetworkMessage / DataSetMessage wire
// framing described in spec.md §6. It is a minimal, bit-compatible-in-shape
// implementation of the otherwise out-of-scope Network Message codec,
// kept just complete enough to drive the receive pipeline end to end.
package message

// FieldType is the wire type of a single DataSet field. Only the types
// spec.md's FIXED_SIZE real-time mode allows (numeric, boolean, bounded
// string/byte-string) are represented, since that is the only path that
// needs to reason about field types at all; the slow path treats a field
// as an opaque FieldValue.
type FieldType int

const (
	FieldBoolean FieldType = iota
	FieldInt16
	FieldUInt16
	FieldInt32
	FieldUInt32
	FieldFloat
	FieldDouble
	FieldString
	FieldByteString
)

// IsNumericOrBoolean reports whether the type is eligible for the
// FIXED_SIZE real-time fast path regardless of string-length bounds.
func (t FieldType) IsNumericOrBoolean() bool {
	switch t {
	case FieldString, FieldByteString:
		return false
	default:
		return true
	}
}

// FixedSize returns the wire size in bytes for types that have one, and
// false for variable-length types.
func (t FieldType) FixedSize() (int, bool) {
	switch t {
	case FieldBoolean:
		return 1, true
	case FieldInt16, FieldUInt16:
		return 2, true
	case FieldInt32, FieldUInt32, FieldFloat:
		return 4, true
	case FieldDouble:
		return 8, true
	default:
		return 0, false
	}
}

// FieldValue is a decoded DataSet field. Exactly one member is meaningful,
// selected by Type.
type FieldValue struct {
	Type  FieldType
	Bool  bool
	I16   int16
	U16   uint16
	I32   int32
	U32   uint32
	F32   float32
	F64   float64
	Str   string
	Bytes []byte
}

// FieldSchema describes one DataSet field as configured on a DataSetReader:
// its wire type and, for variable-length types, the configured bound
// (spec.md §4.3 step 4, MaxStringLength).
type FieldSchema struct {
	Name            string
	Type            FieldType
	MaxStringLength int // 0 means "unbounded"; only meaningful for String/ByteString
}

// SchemaResolver looks up the field schema for a given DataSetWriterId, as
// configured on whichever DataSetReader subscribes to it. Returns false if
// no reader is known for that writer id.
type SchemaResolver func(dataSetWriterID uint16) ([]FieldSchema, bool)
