package wire

import "errors"

// Errors returned while reading or writing UADP binary primitives. These
// are plain sentinel errors — the pipeline (pubsub/pipeline.go) does not
// wrap them; status.CodeOf maps them to InternalError when a dropped
// frame is logged.
var (
	ErrUnexpectedEOF  = errors.New("wire: unexpected end of buffer")
	ErrBufferTooSmall = errors.New("wire: buffer too small for value")
	ErrInvalidVariant = errors.New("wire: unsupported PublisherId variant tag")
	ErrStringTooLong  = errors.New("wire: string exceeds encodable length")
)
