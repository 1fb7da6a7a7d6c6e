package telemetry

import "errors"

var (
	ErrStoreClosed = errors.New("telemetry: store is closed")
	ErrNotFound    = errors.New("telemetry: event not found")
)
