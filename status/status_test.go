package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		code Code
		msg  string
	}{
		{name: "not found", code: NotFound, msg: "connection 7 unknown"},
		{name: "invalid argument", code: InvalidArgument, msg: "nil config"},
		{name: "configuration error", code: ConfigurationError, msg: "parent frozen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.msg)
			require.NotNil(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("socket reset")
	err := Wrap(ResourceUnavailable, cause, "connect failed")

	assert.Equal(t, ResourceUnavailable, CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(InternalError, nil, "unreachable")
	assert.Equal(t, InternalError, CodeOf(err))
}

func TestIs(t *testing.T) {
	err := New(NotSupported, "blocking socket without scheduler")
	assert.True(t, Is(err, NotSupported))
	assert.False(t, Is(err, NotFound))
	assert.False(t, Is(errors.New("plain"), NotSupported))
}

func TestCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, InternalError, CodeOf(errors.New("not a status error")))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "Good", OK.String())
	assert.Equal(t, "BadUnknown", Code(999).String())
}
