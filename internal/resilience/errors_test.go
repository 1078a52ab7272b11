package resilience

import (
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain_error", eris.New("bad input"), false},
		{"transient_wrapper", NewTransientError(eris.New("overloaded"), 529), true},
		{"wrapped_transient", eris.Wrap(NewTransientError(eris.New("503"), 503), "classifier: call"), true},
		{"conn_reset", syscall.ECONNRESET, true},
		{"conn_refused", syscall.ECONNREFUSED, true},
		{"string_conn_reset", eris.New("read tcp: connection reset by peer"), true},
		{"string_io_timeout", eris.New("dial tcp: i/o timeout"), true},
		{"string_tls", eris.New("net/http: TLS handshake timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := eris.New("inner")
	te := NewTransientError(inner, 500)
	assert.Equal(t, inner, te.Unwrap())
	assert.Equal(t, "inner", te.Error())
	assert.Equal(t, 500, te.StatusCode)
}
