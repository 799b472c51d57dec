package transcoder

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upperCompiler(body []byte) ([]byte, error) {
	out := make([]byte, len(body))
	for i, b := range body {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return out, nil
}

func failingCompiler([]byte) ([]byte, error) {
	return nil, errors.New("compile boom")
}

func TestTransformNilHeadersIsError(t *testing.T) {
	tc := NewDefault(upperCompiler, upperCompiler)
	_, _, transformed, err := tc.Transform(nil, []byte("hi"))
	require.Error(t, err)
	assert.False(t, transformed)
}

func TestTransformMissingContentTypeIsError(t *testing.T) {
	tc := NewDefault(upperCompiler, upperCompiler)
	_, _, _, err := tc.Transform(http.Header{}, []byte("hi"))
	require.Error(t, err)
}

func TestTransformNoTransformPassesThrough(t *testing.T) {
	tc := NewDefault(upperCompiler, upperCompiler)
	h := http.Header{}
	h.Set("Content-Type", "text/vnd.wap.wml")
	h.Set("Cache-Control", "no-transform")
	mime, body, transformed, err := tc.Transform(h, []byte("hi"))
	require.NoError(t, err)
	assert.False(t, transformed)
	assert.Equal(t, "text/vnd.wap.wml", mime)
	assert.Equal(t, []byte("hi"), body)
}

func TestTransformUnrecognisedTypePassesThrough(t *testing.T) {
	tc := NewDefault(upperCompiler, upperCompiler)
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	mime, body, transformed, err := tc.Transform(h, []byte("hi"))
	require.NoError(t, err)
	assert.False(t, transformed)
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, []byte("hi"), body)
}

func TestTransformWMLCompiles(t *testing.T) {
	tc := NewDefault(upperCompiler, upperCompiler)
	h := http.Header{}
	h.Set("Content-Type", "text/vnd.wap.wml")
	mime, body, transformed, err := tc.Transform(h, []byte("hi"))
	require.NoError(t, err)
	assert.True(t, transformed)
	assert.Equal(t, "application/vnd.wap.wmlc", mime)
	assert.Equal(t, []byte("HI"), body)
}

func TestTransformSICompiles(t *testing.T) {
	tc := NewDefault(upperCompiler, upperCompiler)
	h := http.Header{}
	h.Set("Content-Type", "text/vnd.wap.si")
	mime, _, transformed, err := tc.Transform(h, []byte("hi"))
	require.NoError(t, err)
	assert.True(t, transformed)
	assert.Equal(t, "application/vnd.wap.sic", mime)
}

func TestTransformCompilerErrorPropagates(t *testing.T) {
	tc := NewDefault(failingCompiler, upperCompiler)
	h := http.Header{}
	h.Set("Content-Type", "text/vnd.wap.wml")
	_, _, _, err := tc.Transform(h, []byte("hi"))
	require.Error(t, err)
}
