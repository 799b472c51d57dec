package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactingWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactingWriter(&buf)

	_, err := w.Write([]byte(`{"level":"info","password":"secret123","username":"admin"}` + "\n"))
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"password":"[REDACTED]"`)
	assert.Contains(t, out, `"username":"admin"`)
	assert.NotContains(t, out, "secret123")
}

func TestRedactingWriterCaseInsensitive(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactingWriter(&buf)

	_, err := w.Write([]byte(`{"UserPassword":"hidden","AUTH_KEY":"xyz"}` + "\n"))
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"UserPassword":"[REDACTED]"`)
	assert.Contains(t, out, `"AUTH_KEY":"[REDACTED]"`)
}

func TestRedactingWriterConsoleKeyValue(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactingWriter(&buf)

	_, err := w.Write([]byte(`12:00PM INF pi intake password=hunter2 username=admin` + "\n"))
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "password=[REDACTED]")
	assert.Contains(t, out, "username=admin")
	assert.NotContains(t, out, "hunter2")
}

func TestRedactingWriterLeavesSafeFieldsAlone(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactingWriter(&buf)

	line := `{"pi_push_id":"p1","network_required_value":"IP"}` + "\n"
	_, err := w.Write([]byte(line))
	assert.NoError(t, err)
	assert.Equal(t, line, buf.String())
}
