package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRemotePortDoesNotMutateOriginal(t *testing.T) {
	t1 := New("10.0.0.1", 2948, "10.0.0.2", 9200)
	t2 := t1.WithRemotePort(9201)

	assert.Equal(t, 2948, t1.RemotePort)
	assert.Equal(t, 9201, t2.RemotePort)
	assert.Equal(t, t1.RemoteAddr, t2.RemoteAddr)
	assert.Equal(t, t1.LocalAddr, t2.LocalAddr)
	assert.Equal(t, t1.LocalPort, t2.LocalPort)
}

func TestString(t *testing.T) {
	tp := New("10.0.0.1", 2948, "10.0.0.2", 9200)
	assert.Equal(t, "10.0.0.1:2948<-10.0.0.2:9200", tp.String())
}
