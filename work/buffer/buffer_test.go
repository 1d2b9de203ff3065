package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolGetPut(t *testing.T) {
	p := NewPool(64 * 1024)

	buf := p.Get()
	assert.Len(t, buf.B, 64*1024)
	p.Put(buf)

	again := p.Get()
	assert.Len(t, again.B, 64*1024)
	p.Put(again)

	p.Put(nil) // must not panic
}
