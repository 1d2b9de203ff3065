package buffer

import (
	"github.com/valyala/bytebufferpool"
)

// Pool hands out fixed-size byte slices for segment copy loops, backed by
// valyala/bytebufferpool so buffers are reused across requests instead of
// allocated per segment.
type Pool struct {
	pool *bytebufferpool.Pool
	size int
}

// NewPool creates a Pool whose buffers are at least size bytes long.
func NewPool(size int) *Pool {
	return &Pool{
		pool: &bytebufferpool.Pool{},
		size: size,
	}
}

// Get returns a buffer whose B slice has the pool's full length, ready for
// io.CopyBuffer. Return it with Put when the copy is done.
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	buf := p.pool.Get()
	if cap(buf.B) < p.size {
		buf.B = make([]byte, p.size)
	}
	buf.B = buf.B[:p.size]
	return buf
}

// Put returns a buffer to the pool.
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		p.pool.Put(buf)
	}
}
