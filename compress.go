package gelf

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// compressor gzips message bodies, reusing writers and buffers across
// sends. Every writer in one compressor shares the same level.
type compressor struct {
	level   int
	writers sync.Pool
	buffers sync.Pool
}

// maxPooledBuffer keeps unusually large bodies from pinning memory in the pool.
const maxPooledBuffer = 1 << 20

func newCompressor(level int) (*compressor, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	// fail on a bad level here rather than on the first send
	if _, err := gzip.NewWriterLevel(nil, level); err != nil {
		return nil, err
	}

	c := &compressor{level: level}
	c.writers.New = func() any {
		w, _ := gzip.NewWriterLevel(nil, c.level)
		return w
	}
	c.buffers.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, 4*1024))
	}
	return c, nil
}

// compress returns a gzip copy of raw owned by the caller.
func (c *compressor) compress(raw []byte) ([]byte, error) {
	buf := c.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.putBuffer(buf)

	gz := c.writers.Get().(*gzip.Writer)
	gz.Reset(buf)
	defer c.writers.Put(gz)

	if _, err := gz.Write(raw); err != nil {
		_ = gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (c *compressor) putBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= maxPooledBuffer {
		c.buffers.Put(buf)
	}
}

// IsGzip reports whether body starts with the gzip magic number.
func IsGzip(body []byte) bool {
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}
