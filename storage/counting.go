package storage

import "io"

// CountingWriter tracks the number of bytes written through it, so callers
// can record artifact sizes without a second stat round-trip.
type CountingWriter struct {
	w io.WriteCloser
	n int64
}

func NewCountingWriter(w io.WriteCloser) *CountingWriter {
	return &CountingWriter{w: w}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *CountingWriter) Close() error {
	return c.w.Close()
}

func (c *CountingWriter) Count() int64 {
	return c.n
}
