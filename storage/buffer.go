package storage

import (
	"bytes"
	"io"
	"sync"
)

// Buffer is an in-memory accumulation target for writers that must stage a
// whole artifact before it can be uploaded in one shot.
type Buffer struct {
	buf  *bytes.Buffer
	size int64
	mu   sync.Mutex
}

func NewBuffer() *Buffer {
	return &Buffer{
		buf: bytes.NewBuffer(nil),
	}
}

func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err = b.buf.Write(p)
	b.size += int64(n)
	return
}

func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Reader returns a reader over everything written so far.
func (b *Buffer) Reader() io.Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.NewReader(b.buf.Bytes())
}
