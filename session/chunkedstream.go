package session

import (
	"fmt"
	"io"
)

// memChunkSize bounds the largest contiguous allocation ChunkedStream ever
// makes; a reassembled GET block-transfer buffer (e.g. a ProfileGeneric
// capture with thousands of rows) grows this way in fixed-size pages
// instead of one repeatedly-doubled slice.
const memChunkSize = 4096

// ChunkedStream is an io.ReadWriter that accumulates bytes across a
// sequence of fixed-size pages rather than one contiguous buffer, so a
// large reassembled response never requires copying the whole thing to
// grow it. Rewind resets the read cursor to the start without discarding
// the written data; Clear discards it.
type ChunkedStream interface {
	io.Reader
	io.Writer
	CopyFrom(src io.Reader) error
	Rewind()
	Clear()
}

type chunkedStream struct {
	pages  [][]byte
	size   int
	offset int
}

// NewChunkedStream returns an empty ChunkedStream.
func NewChunkedStream() ChunkedStream {
	return &chunkedStream{}
}

func (c *chunkedStream) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if len(c.pages) == 0 || len(c.pages[len(c.pages)-1]) == cap(c.pages[len(c.pages)-1]) {
			c.pages = append(c.pages, make([]byte, 0, memChunkSize))
		}
		last := len(c.pages) - 1
		room := cap(c.pages[last]) - len(c.pages[last])
		n := min(room, len(p))
		c.pages[last] = append(c.pages[last], p[:n]...)
		p = p[n:]
		c.size += n
		written += n
	}
	return written, nil
}

// CopyFrom reads src to completion, appending every byte.
func (c *chunkedStream) CopyFrom(src io.Reader) error {
	buf := make([]byte, memChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			c.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("session: copying into chunked stream: %w", err)
		}
	}
}

func (c *chunkedStream) Read(p []byte) (int, error) {
	if c.offset >= c.size {
		return 0, io.EOF
	}
	page := c.offset / memChunkSize
	within := c.offset % memChunkSize
	n := copy(p, c.pages[page][within:])
	c.offset += n
	return n, nil
}

func (c *chunkedStream) Rewind() {
	c.offset = 0
}

func (c *chunkedStream) Clear() {
	c.pages = nil
	c.size = 0
	c.offset = 0
}
