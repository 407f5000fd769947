package sender

import (
	"errors"
	"fmt"
	"io"

	"github.com/rescp17/bleota/pkg/ota"
)

// Chunker slices an image stream into transport-sized writes. Every chunk
// except possibly the last is exactly packetSize bytes; chunks carry no
// header, the device accounts purely by byte count.
type Chunker struct {
	r          io.Reader
	total      uint32
	sent       uint32
	packetSize int
	buf        []byte
}

// NewChunker wraps r, which must yield exactly total bytes. packetSize <= 0
// selects ota.DefaultMaxPacketSize.
func NewChunker(r io.Reader, total uint32, packetSize int) (*Chunker, error) {
	if total == 0 {
		return nil, errors.New("chunker: total size must be non-zero")
	}
	if packetSize <= 0 {
		packetSize = ota.DefaultMaxPacketSize
	}
	return &Chunker{
		r:          r,
		total:      total,
		packetSize: packetSize,
		buf:        make([]byte, packetSize),
	}, nil
}

// Next returns the next chunk, valid until the following call. It returns
// io.EOF after the final chunk, and an error if the stream ends short of
// the declared total.
func (c *Chunker) Next() ([]byte, error) {
	if c.sent >= c.total {
		return nil, io.EOF
	}

	want := c.packetSize
	if remaining := c.total - c.sent; remaining < uint32(want) {
		want = int(remaining)
	}

	n, err := io.ReadFull(c.r, c.buf[:want])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("chunker: image truncated at %d of %d bytes", c.sent+uint32(n), c.total)
		}
		return nil, fmt.Errorf("chunker: read failed: %w", err)
	}

	c.sent += uint32(n)
	return c.buf[:n], nil
}

// Sent returns the number of image bytes produced so far.
func (c *Chunker) Sent() uint32 { return c.sent }
