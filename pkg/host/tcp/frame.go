package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// The dev transport runs the characteristic-oriented protocol over a single
// TCP stream. GATT preserves write boundaries and carries three separate
// characteristics; a byte stream does neither, so every write travels as a
// small frame: one kind byte, a 16-bit little-endian payload length, and
// the payload itself.

// Kind identifies which characteristic a frame belongs to.
type Kind byte

const (
	// KindData carries a write on the firmware data channel.
	KindData Kind = 0x01
	// KindCommand carries an out-of-band command write.
	KindCommand Kind = 0x02
	// KindStatus carries an outbound status or progress notification.
	KindStatus Kind = 0x03
)

const headerLen = 3

// MaxFramePayload bounds a single frame payload. It is far above any
// negotiated packet size and exists only to cap decode memory.
const MaxFramePayload = 32 * 1024

var (
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrUnknownKind     = errors.New("frame: unknown frame kind")
)

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, headerLen+len(payload))
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint16(buf[1:headerLen], uint16(len(payload)))
	copy(buf[headerLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("frame write failed: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. It returns the kind and payload, or an
// error if the stream ends or carries a malformed frame.
func ReadFrame(r io.Reader) (Kind, []byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	kind := Kind(header[0])
	switch kind {
	case KindData, KindCommand, KindStatus:
	default:
		return 0, nil, ErrUnknownKind
	}

	length := binary.LittleEndian.Uint16(header[1:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("frame payload read failed: %w", err)
	}
	return kind, payload, nil
}
