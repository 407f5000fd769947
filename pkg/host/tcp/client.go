package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn is the client side of the dev transport, used by the sender CLI.
// Each WriteData call becomes exactly one data-channel write on the device,
// which is what keeps the token grammar intact over a byte stream.
type Conn struct {
	wmu  sync.Mutex
	conn net.Conn
}

// Dial connects to an update host.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Conn{conn: conn}, nil
}

// WriteData sends one write on the firmware data channel.
func (c *Conn) WriteData(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.conn, KindData, p)
}

// WriteCommand sends one out-of-band command write.
func (c *Conn) WriteCommand(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.conn, KindCommand, p)
}

// ReadStatus blocks until the next status notification arrives. Frames of
// any other kind are skipped.
func (c *Conn) ReadStatus() ([]byte, error) {
	for {
		kind, payload, err := ReadFrame(c.conn)
		if err != nil {
			return nil, err
		}
		if kind == KindStatus {
			return payload, nil
		}
	}
}

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
