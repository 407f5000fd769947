package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rescp17/bleota/pkg/discovery"
	"github.com/rescp17/bleota/pkg/ota"
)

// Config holds the dev host's listen and announcement settings.
type Config struct {
	// Addr is the TCP listen address, e.g. ":9040".
	Addr string
	// Instance is the mDNS instance name announced on the LAN. Empty
	// disables announcement.
	Instance string
	// IdleTimeout drops a client that goes silent for this long. The
	// protocol itself never times out an open transfer, so this is the
	// host-level guard against a wedged client; the drop aborts any
	// in-flight transfer. Zero disables the guard.
	IdleTimeout time.Duration
	// MaxPacketSize caps a single inbound data write, standing in for the
	// negotiated MTU on the BLE link. A client exceeding it is dropped,
	// which aborts any in-flight transfer. Zero disables the cap.
	MaxPacketSize int
}

// Host terminates the dev transport for one ota.Session. It accepts one
// client at a time, mirroring the single-central BLE link: frames from the
// connection are delivered to the session in arrival order on a single
// goroutine, and a dropped connection is reported so an in-flight transfer
// aborts. After a disconnect the host goes back to accepting, the moral
// equivalent of restarting advertising.
type Host struct {
	cfg     Config
	session *ota.Session

	mu sync.Mutex
	ln net.Listener
}

// New creates a host serving session over TCP.
func New(cfg Config, session *ota.Session) *Host {
	return &Host{cfg: cfg, session: session}
}

// Addr returns the bound listen address once ListenAndServe has started.
func (h *Host) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return nil
	}
	return h.ln.Addr()
}

// ListenAndServe binds the listener, optionally announces it over mDNS,
// and serves clients until ctx is cancelled.
func (h *Host) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.cfg.Addr, err)
	}
	h.mu.Lock()
	h.ln = ln
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil {
			slog.Warn("Failed to close listener", "error", err)
		}
	}()

	if h.cfg.Instance != "" {
		port := ln.Addr().(*net.TCPAddr).Port
		go func() {
			if err := discovery.Announce(ctx, discovery.ServiceInfo{
				Name: h.cfg.Instance,
				Type: discovery.ServiceType,
				Port: port,
			}); err != nil {
				slog.Warn("mDNS announcement failed", "error", err)
			}
		}()
	}

	slog.Info("Update host listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		h.serveConn(conn)
	}
}

// serveConn owns one client connection. It runs on the accept loop's
// goroutine so at most one client is served at a time and the session sees
// strictly serialized events.
func (h *Host) serveConn(conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("Failed to close client connection", "error", err)
		}
	}()

	slog.Info("Client connected", "remote", conn.RemoteAddr().String())

	notifier := &connNotifier{conn: conn}
	h.session.SetLink(notifier)
	h.session.HandleConnection(true)

	defer func() {
		h.session.HandleConnection(false)
		h.session.SetLink(nil)
		slog.Info("Client disconnected, accepting new connections")
	}()

	for {
		if h.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout)); err != nil {
				slog.Warn("Failed to set read deadline", "error", err)
			}
		}

		kind, payload, err := ReadFrame(conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				slog.Warn("Dropping idle client", "timeout", h.cfg.IdleTimeout.String())
			} else if !errors.Is(err, io.EOF) {
				slog.Warn("Connection read failed", "error", err)
			}
			return
		}

		switch kind {
		case KindData:
			if h.cfg.MaxPacketSize > 0 && len(payload) > h.cfg.MaxPacketSize {
				// A write this large could never arrive over the real
				// link; treat it as a protocol violation.
				slog.Warn("Dropping client exceeding packet size",
					"bytes", len(payload), "limit", h.cfg.MaxPacketSize)
				return
			}
			h.session.HandleWrite(payload)
		case KindCommand:
			h.session.HandleCommand(payload)
		default:
			// Clients have no business writing status frames; drop them.
			slog.Debug("Ignoring unexpected frame", "kind", kind)
		}
	}
}

// connNotifier sends status frames back over the client connection.
// Notify may be called from the serve goroutine and, for broadcasts, from
// the application; writes are serialized.
type connNotifier struct {
	mu   sync.Mutex
	conn net.Conn
}

func (n *connNotifier) Notify(payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return WriteFrame(n.conn, KindStatus, payload)
}
