// Package transport frames the byte stream of a DICOM Upper Layer
// connection into discrete PDUs and carries the ARTIM timer that guards
// every state that is waiting on the peer, Part 8 §9.2.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caio-sobreiro/dicomnet/pdu"
)

// Stats tracks the traffic and error counts of a Channel, mirroring the
// counters an operator would want exposed alongside the association.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	PDUsSent      uint64
	PDUsReceived  uint64
	ReadErrors    uint64
	WriteErrors   uint64
}

// Channel wraps a single net.Conn (plain TCP or TLS) and reads/writes whole
// PDU frames instead of raw bytes. Unlike a reconnecting transport, a
// Channel is scoped to one association: once its underlying conn drops,
// the channel is dead and the owning state machine tears down.
type Channel struct {
	conn net.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool

	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		pdusSent      atomic.Uint64
		pdusReceived  atomic.Uint64
		readErrors    atomic.Uint64
		writeErrors   atomic.Uint64
	}
}

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithReadTimeout bounds every individual Read call. Zero (the default)
// means no per-call deadline; ARTIM governs overall liveness instead.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Channel) { c.readTimeout = d }
}

// WithWriteTimeout bounds every individual Write call.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Channel) { c.writeTimeout = d }
}

// New wraps an already-established net.Conn (TCP or TLS) as a Channel.
func New(conn net.Conn, opts ...Option) *Channel {
	c := &Channel{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens a new TCP connection to address and wraps it as a Channel.
// TLS is the caller's responsibility: pass a *tls.Conn dialed separately
// to New instead when Annex B secure transport is required.
func Dial(ctx context.Context, address string, opts ...Option) (*Channel, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return New(conn, opts...), nil
}

// ReadPDU blocks until one complete PDU frame (6-byte header plus body) is
// available, or ctx is done, or the connection fails. The returned bytes
// are the full frame, ready for pdu.Decode.
func (c *Channel) ReadPDU(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, io.ErrClosedPipe
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	} else if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}

	header := make([]byte, pdu.HeaderLength)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.stats.readErrors.Add(1)
		return nil, err
	}

	length, derr := pdu.PeekLength(header)
	if derr != nil {
		c.stats.readErrors.Add(1)
		return nil, derr
	}

	frame := make([]byte, pdu.HeaderLength+int(length))
	copy(frame, header)
	if length > 0 {
		if _, err := io.ReadFull(c.conn, frame[pdu.HeaderLength:]); err != nil {
			c.stats.readErrors.Add(1)
			return nil, err
		}
	}

	c.stats.bytesReceived.Add(uint64(len(frame)))
	c.stats.pdusReceived.Add(1)
	return frame, nil
}

// WritePDU writes a complete, already-encoded PDU frame.
func (c *Channel) WritePDU(ctx context.Context, frame []byte) error {
	if c.closed.Load() {
		return io.ErrClosedPipe
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := c.conn.Write(frame); err != nil {
		c.stats.writeErrors.Add(1)
		return err
	}

	c.stats.bytesSent.Add(uint64(len(frame)))
	c.stats.pdusSent.Add(1)
	return nil
}

// Close closes the underlying connection exactly once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// Statistics returns a snapshot of the channel's traffic counters.
func (c *Channel) Statistics() Stats {
	return Stats{
		BytesSent:     c.stats.bytesSent.Load(),
		BytesReceived: c.stats.bytesReceived.Load(),
		PDUsSent:      c.stats.pdusSent.Load(),
		PDUsReceived:  c.stats.pdusReceived.Load(),
		ReadErrors:    c.stats.readErrors.Load(),
		WriteErrors:   c.stats.writeErrors.Load(),
	}
}

// LocalAddr returns the local endpoint of the wrapped connection.
func (c *Channel) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote endpoint of the wrapped connection.
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
