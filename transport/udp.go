package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Streaming defaults.
const (
	// MaxDatagramSize bounds a single receive.
	MaxDatagramSize = 65535
	// DefaultReceiveTimeout bounds how long Receive blocks.
	DefaultReceiveTimeout = 500 * time.Millisecond
	// DefaultAddr is the loopback endpoint the hook streams to.
	DefaultAddr = "127.0.0.1:17229"
)

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("udp source closed")

// UDPSource receives one frame per datagram.
type UDPSource struct {
	Addr string
	// BufferSize sets the socket receive buffer. Zero leaves the OS default.
	BufferSize int
	Timeout    time.Duration

	conn *net.UDPConn
	buf  []byte
}

// Open binds the socket. Opening an open source does nothing.
func (u *UDPSource) Open() error {
	if u.conn != nil {
		return nil
	}
	addr := u.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("invalid stream address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	if u.BufferSize > 0 {
		if err := conn.SetReadBuffer(u.BufferSize); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to set receive buffer: %w", err)
		}
	}
	u.conn = conn
	u.buf = make([]byte, MaxDatagramSize)
	return nil
}

// LocalAddr is the bound address, or nil before Open.
func (u *UDPSource) LocalAddr() net.Addr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// ReceiveTimeout is Timeout, or the default when unset.
func (u *UDPSource) ReceiveTimeout() time.Duration {
	if u.Timeout <= 0 {
		return DefaultReceiveTimeout
	}
	return u.Timeout
}

// Receive reads one datagram. It returns (nil, nil) when Timeout passes
// with nothing received.
func (u *UDPSource) Receive() ([]byte, error) {
	if u.conn == nil {
		return nil, ErrClosed
	}
	if err := u.conn.SetReadDeadline(time.Now().Add(u.ReceiveTimeout())); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, _, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("udp receive failed: %w", err)
	}

	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

// Close releases the socket.
func (u *UDPSource) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}
