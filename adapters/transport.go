package adapters

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"telemetry-agent/application"

	"github.com/rs/zerolog"
)

const TCPDefaultConnectTimeout = 10 * time.Second

var (
	ErrTransportNotConnected = fmt.Errorf("transport not connected")
	ErrTransportClosed       = fmt.Errorf("connection closed by peer")
)

type TCPTransportParams struct {
	ConnectTimeout time.Duration

	// DialFunc exists for tests.
	DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

	Log zerolog.Logger
}

func (p *TCPTransportParams) EnsureDefaults() {
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = TCPDefaultConnectTimeout
	}
	if p.DialFunc == nil {
		p.DialFunc = net.DialTimeout
	}
}

// TCPTransport is a plain TCP byte stream with deadline-bounded reads
// and writes, so the network-owning goroutine can never block
// indefinitely on the socket.
type TCPTransport struct {
	params TCPTransportParams

	conn net.Conn

	log zerolog.Logger
}

func NewTCPTransport(params TCPTransportParams) *TCPTransport {
	params.EnsureDefaults()

	return &TCPTransport{params: params, log: params.Log}
}

func (t *TCPTransport) Connect(host string, port int) error {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := t.params.DialFunc("tcp", addr, t.params.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	t.conn = conn
	t.log.Debug().Str("addr", addr).Msg("transport connected")
	return nil
}

// Read fills buf, looping over partial reads because TCP is a stream
// and a single Read may return fewer bytes than requested. It returns
// early with what it has when the deadline expires, and (0,
// ErrTransportClosed) when the peer closes.
func (t *TCPTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, ErrTransportNotConnected
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	read := 0
	for read < len(buf) {
		n, err := t.conn.Read(buf[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, ErrTransportClosed
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return read, nil
			}
			return read, fmt.Errorf("read: %w", err)
		}
	}

	return read, nil
}

func (t *TCPTransport) Write(buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, ErrTransportNotConnected
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	return n, nil
}

func (t *TCPTransport) Disconnect() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.log.Debug().Msg("transport disconnected")
	}
}

var _ application.Transport = &TCPTransport{}
