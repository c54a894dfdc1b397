package adapters

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLoopbackServer returns a listener plus a channel delivering the
// server side of the next accepted connection.
func newLoopbackServer(t *testing.T) (net.Listener, chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()

	return ln, conns
}

func connectTransport(t *testing.T, ln net.Listener) *TCPTransport {
	t.Helper()

	transport := NewTCPTransport(TCPTransportParams{Log: zerolog.Nop()})
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, transport.Connect("127.0.0.1", addr.Port))
	t.Cleanup(transport.Disconnect)

	return transport
}

func TestTCPTransport_Connect_Refused(t *testing.T) {
	// Grab a port, then close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	transport := NewTCPTransport(TCPTransportParams{Log: zerolog.Nop()})
	require.Error(t, transport.Connect("127.0.0.1", port))
}

func TestTCPTransport_Read_ExactAcrossPartialWrites(t *testing.T) {
	ln, conns := newLoopbackServer(t)
	transport := connectTransport(t, ln)
	server := <-conns

	go func() {
		server.Write([]byte{0x01, 0x02, 0x03})
		time.Sleep(20 * time.Millisecond)
		server.Write([]byte{0x04, 0x05})
	}()

	buf := make([]byte, 5)
	n, err := transport.Read(buf, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, buf)
}

func TestTCPTransport_Read_TimeoutReturnsPartial(t *testing.T) {
	ln, conns := newLoopbackServer(t)
	transport := connectTransport(t, ln)
	server := <-conns

	_, err := server.Write([]byte{0xAA, 0xBB})
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := transport.Read(buf, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTCPTransport_Read_TimeoutEmpty(t *testing.T) {
	ln, conns := newLoopbackServer(t)
	transport := connectTransport(t, ln)
	<-conns

	buf := make([]byte, 4)
	n, err := transport.Read(buf, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTCPTransport_Read_PeerClosed(t *testing.T) {
	ln, conns := newLoopbackServer(t)
	transport := connectTransport(t, ln)
	server := <-conns

	server.Close()

	buf := make([]byte, 4)
	n, err := transport.Read(buf, 200*time.Millisecond)
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.Equal(t, 0, n)
}

func TestTCPTransport_Write(t *testing.T) {
	ln, conns := newLoopbackServer(t)
	transport := connectTransport(t, ln)
	server := <-conns

	payload := []byte("hello broker")
	n, err := transport.Write(payload, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	server.SetReadDeadline(time.Now().Add(time.Second))
	_, err = server.Read(got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestTCPTransport_NotConnected(t *testing.T) {
	transport := NewTCPTransport(TCPTransportParams{Log: zerolog.Nop()})

	_, err := transport.Read(make([]byte, 1), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTransportNotConnected)

	_, err = transport.Write([]byte{0x00}, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTransportNotConnected)
}
