// Package client ties the transport, decoder, session state machine and
// callback dispatcher into the autohost interface a host application talks
// to. One Pump call drains at most one datagram.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/network"
)

// maxDatagramLen is the receive buffer size. Autohost datagrams are tiny in
// practice but LUAMSG payloads are caller-defined, so size for the UDP max.
const maxDatagramLen = 65507

// pollTimeout bounds each Receive call so Pump never blocks the caller.
const pollTimeout = time.Millisecond

// Transport is the datagram endpoint the client pumps. Receive must not
// block beyond a short poll and returns nil when nothing is pending; Send is
// best effort and reports whether the payload was handed to the network.
type Transport interface {
	Open(host string, port int) error
	Receive() []byte
	Send(payload []byte) bool
	Close()
}

// UDPTransport is the production Transport: a UDP socket bound to the
// loopback interface with SO_REUSEADDR, so a restarted process can rebind
// a port still in TIME_WAIT. Replies go to the peer of the last received
// datagram, which is the engine once it has spoken.
type UDPTransport struct {
	logger zerolog.Logger
	conn   *net.UDPConn
	remote *net.UDPAddr
}

// NewUDPTransport creates an unopened UDP transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{
		logger: log.With().Str("component", "transport").Logger(),
	}
}

// Open binds the loopback endpoint. host may be empty for 127.0.0.1.
func (t *UDPTransport) Open(host string, port int) error {
	if host == "" {
		host = "127.0.0.1"
	}

	lc := network.ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to bind autohost endpoint %s:%d: %w", host, port, err)
	}
	t.conn = pc.(*net.UDPConn)

	t.logger.Info().Str("host", host).Int("port", port).Msg("autohost endpoint bound")
	return nil
}

// Receive polls for one datagram and returns nil when none is pending.
func (t *UDPTransport) Receive() []byte {
	if t.conn == nil {
		return nil
	}

	buf := make([]byte, maxDatagramLen)
	t.conn.SetReadDeadline(time.Now().Add(pollTimeout))
	n, remote, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.logger.Warn().Err(err).Msg("UDP read error")
		}
		return nil
	}

	t.remote = remote
	return buf[:n]
}

// Send writes the payload to the engine's address. Nothing can be sent
// before the engine's first datagram reveals where it listens.
func (t *UDPTransport) Send(payload []byte) bool {
	if t.conn == nil || t.remote == nil {
		t.logger.Warn().Msg("send dropped, no known engine address")
		return false
	}

	if _, err := t.conn.WriteToUDP(payload, t.remote); err != nil {
		t.logger.Warn().
			Err(err).
			Str("remote", t.remote.String()).
			Msg("best-effort send failed")
		return false
	}
	return true
}

// Close releases the socket. Safe to call when never opened.
func (t *UDPTransport) Close() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.remote = nil
	}
}
