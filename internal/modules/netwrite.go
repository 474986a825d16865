package modules

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/enginecore/internal/core"
	logs "github.com/danmuck/enginecore/internal/logging"
	"github.com/danmuck/enginecore/internal/thread"
	"github.com/danmuck/enginecore/internal/wire"
)

// KindDatagram is the wire kind for opaque payloads sent by PushSendTo.
const KindDatagram uint16 = 1

// NetworkWriter sends framed UDP datagrams from the network-write thread.
// Send failures are logged and counted; they are never fatal.
type NetworkWriter struct {
	base
	limits wire.Limits
	listen string

	mu   sync.Mutex
	conn net.PacketConn

	seq    atomic.Uint64
	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewNetworkWriter binds a writer to t. listen is the local UDP address;
// empty picks an ephemeral port.
func NewNetworkWriter(t *thread.Thread, c *core.Context, listen string) *NetworkWriter {
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	return &NetworkWriter{
		base:   newBase("network_write", t, c),
		limits: wire.DefaultLimits(),
		listen: listen,
	}
}

// PushSendTo frames payload and writes it to addr on the network-write thread.
func (n *NetworkWriter) PushSendTo(addr string, payload []byte) error {
	body := append([]byte(nil), payload...)
	return n.push(func(ctx context.Context) error {
		if err := n.on(ctx); err != nil {
			return err
		}
		if err := n.send(addr, body); err != nil {
			n.failed.Add(1)
			logs.Warnf("modules.NetworkWriter.SendTo failed addr=%s err=%v", addr, err)
		}
		return nil
	})
}

func (n *NetworkWriter) send(addr string, payload []byte) error {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := n.packetConn()
	if err != nil {
		return err
	}
	buf, err := wire.Encode(wire.Packet{
		Header:  wire.Header{Kind: KindDatagram, Sequence: n.seq.Add(1)},
		Payload: payload,
	}, n.limits)
	if err != nil {
		return err
	}
	if _, err := conn.WriteTo(buf, dst); err != nil {
		return err
	}
	n.sent.Add(1)
	logs.Debugf("modules.NetworkWriter.SendTo addr=%s bytes=%d", dst, len(buf))
	return nil
}

func (n *NetworkWriter) packetConn() (net.PacketConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := net.ListenPacket("udp", n.listen)
	if err != nil {
		return nil, err
	}
	n.conn = conn
	return conn, nil
}

// Sent and Failed count datagram outcomes.
func (n *NetworkWriter) Sent() uint64   { return n.sent.Load() }
func (n *NetworkWriter) Failed() uint64 { return n.failed.Load() }

// Close releases the socket. Call after the network-write thread has stopped.
func (n *NetworkWriter) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

var _ core.NetworkWriter = (*NetworkWriter)(nil)
