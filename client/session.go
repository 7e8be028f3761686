package client

import (
	"context"

	"github.com/dm-vev/chunky/client/transport"
	"github.com/dm-vev/chunky/client/version"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

// Session is the connection of a single peer.
type Session interface {
	// ReadPacket blocks until the next packet arrives. It returns an error
	// once the session is closed.
	ReadPacket() (packet.Packet, error)
	WritePacket(pk packet.Packet) error
	Close() error
	// LoginHandled reports if the session answers the packets of the login
	// sequence itself. If false, the peer responds to resource pack
	// negotiation and spawn packets.
	LoginHandled() bool
}

// Transport opens Sessions.
type Transport interface {
	Dial(ctx context.Context, address string, v version.Version, id transport.Identity) (Session, error)
}

// DialerTransport is the Transport dialing through a transport.Dialer.
type DialerTransport struct {
	Dialer transport.Dialer
}

// Dial dials address and returns the spawned connection.
func (t DialerTransport) Dial(ctx context.Context, address string, v version.Version, id transport.Identity) (Session, error) {
	conn, err := t.Dialer.Dial(ctx, address, v, id)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
