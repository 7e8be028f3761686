// Package transport connects to Bedrock servers through gophertunnel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dm-vev/chunky/client/version"
	"github.com/sandertv/gophertunnel/minecraft"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

// ErrProtocolUnavailable is returned when dialing with a version that has no
// minecraft.Protocol registered.
var ErrProtocolUnavailable = errors.New("transport: no protocol implementation for version")

// Dialer dials connections that have completed login and spawned.
type Dialer struct {
	// Log is the Logger network errors are logged to. If nil, slog.Default()
	// is used.
	Log *slog.Logger
	// Protocols holds implementations of revisions other than
	// version.Latest, keyed by protocol number.
	Protocols map[int32]minecraft.Protocol
}

// Dial connects to address, logs in as id and waits until the player has
// spawned. The packets consumed while doing so that a client tracks state
// with are replayed as the first packets read from the Conn.
func (d Dialer) Dial(ctx context.Context, address string, v version.Version, id Identity) (*Conn, error) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	id = id.withDefaults()
	dialer := minecraft.Dialer{
		ErrorLog:     d.Log.With("net origin", "gophertunnel"),
		IdentityData: id.identityData(),
		ClientData:   id.clientData(),
	}
	if v != version.Latest {
		p, ok := d.Protocols[v.Protocol()]
		if !ok {
			return nil, fmt.Errorf("%w %v", ErrProtocolUnavailable, v)
		}
		dialer.Protocol = p
	}
	conn, err := dialer.DialContext(ctx, "raknet", address)
	if err != nil {
		return nil, fmt.Errorf("dial %v: %w", address, err)
	}
	if err := conn.DoSpawnContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("spawn: %w", err)
	}
	gd := conn.GameData()
	return &Conn{
		conn: conn,
		replay: []packet.Packet{
			&packet.PlayStatus{Status: packet.PlayStatusLoginSuccess},
			&packet.StartGame{
				EntityRuntimeID: gd.EntityRuntimeID,
				PlayerPosition:  gd.PlayerPosition,
				Dimension:       gd.Dimension,
			},
			&packet.ChunkRadiusUpdated{ChunkRadius: int32(conn.ChunkRadius())},
			&packet.PlayStatus{Status: packet.PlayStatusPlayerSpawn},
		},
	}, nil
}

// Conn is a spawned connection.
type Conn struct {
	conn *minecraft.Conn

	mu     sync.Mutex
	replay []packet.Packet
}

// ReadPacket reads the next packet. It blocks until a packet arrives or the
// connection is closed.
func (c *Conn) ReadPacket() (packet.Packet, error) {
	c.mu.Lock()
	if len(c.replay) > 0 {
		pk := c.replay[0]
		c.replay = c.replay[1:]
		c.mu.Unlock()
		return pk, nil
	}
	c.mu.Unlock()
	return c.conn.ReadPacket()
}

// WritePacket writes a packet to the server.
func (c *Conn) WritePacket(pk packet.Packet) error {
	return c.conn.WritePacket(pk)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LoginHandled always returns true: gophertunnel answers resource pack, cache
// and initialisation packets itself.
func (c *Conn) LoginHandled() bool { return true }
