package client

import (
	"github.com/dm-vev/chunky/client/chunk"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

// Listener is notified of events that are not tied to a Request. Its
// methods are called one at a time, in order, on a goroutine owned by the
// Client, so they may block briefly and may call back into the Client.
type Listener interface {
	// HandleUnsolicitedChunk handles a chunk that was received without being
	// requested, typically because it lies close to one that was.
	HandleUnsolicitedChunk(h *chunk.Holder, p *Peer)
	// HandleRequestTimeout handles a request that failed with
	// ErrRequestTimeout. The chunk may be requested again.
	HandleRequestTimeout(req *Request, p *Peer)
	// HandleBlockEntity handles a block entity update sent by the server.
	HandleBlockEntity(pos protocol.BlockPos, data map[string]any, p *Peer)
	// HandlePeerReconnect handles a peer being reconnected after it was
	// closed. done receives the result of the attempt.
	HandlePeerReconnect(p *Peer, done <-chan error)
	// HandlePacket handles any packet the peer has no use for itself.
	HandlePacket(pk packet.Packet, p *Peer)
}

// NopListener implements Listener without doing anything. It may be embedded
// to implement only some of the methods.
type NopListener struct{}

var _ Listener = NopListener{}

func (NopListener) HandleUnsolicitedChunk(*chunk.Holder, *Peer) {}
func (NopListener) HandleRequestTimeout(*Request, *Peer) {}
func (NopListener) HandleBlockEntity(protocol.BlockPos, map[string]any, *Peer) {}
func (NopListener) HandlePeerReconnect(*Peer, <-chan error) {}
func (NopListener) HandlePacket(packet.Packet, *Peer) {}
