package client

import (
	"slices"

	"github.com/dm-vev/chunky/client/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

// PeerSnapshot is a view of the state of a Peer at one point in time.
type PeerSnapshot struct {
	Name        string
	State       State
	Position    mgl32.Vec3
	Dimension   int32
	ChunkRadius int32
	Queued      []chunk.Pos
	Pending     []chunk.Pos
	Partial     []chunk.Pos
}

// Snapshot returns the current state of the peer. Only the name and state
// are filled out if the peer is not connected.
func (p *Peer) Snapshot() PeerSnapshot {
	resp := make(chan PeerSnapshot, 1)
	if !p.exec(snapshotCommand{resp: resp}) {
		return PeerSnapshot{Name: p.name, State: p.State()}
	}
	return <-resp
}

// attach takes idx if the peer already covers it. It returns false if the
// peer is not connected.
func (p *Peer) attach(idx chunk.Index) bool {
	resp := make(chan bool, 1)
	if !p.exec(attachCommand{idx: idx, resp: resp}) {
		return false
	}
	return <-resp
}

// enqueue queues idx on the peer. It returns false if the queue is full or
// the peer is not connected.
func (p *Peer) enqueue(idx chunk.Index) bool {
	resp := make(chan bool, 1)
	if !p.exec(enqueueCommand{idx: idx, resp: resp}) {
		return false
	}
	return <-resp
}

// exec hands cmd to the goroutine of the current run. It returns false if
// there is no run or it ended before accepting cmd.
func (p *Peer) exec(cmd peerCommand) bool {
	r := p.run.Load()
	if r == nil {
		return false
	}
	select {
	case r.cmd <- cmd:
		return true
	case <-r.done:
		return false
	}
}

type peerCommand interface {
	execute(p *Peer)
}

type attachCommand struct {
	idx  chunk.Index
	resp chan bool
}

func (cmd attachCommand) execute(p *Peer) {
	cmd.resp <- p.attachLocal(cmd.idx)
}

type enqueueCommand struct {
	idx  chunk.Index
	resp chan bool
}

func (cmd enqueueCommand) execute(p *Peer) {
	cmd.resp <- p.enqueueLocal(cmd.idx)
}

type snapshotCommand struct {
	resp chan PeerSnapshot
}

func (cmd snapshotCommand) execute(p *Peer) {
	s := PeerSnapshot{
		Name:        p.name,
		State:       p.State(),
		Position:    p.position,
		Dimension:   p.dimension,
		ChunkRadius: p.radius,
	}
	for _, idx := range p.queue {
		s.Queued = append(s.Queued, idx.Pos())
	}
	for _, idx := range p.pendingIndices() {
		s.Pending = append(s.Pending, idx.Pos())
	}
	for idx := range p.partial {
		s.Partial = append(s.Partial, idx.Pos())
	}
	slices.SortFunc(s.Partial, comparePos)
	cmd.resp <- s
}

func comparePos(a, b chunk.Pos) int {
	if a.X != b.X {
		return int(a.X) - int(b.X)
	}
	return int(a.Z) - int(b.Z)
}
