package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brentp/intintmap"
	"github.com/dm-vev/chunky/client/chunk"
	"github.com/dm-vev/chunky/client/transport"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

// State is the login state of a Peer.
type State uint32

const (
	// StateConnecting is the state of a peer dialing the server.
	StateConnecting State = iota
	// StateLoggingIn is the state of a peer that logged in but has not yet
	// spawned.
	StateLoggingIn
	// StateSpawned is the state of a peer that can solicit chunks.
	StateSpawned
	// StateClosed is the state of a peer without a connection.
	StateClosed
)

// String returns a readable name of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging in"
	case StateSpawned:
		return "spawned"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Peer is a single connection of a Client. It obtains chunks by moving its
// player to them. Everything but the login state of a Peer is owned by a
// goroutine running for as long as the Peer is connected; other goroutines
// talk to it through commands.
type Peer struct {
	c    *Client
	name string
	log  *slog.Logger
	id   transport.Identity

	state atomic.Uint32
	run   atomic.Pointer[peerRun]

	// Fields below are owned by the goroutine of the current run.
	r         *peerRun
	entityID  uint64
	dimension int32
	position  mgl32.Vec3
	radius    int32
	ctx       chunk.Context
	queue     []chunk.Index
	pending   *intintmap.Map
	partial   map[chunk.Index]*partialChunk
	solicited time.Time
	seq       int64
}

// partialChunk is a chunk of which the sub-chunks are still being requested.
type partialChunk struct {
	holder   *chunk.Holder
	deadline time.Time
}

// peerRun is a single connection of a Peer, from dial until close.
type peerRun struct {
	session Session
	cmd     chan peerCommand
	packets chan packet.Packet
	closing chan struct{}
	done    chan struct{}
	spawned chan struct{}

	closeOnce sync.Once
	spawnOnce sync.Once
	reason    string
	// closedByUser is set if the run was stopped through Peer.Close.
	closedByUser bool
}

func newPeerRun(s Session) *peerRun {
	return &peerRun{
		session: s,
		cmd:     make(chan peerCommand),
		packets: make(chan packet.Packet, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		spawned: make(chan struct{}),
	}
}

// close asks the run goroutine to stop. Only the first reason is kept.
func (r *peerRun) close(reason string) {
	r.stop(reason, false)
}

func (r *peerRun) stop(reason string, user bool) {
	r.closeOnce.Do(func() {
		r.reason, r.closedByUser = reason, user
		close(r.closing)
	})
}

func (r *peerRun) closed() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

func (r *peerRun) spawn() {
	r.spawnOnce.Do(func() { close(r.spawned) })
}

func (r *peerRun) hasSpawned() bool {
	select {
	case <-r.spawned:
		return true
	default:
		return false
	}
}

func newPeer(c *Client, i int, id transport.Identity) *Peer {
	name := id.DisplayName
	if name == "" {
		name = fmt.Sprintf("peer-%d", i)
	}
	p := &Peer{c: c, name: name, id: id, log: c.log.With("peer", name)}
	p.state.Store(uint32(StateClosed))
	return p
}

// Name returns the display name of the peer.
func (p *Peer) Name() string { return p.name }

// Identity returns the identity the peer logs in with.
func (p *Peer) Identity() transport.Identity { return p.id }

// State returns the current login state of the peer.
func (p *Peer) State() State { return State(p.state.Load()) }

// CanRequestChunks reports if the peer has spawned and may solicit chunks.
func (p *Peer) CanRequestChunks() bool { return p.State() == StateSpawned }

func (p *Peer) setState(s State) {
	if old := State(p.state.Swap(uint32(s))); old != s {
		p.log.Debug("peer state changed", "from", old, "to", s)
	}
}

// connect dials the server and blocks until the peer spawned, closed or ctx
// is done.
func (p *Peer) connect(ctx context.Context) error {
	if r := p.run.Load(); r != nil {
		select {
		case <-r.done:
		default:
			return errors.New("client: peer already connected")
		}
	}
	p.setState(StateConnecting)
	s, err := p.c.conf.Transport.Dial(ctx, p.c.conf.Address, p.c.conf.Version, p.id)
	if err != nil {
		p.setState(StateClosed)
		return err
	}
	r := newPeerRun(s)
	p.reset(r)
	p.run.Store(r)
	go p.read(r)
	go p.loop(r)

	select {
	case <-r.spawned:
		return nil
	case <-r.done:
		return fmt.Errorf("%w: %v", ErrPeerClosed, r.reason)
	case <-ctx.Done():
		r.close("connect cancelled")
		<-r.done
		return ctx.Err()
	}
}

// reset prepares the peer for a new run. It must be called before the run
// goroutine is started.
func (p *Peer) reset(r *peerRun) {
	p.r = r
	p.entityID, p.dimension = 0, 0
	p.position = mgl32.Vec3{}
	p.radius = int32(p.c.conf.ChunkRadius)
	p.ctx = chunk.Context{}
	p.queue = nil
	p.pending = intintmap.New(64, 0.6)
	p.partial = make(map[chunk.Index]*partialChunk)
	p.solicited = time.Time{}
}

// Close closes the connection of the peer and waits until it is closed.
// Close does nothing if the peer is not connected. A peer closed this way is
// not reconnected.
func (p *Peer) Close(reason string) {
	r := p.run.Load()
	if r == nil {
		return
	}
	r.stop(reason, true)
	<-r.done
}

func (p *Peer) read(r *peerRun) {
	for {
		pk, err := r.session.ReadPacket()
		if err != nil {
			r.close(fmt.Sprintf("read packet: %v", err))
			return
		}
		select {
		case r.packets <- pk:
		case <-r.closing:
			return
		}
	}
}

func (p *Peer) loop(r *peerRun) {
	t := time.NewTicker(p.c.conf.TickInterval)
	defer t.Stop()

	for !r.closed() {
		select {
		case <-r.closing:
		case cmd := <-r.cmd:
			cmd.execute(p)
		case pk := <-r.packets:
			p.handlePacket(pk)
		case now := <-t.C:
			p.tick(now)
		}
	}
	p.shutdown(r)
}

// shutdown closes the session of r and reports everything the peer had
// queued or pending to the Client.
func (p *Peer) shutdown(r *peerRun) {
	p.setState(StateClosed)
	_ = r.session.Close()

	orphans := make([]chunk.Pos, 0, len(p.queue)+p.pending.Size()+len(p.partial))
	for _, idx := range p.queue {
		orphans = append(orphans, idx.Pos())
	}
	for _, idx := range p.pendingIndices() {
		orphans = append(orphans, idx.Pos())
	}
	for idx := range p.partial {
		orphans = append(orphans, idx.Pos())
	}
	p.queue = nil
	p.pending = intintmap.New(64, 0.6)
	clear(p.partial)

	reconnect := r.hasSpawned() && !r.closedByUser
	close(r.done)
	p.c.peerClosed(p, orphans, r.reason, reconnect)
}

// write writes pk to the session, closing the peer if that fails.
func (p *Peer) write(pk packet.Packet) {
	if err := p.r.session.WritePacket(pk); err != nil {
		p.r.close(fmt.Sprintf("write packet: %v", err))
	}
}

// tick times out chunks that did not arrive in time and solicits the next
// queued chunk if nothing is pending.
func (p *Peer) tick(now time.Time) {
	if p.pending.Size() > 0 && now.Sub(p.solicited) > p.c.conf.RequestTimeout {
		for _, idx := range p.pendingIndices() {
			p.pending.Del(int64(idx))
			p.c.requestTimedOut(p, idx.Pos())
		}
	}
	for idx, pc := range p.partial {
		if now.After(pc.deadline) {
			delete(p.partial, idx)
			p.c.requestTimedOut(p, idx.Pos())
		}
	}
	p.queue = slices.DeleteFunc(p.queue, p.isPending)

	if len(p.queue) > 0 && p.pending.Size() == 0 && p.CanRequestChunks() {
		idx := p.queue[0]
		p.queue = p.queue[1:]
		p.solicit(idx, now)
	}
}

// solicitRadius is the radius around the player in which the server is
// expected to send all chunks.
func (p *Peer) solicitRadius() int32 {
	return max(1, p.radius-1)
}

// solicit moves the player to the chunk at idx, marking it and the chunks
// around it that the server will send as pending.
func (p *Peer) solicit(idx chunk.Index, now time.Time) {
	target, current, r := idx.Pos(), p.chunkPos(), p.solicitRadius()
	p.markPending(idx)
	chunk.Radius(target, r, func(pos chunk.Pos) {
		if !chunk.InRadius(current, pos, r) {
			p.markPending(pos.Index())
		}
	})
	p.queue = slices.DeleteFunc(p.queue, p.isPending)

	p.position = mgl32.Vec3{float32(target.X)*16 + 8, p.position.Y(), float32(target.Z)*16 + 8}
	p.solicited = now
	p.c.metrics.incSolicitations()
	p.log.Debug("soliciting chunk", "pos", target, "pending", p.pending.Size())
	p.write(&packet.MovePlayer{
		EntityRuntimeID: p.entityID,
		Position:        p.position,
		Mode:            packet.MoveModeNormal,
	})
}

// chunkPos returns the position of the chunk the player is in.
func (p *Peer) chunkPos() chunk.Pos {
	return chunk.Pos{
		X: int32(math.Floor(float64(p.position.X()))) >> 4,
		Z: int32(math.Floor(float64(p.position.Z()))) >> 4,
	}
}

func (p *Peer) markPending(idx chunk.Index) {
	if _, ok := p.pending.Get(int64(idx)); ok {
		return
	}
	p.seq++
	p.pending.Put(int64(idx), p.seq)
}

func (p *Peer) isPending(idx chunk.Index) bool {
	if _, ok := p.pending.Get(int64(idx)); ok {
		return true
	}
	_, ok := p.partial[idx]
	return ok
}

// pendingIndices returns the pending positions in the order they were
// marked.
func (p *Peer) pendingIndices() []chunk.Index {
	items := make([][2]int64, 0, p.pending.Size())
	for item := range p.pending.Items() {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b [2]int64) int { return int(a[1] - b[1]) })
	indices := make([]chunk.Index, len(items))
	for i, item := range items {
		indices[i] = chunk.Index(item[0])
	}
	return indices
}

// attachLocal takes idx if the peer already covers it: it is queued or
// pending, or lies close enough to a queued chunk to be sent along with it.
func (p *Peer) attachLocal(idx chunk.Index) bool {
	if p.State() == StateClosed {
		return false
	}
	if p.isPending(idx) || slices.Contains(p.queue, idx) {
		return true
	}
	pos, r := idx.Pos(), p.solicitRadius()
	for _, q := range p.queue {
		if chunk.InRadius(q.Pos(), pos, r) {
			p.queue = append(p.queue, idx)
			return true
		}
	}
	return false
}

// enqueueLocal queues idx unless the queue is full.
func (p *Peer) enqueueLocal(idx chunk.Index) bool {
	if p.State() == StateClosed {
		return false
	}
	if limit := p.c.conf.MaxPendingRequests; limit > 0 && len(p.queue) >= limit {
		return false
	}
	p.queue = append(p.queue, idx)
	return true
}
