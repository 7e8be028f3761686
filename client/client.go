// Package client implements a pool of Bedrock connections that obtain chunks
// from a server by moving their players around the world.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dm-vev/chunky/client/chunk"
	"golang.org/x/sync/errgroup"
)

// Client spreads chunk requests over a fixed set of peers and resolves each
// Request once the chunk arrives. Its methods are safe for concurrent use.
type Client struct {
	conf    Config
	log     *slog.Logger
	metrics *Metrics
	events  eventQueue

	peers []*Peer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	cursor   int
	requests map[chunk.Index]*Request
}

func newClient(conf Config, metrics *Metrics) *Client {
	c := &Client{
		conf:     conf,
		log:      conf.Log,
		metrics:  metrics,
		requests: make(map[chunk.Index]*Request),
	}
	c.peers = make([]*Peer, conf.PeerCount)
	for i := range c.peers {
		c.peers[i] = newPeer(c, i, conf.Identities(i))
	}
	return c
}

// Connect connects all peers and waits until each of them has spawned. If
// any peer fails to connect, all peers are closed again and the error is
// returned.
func (c *Client) Connect(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrConnected
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.events.start()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range c.peers {
		g.Go(func() error {
			if err := p.connect(gctx); err != nil {
				return fmt.Errorf("connect %v: %w", p.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.Disconnect()
		return err
	}
	c.log.Info("connected", "addr", c.conf.Address, "peers", len(c.peers), "version", c.conf.Version)
	return nil
}

// Disconnect closes all peers. Requests still pending fail with
// ErrDisconnected. Disconnect may be called multiple times.
func (c *Client) Disconnect() {
	// Reconnects are scheduled under mu, so none can start after this.
	c.mu.Lock()
	if !c.running.Load() {
		c.mu.Unlock()
		return
	}
	c.running.Store(false)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	for _, p := range c.peers {
		p.Close("client disconnected")
	}

	c.mu.Lock()
	requests := c.requests
	c.requests = make(map[chunk.Index]*Request)
	c.mu.Unlock()
	for _, req := range requests {
		if req.fail(ErrDisconnected) {
			c.metrics.incFailures("disconnect")
		}
	}
	c.events.close()
}

// Connected reports if Connect succeeded and Disconnect has not been called
// since.
func (c *Client) Connected() bool { return c.running.Load() }

// Peers returns the peers of the client.
func (c *Client) Peers() []*Peer { return slices.Clone(c.peers) }

// RequestChunk requests the chunk at x, z. If the chunk is already pending,
// the pending Request is returned. The Request fails with ErrUnassignable if
// no peer can take it.
func (c *Client) RequestChunk(x, z int32) *Request {
	return c.RequestChunkIndex(chunk.IndexOf(x, z))
}

// RequestChunkIndex requests the chunk with the Index passed.
func (c *Client) RequestChunkIndex(idx chunk.Index) *Request {
	c.mu.Lock()
	if req, ok := c.requests[idx]; ok {
		c.mu.Unlock()
		return req
	}
	req := newRequest(idx.Pos())
	c.requests[idx] = req
	start := c.cursor
	c.cursor++
	c.mu.Unlock()

	c.metrics.incRequests()
	if c.running.Load() && c.assign(idx, start) {
		return req
	}
	c.remove(idx, req)
	if req.fail(fmt.Errorf("%w: chunk %v", ErrUnassignable, idx.Pos())) {
		c.metrics.incFailures("unassignable")
	}
	return req
}

// assign hands idx to a peer, starting at the peer at start. Peers already
// covering idx are preferred over peers that would have to queue it.
func (c *Client) assign(idx chunk.Index, start int) bool {
	n := len(c.peers)
	for i := 0; i < n; i++ {
		if c.peers[(start+i)%n].attach(idx) {
			return true
		}
	}
	for i := 0; i < n; i++ {
		if c.peers[(start+i)%n].enqueue(idx) {
			return true
		}
	}
	return false
}

// PendingRequests returns all requests that have not finished yet.
func (c *Client) PendingRequests() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	requests := make([]*Request, 0, len(c.requests))
	for _, req := range c.requests {
		requests = append(requests, req)
	}
	slices.SortFunc(requests, func(a, b *Request) int { return a.created.Compare(b.created) })
	return requests
}

// PendingCount returns the amount of requests that have not finished yet.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// take removes and returns the request of idx, if any.
func (c *Client) take(idx chunk.Index) (*Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[idx]
	if ok {
		delete(c.requests, idx)
	}
	return req, ok
}

func (c *Client) remove(idx chunk.Index, req *Request) {
	c.mu.Lock()
	if c.requests[idx] == req {
		delete(c.requests, idx)
	}
	c.mu.Unlock()
}

// chunkDecoded is called by a peer for every complete chunk it received.
func (c *Client) chunkDecoded(p *Peer, h *chunk.Holder) {
	if req, ok := c.take(h.Pos.Index()); ok {
		if req.resolve(h) {
			c.metrics.incResolved()
		}
		return
	}
	c.metrics.incUnsolicited()
	c.events.push(func() { c.conf.Listener.HandleUnsolicitedChunk(h, p) })
}

// chunkFailed is called by a peer when the payload of a chunk could not be
// decoded.
func (c *Client) chunkFailed(p *Peer, pos chunk.Pos, err error) {
	p.log.Warn("decode chunk", "pos", pos, "err", err)
	if req, ok := c.take(pos.Index()); ok && req.fail(err) {
		c.metrics.incFailures("decode")
	}
}

// requestTimedOut is called by a peer for every chunk it solicited but did
// not receive in time.
func (c *Client) requestTimedOut(p *Peer, pos chunk.Pos) {
	req, ok := c.take(pos.Index())
	if !ok || !req.fail(fmt.Errorf("%w: chunk %v", ErrRequestTimeout, pos)) {
		return
	}
	c.metrics.incTimeouts()
	p.log.Debug("chunk request timed out", "pos", pos)
	c.events.push(func() { c.conf.Listener.HandleRequestTimeout(req, p) })
}

// peerClosed is called by a peer after it closed. orphans holds the
// positions it had queued or pending. reconnect is only set for peers that
// spawned and were not closed through Peer.Close: a failed connection attempt
// is retried by whoever made it.
func (c *Client) peerClosed(p *Peer, orphans []chunk.Pos, reason string, reconnect bool) {
	if !c.running.Load() {
		return
	}
	p.log.Warn("peer closed", "reason", reason, "orphaned", len(orphans))
	for _, pos := range orphans {
		c.requestTimedOut(p, pos)
	}
	if reconnect && c.conf.AutoReconnect {
		c.reconnect(p)
	}
}

// reconnect reconnects p after the reconnect interval, retrying until it
// succeeds or the client disconnects.
func (c *Client) reconnect(p *Peer) {
	c.mu.Lock()
	if !c.running.Load() {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.conf.ReconnectInterval):
			}
			done := make(chan error, 1)
			c.events.push(func() { c.conf.Listener.HandlePeerReconnect(p, done) })

			err := p.connect(ctx)
			done <- err
			close(done)
			if err == nil {
				p.log.Info("peer reconnected")
				return
			}
			p.log.Warn("reconnect peer", "err", err)
		}
	}()
}
