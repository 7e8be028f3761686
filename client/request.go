package client

import (
	"context"
	"sync"
	"time"

	"github.com/dm-vev/chunky/client/chunk"
)

// Request is a pending request for a chunk. At most one Request exists per
// chunk position at a time: requesting a chunk that is already pending
// returns the same Request.
type Request struct {
	pos     chunk.Pos
	created time.Time

	once   sync.Once
	done   chan struct{}
	holder *chunk.Holder
	err    error
}

func newRequest(pos chunk.Pos) *Request {
	return &Request{pos: pos, created: time.Now(), done: make(chan struct{})}
}

// Pos returns the position of the chunk requested.
func (r *Request) Pos() chunk.Pos { return r.pos }

// Created returns the time the request was made.
func (r *Request) Created() time.Time { return r.created }

// Done returns a channel closed once the request is resolved or failed.
func (r *Request) Done() <-chan struct{} { return r.done }

// Result returns the chunk or the error the request finished with. It
// returns ErrPending if the request has not finished yet.
func (r *Request) Result() (*chunk.Holder, error) {
	select {
	case <-r.done:
		return r.holder, r.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the request finishes or ctx is done.
func (r *Request) Wait(ctx context.Context) (*chunk.Holder, error) {
	select {
	case <-r.done:
		return r.holder, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Request) resolve(h *chunk.Holder) (ok bool) {
	r.once.Do(func() {
		r.holder, ok = h, true
		close(r.done)
	})
	return ok
}

func (r *Request) fail(err error) (ok bool) {
	r.once.Do(func() {
		r.err, ok = err, true
		close(r.done)
	})
	return ok
}
