package client

import "sync"

// eventQueue runs listener calls one at a time, in the order they were
// pushed, on its own goroutine. Peers push events without blocking, so a
// listener calling back into the Client cannot stall a peer.
type eventQueue struct {
	mu      sync.Mutex
	events  []func()
	running bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func (q *eventQueue) start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.signal = make(chan struct{}, 1)
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go q.run(q.signal, q.stop, q.done)
}

// push queues f. If the queue is not running, f is run on a new goroutine.
func (q *eventQueue) push(f func()) {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		go f()
		return
	}
	q.events = append(q.events, f)
	signal := q.signal
	q.mu.Unlock()

	select {
	case signal <- struct{}{}:
	default:
	}
}

// close runs the events still queued and stops the queue.
func (q *eventQueue) close() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stop, done := q.stop, q.done
	q.mu.Unlock()

	close(stop)
	<-done
}

func (q *eventQueue) run(signal, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-signal:
			q.drain()
		case <-stop:
			q.drain()
			return
		}
	}
}

func (q *eventQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.events) == 0 {
			q.mu.Unlock()
			return
		}
		f := q.events[0]
		q.events[0] = nil
		q.events = q.events[1:]
		q.mu.Unlock()
		f()
	}
}
