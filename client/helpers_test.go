package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dm-vev/chunky/client/chunk"
	"github.com/dm-vev/chunky/client/transport"
	"github.com/dm-vev/chunky/client/version"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

const waitTimeout = 2 * time.Second

// fakeSession is a Session fed by the test.
type fakeSession struct {
	in      chan packet.Packet
	written chan packet.Packet
	closed  chan struct{}
	once    sync.Once
	handled bool
}

func newFakeSession(handled bool, spawn ...packet.Packet) *fakeSession {
	s := &fakeSession{
		in:      make(chan packet.Packet, 64),
		written: make(chan packet.Packet, 4096),
		closed:  make(chan struct{}),
		handled: handled,
	}
	for _, pk := range spawn {
		s.in <- pk
	}
	return s
}

func (s *fakeSession) ReadPacket() (packet.Packet, error) {
	select {
	case pk := <-s.in:
		return pk, nil
	case <-s.closed:
		return nil, net.ErrClosed
	}
}

func (s *fakeSession) WritePacket(pk packet.Packet) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	case s.written <- pk:
		return nil
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) LoginHandled() bool { return s.handled }

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// send feeds pk to the peer reading from s.
func (s *fakeSession) send(pk packet.Packet) { s.in <- pk }

// spawnSequence returns the packets a server sends until the player spawns
// at the chunk at x, z.
func spawnSequence(x, z int32) []packet.Packet {
	return []packet.Packet{
		&packet.PlayStatus{Status: packet.PlayStatusLoginSuccess},
		&packet.StartGame{EntityRuntimeID: 1, PlayerPosition: mgl32.Vec3{float32(x*16 + 8), 64, float32(z*16 + 8)}},
		&packet.ChunkRadiusUpdated{ChunkRadius: 8},
		&packet.PlayStatus{Status: packet.PlayStatusPlayerSpawn},
	}
}

// fakeTransport opens a new fakeSession for every Dial.
type fakeTransport struct {
	handled bool
	spawn   func() []packet.Packet

	mu       sync.Mutex
	sessions []*fakeSession
	dialed   chan *fakeSession
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handled: true,
		spawn:   func() []packet.Packet { return spawnSequence(0, 0) },
		dialed:  make(chan *fakeSession, 16),
	}
}

func (t *fakeTransport) Dial(_ context.Context, _ string, _ version.Version, _ transport.Identity) (Session, error) {
	s := newFakeSession(t.handled, t.spawn()...)
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	t.dialed <- s
	return s, nil
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[i]
}

func testConfig(tr Transport, peers int) Config {
	return Config{
		Log:                slog.New(slog.NewTextHandler(io.Discard, nil)),
		Address:            "127.0.0.1:19132",
		Version:            version.Latest,
		PeerCount:          peers,
		MaxPendingRequests: 4,
		ChunkRadius:        8,
		TickInterval:       5 * time.Millisecond,
		RequestTimeout:     time.Minute,
		Transport:          tr,
		Registerer:         prometheus.NewRegistry(),
	}
}

// connectedClient returns a Client connected through a fakeTransport.
func connectedClient(t *testing.T, conf Config) *Client {
	t.Helper()
	c, err := conf.New()
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

// expectPacket returns the next packet of type T written to s.
func expectPacket[T packet.Packet](t *testing.T, s *fakeSession) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case pk := <-s.written:
			if v, ok := pk.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("expected %T to be written", zero)
			return zero
		}
	}
}

func waitRequest(t *testing.T, req *Request) (*chunk.Holder, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	h, err := req.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected request for %v to finish", req.Pos())
	}
	return h, err
}

func runtimeStorage(t *testing.T, rid int32) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := chunk.EncodePalette(buf, &chunk.PaletteHolder{Runtime: []int32{rid}}, chunk.RuntimeEncoding); err != nil {
		t.Fatalf("encode storage: %v", err)
	}
	return buf.Bytes()
}

// airChunk returns a chunk of the current format without inline sub-chunks.
func airChunk(t *testing.T, x, z int32) *packet.LevelChunk {
	payload := runtimeStorage(t, 1)
	for i := 1; i < 24; i++ {
		payload = append(payload, 0xff)
	}
	payload = append(payload, 0)
	return &packet.LevelChunk{Position: protocol.ChunkPos{x, z}, RawPayload: payload}
}

// splitChunk returns a nether chunk of which the sub-chunks are to be
// requested, limit at a time.
func splitChunk(t *testing.T, x, z int32, limit uint16) *packet.LevelChunk {
	payload := runtimeStorage(t, 1)
	for i := 1; i < 8; i++ {
		payload = append(payload, 0xff)
	}
	payload = append(payload, 0)
	return &packet.LevelChunk{
		Position:        protocol.ChunkPos{x, z},
		Dimension:       chunk.Nether,
		SubChunkCount:   chunk.RequestModeLimited,
		HighestSubChunk: limit,
		RawPayload:      payload,
	}
}

// recordingListener records the events it is notified of.
type recordingListener struct {
	NopListener

	unsolicited chan *chunk.Holder
	timeouts    chan *Request
	reconnects  chan error
	entities    chan protocol.BlockPos
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		unsolicited: make(chan *chunk.Holder, 1024),
		timeouts:    make(chan *Request, 1024),
		reconnects:  make(chan error, 16),
		entities:    make(chan protocol.BlockPos, 16),
	}
}

func (l *recordingListener) HandleUnsolicitedChunk(h *chunk.Holder, _ *Peer) { l.unsolicited <- h }
func (l *recordingListener) HandleRequestTimeout(req *Request, _ *Peer) { l.timeouts <- req }
func (l *recordingListener) HandleBlockEntity(pos protocol.BlockPos, _ map[string]any, _ *Peer) {
	l.entities <- pos
}
func (l *recordingListener) HandlePeerReconnect(_ *Peer, done <-chan error) {
	go func() { l.reconnects <- <-done }()
}
