package client

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dm-vev/chunky/client/chunk"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

// handlePacket handles a packet read from the session of the current run.
func (p *Peer) handlePacket(pk packet.Packet) {
	switch pk := pk.(type) {
	case *packet.PlayStatus:
		p.handlePlayStatus(pk)
	case *packet.ResourcePacksInfo:
		if !p.r.session.LoginHandled() {
			p.write(&packet.ResourcePackClientResponse{Response: packet.PackResponseAllPacksDownloaded})
		}
	case *packet.ResourcePackStack:
		if !p.r.session.LoginHandled() {
			p.write(&packet.ResourcePackClientResponse{Response: packet.PackResponseCompleted})
		}
	case *packet.StartGame:
		p.handleStartGame(pk)
	case *packet.ChunkRadiusUpdated:
		p.radius = max(1, pk.ChunkRadius)
		p.log.Debug("chunk radius updated", "radius", p.radius)
	case *packet.MovePlayer:
		if pk.EntityRuntimeID != p.entityID {
			break
		}
		p.position = pk.Position
		if pk.Mode == packet.MoveModeReset || pk.Mode == packet.MoveModeTeleport {
			// The server waits for the client to confirm the new position.
			p.write(&packet.MovePlayer{
				EntityRuntimeID: p.entityID,
				Position:        pk.Position,
				Pitch:           pk.Pitch,
				Yaw:             pk.Yaw,
				HeadYaw:         pk.HeadYaw,
				Mode:            packet.MoveModeNormal,
				OnGround:        pk.OnGround,
			})
		}
	case *packet.LevelChunk:
		p.handleLevelChunk(pk, time.Now())
	case *packet.SubChunk:
		p.handleSubChunk(pk)
	case *packet.BlockActorData:
		p.c.events.push(func() { p.c.conf.Listener.HandleBlockEntity(pk.Position, pk.NBTData, p) })
	case *packet.Disconnect:
		p.r.close(fmt.Sprintf("disconnected by server: %v", pk.Message))
	default:
		p.c.events.push(func() { p.c.conf.Listener.HandlePacket(pk, p) })
	}
}

func (p *Peer) handlePlayStatus(pk *packet.PlayStatus) {
	switch pk.Status {
	case packet.PlayStatusLoginSuccess:
		if p.State() != StateConnecting {
			p.r.close("unexpected login success")
			return
		}
		p.setState(StateLoggingIn)
		if !p.r.session.LoginHandled() {
			p.write(&packet.ClientCacheStatus{Enabled: false})
		}
	case packet.PlayStatusPlayerSpawn:
		if p.State() != StateLoggingIn {
			p.r.close("spawned before logging in")
			return
		}
		p.setState(StateSpawned)
		if !p.r.session.LoginHandled() {
			p.write(&packet.SetLocalPlayerAsInitialised{EntityRuntimeID: p.entityID})
		}
		p.r.spawn()
		p.log.Info("peer spawned", "pos", p.chunkPos(), "radius", p.radius)
	default:
		p.r.close(fmt.Sprintf("login failed with play status %v", pk.Status))
	}
}

func (p *Peer) handleStartGame(pk *packet.StartGame) {
	p.entityID = pk.EntityRuntimeID
	p.position = pk.PlayerPosition
	p.dimension = pk.Dimension

	pal, err := p.c.conf.Palettes.Palette(p.c.conf.Version)
	if err != nil {
		p.log.Debug("no block palette available", "version", p.c.conf.Version, "err", err)
	} else if pal != nil {
		p.ctx.Palette = pal
	}
	p.write(&packet.RequestChunkRadius{ChunkRadius: p.radius})
}

func (p *Peer) handleLevelChunk(pk *packet.LevelChunk, now time.Time) {
	pos := chunk.Pos{X: pk.Position.X(), Z: pk.Position.Z()}
	idx := pos.Index()
	p.pending.Del(int64(idx))
	delete(p.partial, idx)

	if pk.CacheEnabled {
		p.c.chunkFailed(p, pos, fmt.Errorf("chunk %v: blob cache is not supported", pos))
		return
	}
	lc := chunk.LevelChunk{
		Pos:             pos,
		Dimension:       pk.Dimension,
		SubChunkCount:   pk.SubChunkCount,
		HighestSubChunk: pk.HighestSubChunk,
		Payload:         pk.RawPayload,
	}
	h, err := chunk.Decode(lc, p.c.conf.Version.Protocol(), p.ctx)
	if err != nil {
		p.c.chunkFailed(p, pos, err)
		return
	}
	if !lc.Split() {
		p.c.chunkDecoded(p, h)
		return
	}
	p.partial[idx] = &partialChunk{holder: h, deadline: now.Add(p.c.conf.RequestTimeout)}
	p.requestSubChunks(h, lc.RequestLimit())
}

// requestSubChunks requests every missing sub-chunk of h, at most limit per
// packet if limit is positive.
func (p *Peer) requestSubChunks(h *chunk.Holder, limit int) {
	missing := h.Missing()
	if limit <= 0 {
		limit = len(missing)
	}
	for len(missing) > 0 {
		n := min(limit, len(missing))
		offsets := make([]protocol.SubChunkOffset, n)
		for i, slot := range missing[:n] {
			offsets[i] = protocol.SubChunkOffset{0, int8(h.MinY + slot), 0}
		}
		missing = missing[n:]
		p.write(&packet.SubChunkRequest{
			Dimension: h.Dimension,
			Position:  protocol.SubChunkPos{h.Pos.X, 0, h.Pos.Z},
			Offsets:   offsets,
		})
	}
}

func (p *Peer) handleSubChunk(pk *packet.SubChunk) {
	for _, entry := range pk.SubChunkEntries {
		pos := chunk.Pos{
			X: pk.Position[0] + int32(entry.Offset[0]),
			Z: pk.Position[2] + int32(entry.Offset[2]),
		}
		idx := pos.Index()
		pc, ok := p.partial[idx]
		if !ok {
			continue
		}
		h := pc.holder
		slot, ok := h.Slot(int(pk.Position[1]) + int(entry.Offset[1]))
		if !ok || h.Filled(slot) {
			continue
		}
		if entry.Result != protocol.SubChunkResultSuccess {
			h.Set(slot, &chunk.SubChunk{Y: h.MinY + slot}, nil)
		} else {
			buf := bytes.NewBuffer(entry.RawPayload)
			sub, err := chunk.DecodeSubChunk(buf, h.MinY+slot, p.ctx)
			if err != nil {
				delete(p.partial, idx)
				p.c.chunkFailed(p, pos, err)
				continue
			}
			h.BlockEntities = append(h.BlockEntities, buf.Bytes()...)
			h.Set(slot, sub, entry.RawPayload)
		}
		if h.Complete() {
			delete(p.partial, idx)
			p.c.chunkDecoded(p, h)
		}
	}
}
