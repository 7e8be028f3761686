// Package palette maps block states onto the runtime IDs a server uses on
// the wire for a given protocol family.
package palette

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"

	"github.com/df-mc/worldupgrader/blockupgrader"
	"github.com/segmentio/fasthash/fnv1a"
)

// BlockState is a named block state as found in persistent palettes and
// block state tables.
type BlockState struct {
	Name       string         `nbt:"name"`
	Properties map[string]any `nbt:"states"`
	Version    int32          `nbt:"version"`
}

// Hash returns a hash of the name and properties of s. The Version of the
// state is not part of the hash.
func (s BlockState) Hash() uint64 {
	h := fnv1a.HashString64(s.Name)
	for _, k := range slices.Sorted(maps.Keys(s.Properties)) {
		h = fnv1a.AddString64(h, k)
		h = fnv1a.AddString64(h, propertyString(s.Properties[k]))
	}
	return h
}

// Equal reports if s and o describe the same block state.
func (s BlockState) Equal(o BlockState) bool {
	if s.Name != o.Name || len(s.Properties) != len(o.Properties) {
		return false
	}
	for k, v := range s.Properties {
		w, ok := o.Properties[k]
		if !ok || !reflect.DeepEqual(v, w) {
			return false
		}
	}
	return true
}

func propertyString(v any) string {
	switch v := v.(type) {
	case string:
		return "s" + v
	case uint8:
		return "b" + strconv.Itoa(int(v))
	case int32:
		return "i" + strconv.Itoa(int(v))
	default:
		return fmt.Sprintf("%T%v", v, v)
	}
}

// Palette is an immutable bidirectional mapping between block states and
// runtime IDs. It is safe for concurrent use once built.
type Palette struct {
	legacy bool
	states []BlockState
	byHash map[uint64][]uint32
}

// New builds a Palette in which the runtime ID of a state is its index in
// states. A duplicated state is an error, except in legacy palettes, where
// the runtime ID is the packed legacy ID and unused slots repeat a filler
// state. There the lowest runtime ID wins.
func New(states []BlockState, legacy bool) (*Palette, error) {
	p := &Palette{
		legacy: legacy,
		states: states,
		byHash: make(map[uint64][]uint32, len(states)),
	}
	for i, s := range states {
		h := s.Hash()
		if _, ok := p.lookup(h, s); ok {
			if legacy {
				continue
			}
			return nil, fmt.Errorf("palette: duplicate block state %v at runtime ID %v", s.Name, i)
		}
		p.byHash[h] = append(p.byHash[h], uint32(i))
	}
	return p, nil
}

// Legacy reports if the palette is backed by legacy block IDs.
func (p *Palette) Legacy() bool { return p != nil && p.legacy }

// Len returns the amount of runtime IDs in the palette.
func (p *Palette) Len() int { return len(p.states) }

// State returns the block state with the runtime ID passed.
func (p *Palette) State(rid uint32) (BlockState, bool) {
	if int(rid) >= len(p.states) {
		return BlockState{}, false
	}
	return p.states[rid], true
}

// RuntimeID returns the runtime ID of s. States that are not found as-is
// are upgraded to the newest known block state format and looked up again.
func (p *Palette) RuntimeID(s BlockState) (uint32, bool) {
	if p == nil {
		return 0, false
	}
	if rid, ok := p.lookup(s.Hash(), s); ok {
		return rid, true
	}
	upgraded := blockupgrader.Upgrade(blockupgrader.BlockState{
		Name:       s.Name,
		Properties: s.Properties,
		Version:    s.Version,
	})
	u := BlockState{Name: upgraded.Name, Properties: upgraded.Properties, Version: upgraded.Version}
	return p.lookup(u.Hash(), u)
}

func (p *Palette) lookup(h uint64, s BlockState) (uint32, bool) {
	for _, rid := range p.byHash[h] {
		if p.states[rid].Equal(s) {
			return rid, true
		}
	}
	return 0, false
}

// LegacyID splits a runtime ID of a legacy palette into its block ID and
// metadata value.
func (p *Palette) LegacyID(rid uint32) (id uint16, data uint8, ok bool) {
	if !p.legacy || int(rid) >= len(p.states) {
		return 0, 0, false
	}
	return uint16(rid >> 6), uint8(rid & 0x3f), true
}

// FromLegacy returns the runtime ID of a legacy block ID and metadata pair.
func (p *Palette) FromLegacy(id uint16, data uint8) (uint32, bool) {
	rid := uint32(id)<<6 | uint32(data&0x3f)
	if !p.legacy || int(rid) >= len(p.states) {
		return 0, false
	}
	return rid, true
}
