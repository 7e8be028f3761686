package palette

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dm-vev/chunky/client/version"
)

// ErrNoSource is returned by a Registry that has no way of obtaining the
// palette of a version family.
var ErrNoSource = errors.New("palette: no data source for version")

// Source opens the state table of a version family.
type Source func(family version.Version) (io.ReadCloser, error)

// DirSource returns a Source reading block_palette_<protocol>.nbt files from
// dir. A missing file results in ErrNoSource.
func DirSource(dir string) Source {
	return func(family version.Version) (io.ReadCloser, error) {
		f, err := os.Open(filepath.Join(dir, fmt.Sprintf("block_palette_%v.nbt", family.Protocol())))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w %v", ErrNoSource, family)
		}
		return f, err
	}
}

// Registry hands out one shared Palette per version family, loading each
// lazily on first use.
type Registry struct {
	src Source

	mu       sync.Mutex
	families map[int32]*family
}

type family struct {
	once sync.Once
	p    *Palette
	err  error
}

// NewRegistry returns a Registry loading palettes from src. src may be nil,
// in which case only palettes added through Register are available.
func NewRegistry(src Source) *Registry {
	return &Registry{src: src, families: make(map[int32]*family)}
}

// Register sets the palette of the family of v, replacing the one that
// would otherwise be loaded.
func (r *Registry) Register(v version.Version, p *Palette) {
	f := &family{p: p}
	f.once.Do(func() {})

	r.mu.Lock()
	r.families[v.Family().Protocol()] = f
	r.mu.Unlock()
}

// Palette returns the palette of the family v belongs to.
func (r *Registry) Palette(v version.Version) (*Palette, error) {
	if r == nil {
		return nil, fmt.Errorf("%w %v", ErrNoSource, v)
	}
	fam := v.Family()
	r.mu.Lock()
	f, ok := r.families[fam.Protocol()]
	if !ok {
		f = &family{}
		r.families[fam.Protocol()] = f
	}
	r.mu.Unlock()

	f.once.Do(func() {
		f.p, f.err = r.load(fam)
	})
	return f.p, f.err
}

func (r *Registry) load(fam version.Version) (*Palette, error) {
	if r.src == nil {
		return nil, fmt.Errorf("%w %v", ErrNoSource, fam)
	}
	rc, err := r.src(fam)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	states, err := Read(rc)
	if err != nil {
		return nil, fmt.Errorf("load palette %v: %w", fam, err)
	}
	return New(states, fam.LegacyPalette())
}
