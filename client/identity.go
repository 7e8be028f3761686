package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/dm-vev/chunky/client/transport"
	"github.com/pelletier/go-toml"
)

// IdentityStore keeps the login identities of peers in a TOML file, so that
// peers present the same name and UUID to a server on every run.
type IdentityStore struct {
	mu         sync.Mutex
	identities []transport.Identity
	filePath   string
}

type identityFile struct {
	Identities []identityEntry `toml:"identities"`
}

type identityEntry struct {
	DisplayName string `toml:"display_name"`
	UUID        string `toml:"uuid"`
	TitleID     string `toml:"title_id"`
	Language    string `toml:"language"`
}

// LoadIdentities loads the identities stored in the file at path. The file
// is created once the first identity is added.
func LoadIdentities(path string) (*IdentityStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("identity file path must not be empty")
	}
	s := &IdentityStore{filePath: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	var f identityFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode identity file: %w", err)
	}
	for _, e := range f.Identities {
		s.identities = append(s.identities, transport.Identity{
			DisplayName:  e.DisplayName,
			UUID:         e.UUID,
			TitleID:      e.TitleID,
			LanguageCode: e.Language,
		})
	}
	return s, nil
}

// Identity returns the identity at index i. Missing identities are created
// and written to the file. A failed write is not fatal: the identity is
// still returned.
func (s *IdentityStore) Identity(i int) transport.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.identities) {
		return s.identities[i]
	}
	for len(s.identities) <= i {
		s.identities = append(s.identities, transport.NewIdentity())
	}
	_ = s.save()
	return s.identities[i]
}

// Len returns the amount of stored identities.
func (s *IdentityStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

func (s *IdentityStore) save() error {
	f := identityFile{Identities: make([]identityEntry, len(s.identities))}
	for i, id := range s.identities {
		f.Identities[i] = identityEntry{DisplayName: id.DisplayName, UUID: id.UUID, TitleID: id.TitleID, Language: id.LanguageCode}
	}
	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode identity file: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}
