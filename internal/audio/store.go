package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists generated audio under a static-serving directory and hands
// back the public path the file server exposes.
type Store struct {
	dir string
}

// NewStore ensures the static directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create static dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory, used to mount the file server.
func (s *Store) Dir() string { return s.dir }

// Save writes the audio bytes under a collision-resistant generated name and
// returns the "/static/..." reference for the response payload.
func (s *Store) Save(data []byte, ext string) (string, error) {
	name := fmt.Sprintf("reply_%s.%s", strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to persist audio file: %w", err)
	}
	return "/static/" + name, nil
}
