package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicebubble/internal/ports"
)

const Extension = ".flac"

// Store keeps recordings in a private directory, one uniquely named file per
// session.
type Store struct {
	dir string
	log zerolog.Logger
}

func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{dir: dir, log: log.With().Str("component", "artifact").Logger()}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Create opens a fresh <uuid>.flac file for writing.
func (s *Store) Create(cfg ports.AudioConfig) (ports.ArtifactWriter, error) {
	path := filepath.Join(s.dir, uuid.NewString()+Extension)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}

	writer, err := newFlacWriter(file, cfg.SampleRate, cfg.Channels)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, err
	}
	s.log.Debug().Str("path", path).Msg("artifact created")
	return writer, nil
}

// Discard removes a recording that will not be handed to the UI. Paths
// outside the store and already missing files are ignored.
func (s *Store) Discard(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("refusing to discard %q outside %q", path, s.dir)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to discard artifact: %w", err)
	}
	s.log.Debug().Str("path", path).Msg("artifact discarded")
	return nil
}
