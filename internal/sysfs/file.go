package sysfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileStore talks to real control files. Open failures are logged once per
// endpoint; later failures on the same endpoint are only logged at debug
// level so a device missing some LED nodes does not flood the log.
type FileStore struct {
	paths map[Endpoint]string

	mu     sync.Mutex
	warned map[Endpoint]bool
}

// NewFileStore creates a store for the given endpoint table.
func NewFileStore(paths map[Endpoint]string) *FileStore {
	copied := make(map[Endpoint]string, len(paths))
	for ep, p := range paths {
		copied[ep] = p
	}
	return &FileStore{
		paths:  copied,
		warned: make(map[Endpoint]bool),
	}
}

// Path returns the file backing an endpoint.
func (s *FileStore) Path(ep Endpoint) (string, bool) {
	p, ok := s.paths[ep]
	return p, ok
}

// ReadInt reads a decimal integer from the endpoint.
func (s *FileStore) ReadInt(ep Endpoint) (int, error) {
	path, ok := s.paths[ep]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownEndpoint, ep)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("endpoint", string(ep)).Str("path", path).Msg("Failed to read control file")
		return 0, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		log.Error().Err(err).Str("endpoint", string(ep)).Str("path", path).Msg("Control file is not an integer")
		return 0, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("%w: %s", ErrZeroValue, path)
	}
	return value, nil
}

// WriteInt writes value followed by a newline.
func (s *FileStore) WriteInt(ep Endpoint, value int) error {
	return s.write(ep, strconv.Itoa(value))
}

// WriteString writes value followed by a newline.
func (s *FileStore) WriteString(ep Endpoint, value string) error {
	return s.write(ep, value)
}

// Exists reports whether the endpoint's file is present.
func (s *FileStore) Exists(ep Endpoint) bool {
	path, ok := s.paths[ep]
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// ResetWarnings forgets which endpoints already produced an open warning.
func (s *FileStore) ResetWarnings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warned = make(map[Endpoint]bool)
}

// Warned reports whether an open failure was already logged for ep.
func (s *FileStore) Warned(ep Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warned[ep]
}

func (s *FileStore) write(ep Endpoint, value string) error {
	path, ok := s.paths[ep]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, ep)
	}

	// Control files are never created, only opened.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		s.warnOnce(ep, path, err)
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(value + "\n"); err != nil {
		log.Debug().Err(err).Str("endpoint", string(ep)).Msg("Control file write failed")
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) warnOnce(ep Endpoint, path string, err error) {
	s.mu.Lock()
	already := s.warned[ep]
	s.warned[ep] = true
	s.mu.Unlock()

	if already {
		log.Debug().Err(err).Str("endpoint", string(ep)).Msg("Control file still unavailable")
		return
	}
	log.Error().Err(err).Str("endpoint", string(ep)).Str("path", path).Msg("Failed to open control file")
}
