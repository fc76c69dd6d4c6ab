package sysfs

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Write is one recorded control-file write.
type Write struct {
	Endpoint Endpoint
	Value    string
}

// MemoryStore keeps control-file contents in memory. It backs dry runs and
// tests; every write is recorded in order.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[Endpoint]string
	missing map[Endpoint]bool
	writes  []Write
}

// NewMemoryStore creates a store where every known endpoint exists and is empty.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		values:  make(map[Endpoint]string),
		missing: make(map[Endpoint]bool),
	}
	for _, ep := range Endpoints() {
		s.values[ep] = ""
	}
	return s
}

// Set seeds an endpoint value without recording a write.
func (s *MemoryStore) Set(ep Endpoint, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[ep] = value
	delete(s.missing, ep)
}

// Remove makes an endpoint absent, as on a device lacking that node.
func (s *MemoryStore) Remove(ep Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, ep)
	s.missing[ep] = true
}

// Value returns the last value written to an endpoint.
func (s *MemoryStore) Value(ep Endpoint) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[ep]
	return v, ok
}

// Writes returns a copy of the write log.
func (s *MemoryStore) Writes() []Write {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// ResetWrites clears the write log but keeps the values.
func (s *MemoryStore) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

// ReadInt parses an endpoint as a positive integer. Absent or non-numeric
// values yield ErrUnreadable and zero yields ErrZeroValue.
func (s *MemoryStore) ReadInt(ep Endpoint) (int, error) {
	s.mu.RLock()
	raw, ok := s.values[ep]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnreadable, ep)
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnreadable, ep, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("%w: %s", ErrZeroValue, ep)
	}
	return value, nil
}

// WriteInt stores value in decimal and records the write.
func (s *MemoryStore) WriteInt(ep Endpoint, value int) error {
	return s.write(ep, strconv.Itoa(value))
}

// WriteString stores value verbatim and records the write.
func (s *MemoryStore) WriteString(ep Endpoint, value string) error {
	return s.write(ep, value)
}

// Exists reports whether the endpoint has not been removed.
func (s *MemoryStore) Exists(ep Endpoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[ep]
	return ok
}

func (s *MemoryStore) write(ep Endpoint, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.missing[ep] {
		log.Debug().Str("endpoint", string(ep)).Str("value", value).Msg("Control file write to removed endpoint (memory)")
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, ep)
	}
	s.values[ep] = value
	s.writes = append(s.writes, Write{Endpoint: ep, Value: value})

	log.Debug().Str("endpoint", string(ep)).Str("value", value).Msg("Control file write (memory)")
	return nil
}
