package metrics

import "github.com/dokzlo13/lightsd/internal/sysfs"

// Store counts reads and writes passing through a control-file store.
type Store struct {
	next sysfs.Store
}

// InstrumentStore wraps s with I/O counters.
func InstrumentStore(s sysfs.Store) *Store {
	return &Store{next: s}
}

func (s *Store) ReadInt(ep sysfs.Endpoint) (int, error) {
	v, err := s.next.ReadInt(ep)
	controlFileReads.WithLabelValues(string(ep), result(err)).Inc()
	return v, err
}

func (s *Store) WriteInt(ep sysfs.Endpoint, value int) error {
	err := s.next.WriteInt(ep, value)
	controlFileWrites.WithLabelValues(string(ep), result(err)).Inc()
	return err
}

func (s *Store) WriteString(ep sysfs.Endpoint, value string) error {
	err := s.next.WriteString(ep, value)
	controlFileWrites.WithLabelValues(string(ep), result(err)).Inc()
	return err
}

func (s *Store) Exists(ep sysfs.Endpoint) bool {
	return s.next.Exists(ep)
}
