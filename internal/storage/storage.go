package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/eugenenazirov/variant-matrix/internal/report"
)

var (
	// ErrNoReport indicates no generation run has completed yet.
	ErrNoReport = errors.New("no variant report has been generated yet")
)

// Snapshot is a stored report with its generation metadata.
type Snapshot struct {
	Report      report.Report
	GeneratedAt time.Time
	Generation  uint64
}

// Storage provides access to the latest generated variant report.
type Storage interface {
	GetReport() (Snapshot, error)
	SetReport(r report.Report) Snapshot
}

// MemoryStorage keeps the latest report in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	snapshot Snapshot
	now      func() time.Time
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{now: time.Now}
}

// GetReport returns a defensive copy of the latest report.
func (s *MemoryStorage) GetReport() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot.Generation == 0 {
		return Snapshot{}, ErrNoReport
	}
	out := s.snapshot
	out.Report = out.Report.Clone()
	return out, nil
}

// SetReport replaces the stored report and returns the new snapshot.
func (s *MemoryStorage) SetReport(r report.Report) Snapshot {
	stored := r.Clone()

	s.mu.Lock()
	s.snapshot = Snapshot{
		Report:      stored,
		GeneratedAt: s.now().UTC(),
		Generation:  s.snapshot.Generation + 1,
	}
	out := s.snapshot
	s.mu.Unlock()

	out.Report = out.Report.Clone()
	return out
}
