// Package memory provides an in-memory history store, useful in tests and
// one-shot invocations where persistence is not wanted.
package memory

import (
	"context"
	"sync"

	"github.com/blockprobe/nbdscan/pkg/history"
)

// MemoryStoreConfig configures the in-memory store.
type MemoryStoreConfig struct {
	// MaxRecords bounds the number of retained records; 0 means unbounded.
	// The oldest records are dropped first.
	MaxRecords int `mapstructure:"max_records"`
}

// MemoryStore keeps records in a slice guarded by a mutex. Insertion order
// is preserved, which keeps List chronological.
type MemoryStore struct {
	mu      sync.RWMutex
	cfg     MemoryStoreConfig
	records []history.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	return &MemoryStore{cfg: cfg}
}

func (s *MemoryStore) Append(ctx context.Context, rec history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if s.cfg.MaxRecords > 0 && len(s.records) > s.cfg.MaxRecords {
		s.records = s.records[len(s.records)-s.cfg.MaxRecords:]
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, host string) ([]history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []history.Record
	for _, rec := range s.records {
		if host == "" || rec.Host == host {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
