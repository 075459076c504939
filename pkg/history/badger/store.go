// Package badger provides a BadgerDB-backed history store for deployments
// where probe results must survive across runs.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/blockprobe/nbdscan/internal/logger"
	"github.com/blockprobe/nbdscan/pkg/history"
)

// keyPrefix namespaces probe records inside the database.
const keyPrefix = "scan/"

// BadgerStoreConfig configures the BadgerDB-backed store.
type BadgerStoreConfig struct {
	// DBPath is the directory where BadgerDB keeps its files. Required.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk; DBPath is ignored.
	// Mainly useful in tests.
	InMemory bool `mapstructure:"in_memory"`
}

// BadgerStore persists records under keys of the form
// scan/<host>/<zero-padded unix nanos>/<id>, so a prefix scan over one host
// yields its records oldest first.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database at the configured path.
func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("history: db_path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	logger.Debug("History store opened at %q", cfg.DBPath)
	return &BadgerStore{db: db}, nil
}

func recordKey(rec history.Record) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", keyPrefix, rec.Host, rec.ScannedAt.UnixNano(), rec.ID))
}

func (s *BadgerStore) Append(ctx context.Context, rec history.Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), value)
	})
}

func (s *BadgerStore) List(ctx context.Context, host string) ([]history.Record, error) {
	prefix := []byte(keyPrefix)
	if host != "" {
		prefix = []byte(keyPrefix + host + "/")
	}

	var out []history.Record
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var rec history.Record
				if err := json.Unmarshal(value, &rec); err != nil {
					return fmt.Errorf("unmarshal history record: %w", err)
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
