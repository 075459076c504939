package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/blockprobe/nbdscan/pkg/history"
	historybadger "github.com/blockprobe/nbdscan/pkg/history/badger"
	historymemory "github.com/blockprobe/nbdscan/pkg/history/memory"
)

// NewHistoryStore creates the history store selected by cfg.Type.
func NewHistoryStore(cfg HistoryConfig) (history.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryHistoryStore(cfg)
	case "badger":
		return createBadgerHistoryStore(cfg)
	default:
		return nil, fmt.Errorf("unknown history store type: %q", cfg.Type)
	}
}

// createMemoryHistoryStore creates an in-memory history store.
func createMemoryHistoryStore(cfg HistoryConfig) (history.Store, error) {
	// Decode memory-specific configuration
	var memoryCfg historymemory.MemoryStoreConfig
	if err := mapstructure.Decode(cfg.Memory, &memoryCfg); err != nil {
		return nil, fmt.Errorf("invalid memory history config: %w", err)
	}

	return historymemory.NewMemoryStore(memoryCfg), nil
}

// createBadgerHistoryStore creates a BadgerDB history store.
func createBadgerHistoryStore(cfg HistoryConfig) (history.Store, error) {
	// Decode BadgerDB-specific configuration
	var badgerCfg historybadger.BadgerStoreConfig
	if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger history config: %w", err)
	}

	store, err := historybadger.NewBadgerStore(badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	return store, nil
}
