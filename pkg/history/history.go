// Package history records the outcome of past probes so repeated scans of
// the same server can be compared over time.
package history

import (
	"context"
	"time"

	"github.com/blockprobe/nbdscan/internal/probe"
)

// Record is one stored probe outcome.
type Record struct {
	// ID uniquely identifies the record
	ID string `json:"id"`

	// Host and Port identify the probed server
	Host string `json:"host"`
	Port int    `json:"port"`

	// ScannedAt is when the probe completed
	ScannedAt time.Time `json:"scanned_at"`

	// Report is the probe result
	Report *probe.Report `json:"report"`
}

// Store persists probe records.
//
// Implementations must keep records for the same host in chronological
// insertion order so List can return a stable history.
type Store interface {
	// Append stores one record
	Append(ctx context.Context, rec Record) error

	// List returns all records for host, oldest first. An empty host
	// returns every record.
	List(ctx context.Context, host string) ([]Record, error)

	// Close releases the store's resources
	Close() error
}
