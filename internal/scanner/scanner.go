// Package scanner is the single invocation point for probing one server:
// it dials the target, runs the discovery pipeline and hands back the report.
package scanner

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/blockprobe/nbdscan/internal/logger"
	"github.com/blockprobe/nbdscan/internal/probe"
	"github.com/blockprobe/nbdscan/internal/protocol/nbd"
)

// Options selects the target and shapes the probe.
type Options struct {
	// Host is the server to probe
	Host string

	// Port is the NBD port (10809 is the IANA-assigned default)
	Port int

	// Exports are the caller-requested export names, in order. Empty
	// means probe the implicit default export.
	Exports []string

	// Timeout bounds each blocking I/O operation on the connection
	Timeout time.Duration

	// TLS, when non-nil, wraps the connection before the handshake
	TLS *tls.Config

	// Dial overrides the dialer, mainly for tests
	Dial nbd.DialFunc
}

// Scan connects to the target and runs one probe. A nil report is returned
// only when nothing could be collected, i.e. on connect failure or on a
// version-skew fault inside the pipeline.
func Scan(ctx context.Context, opts Options) (*probe.Report, error) {
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	logger.Debug("Probing %s (timeout %v, tls=%v)", address, opts.Timeout, opts.TLS != nil)

	sess, err := nbd.Connect(ctx, nbd.Config{
		Address: address,
		Timeout: opts.Timeout,
		TLS:     opts.TLS,
		Dial:    opts.Dial,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}

	report, err := probe.Run(ctx, sess, opts.Exports)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", address, err)
	}
	return report, nil
}
