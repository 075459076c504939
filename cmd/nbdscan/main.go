package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/blockprobe/nbdscan/internal/logger"
	"github.com/blockprobe/nbdscan/internal/probe"
	"github.com/blockprobe/nbdscan/internal/scanner"
	"github.com/blockprobe/nbdscan/pkg/config"
	"github.com/blockprobe/nbdscan/pkg/history"
	"github.com/blockprobe/nbdscan/pkg/render"
)

func main() {
	// Target flags
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	host := flag.String("host", "", "Target host to probe (may also be given as the first argument)")
	port := flag.Int("port", 0, fmt.Sprintf("NBD port (default %d)", config.DefaultPort))
	exports := flag.String("exports", "", "Comma-separated export names to attach to (default: the default export)")
	timeout := flag.Duration("timeout", 0, fmt.Sprintf("I/O timeout per operation (default %v)", config.DefaultTimeout))

	// TLS flags
	useTLS := flag.Bool("tls", false, "Wrap the connection in TLS before the handshake")
	tlsServerName := flag.String("tls-server-name", "", "TLS server name (default: target host)")
	tlsInsecure := flag.Bool("tls-insecure", false, "Skip TLS certificate verification")

	// Output flags
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	output := flag.String("output", "", "Report format (text, json, yaml)")

	// History flags
	recordHistory := flag.Bool("history", false, "Record the report in the scan-history store")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Apply CLI overrides (highest precedence)
	if *host != "" {
		cfg.Scan.Host = *host
	}
	if cfg.Scan.Host == "" && flag.NArg() > 0 {
		cfg.Scan.Host = flag.Arg(0)
	}
	if *port != 0 {
		cfg.Scan.Port = *port
	}
	if *exports != "" {
		cfg.Scan.Exports = strings.Split(*exports, ",")
	}
	if *timeout != 0 {
		cfg.Scan.Timeout = *timeout
	}
	if *useTLS {
		cfg.Scan.TLS.Enabled = true
	}
	if *tlsServerName != "" {
		cfg.Scan.TLS.ServerName = *tlsServerName
	}
	if *tlsInsecure {
		cfg.Scan.TLS.InsecureSkipVerify = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *output != "" {
		cfg.Output.Format = *output
	}
	if *recordHistory {
		cfg.History.Enabled = true
	}

	// Re-apply defaults and validation after the overrides
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Scan.Host == "" {
		log.Fatalf("A target host is required (use -host or the first positional argument)")
	}

	// Configure logger
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tlsConfig *tls.Config
	if cfg.Scan.TLS.Enabled {
		tlsConfig = &tls.Config{
			ServerName:         cfg.Scan.TLS.ServerName,
			InsecureSkipVerify: cfg.Scan.TLS.InsecureSkipVerify,
		}
	}

	report, err := scanner.Scan(ctx, scanner.Options{
		Host:    cfg.Scan.Host,
		Port:    cfg.Scan.Port,
		Exports: cfg.Scan.Exports,
		Timeout: cfg.Scan.Timeout,
		TLS:     tlsConfig,
	})
	if err != nil {
		logger.Error("Probe failed: %v", err)
		os.Exit(1)
	}

	if err := render.Render(os.Stdout, report, cfg.Output.Format); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}

	if cfg.History.Enabled {
		if err := appendHistory(ctx, cfg, report); err != nil {
			logger.Error("Failed to record scan history: %v", err)
			os.Exit(1)
		}
		logger.Debug("Scan recorded in history store")
	}
}

// appendHistory stores the report in the configured history store.
func appendHistory(ctx context.Context, cfg *config.Config, report *probe.Report) error {
	store, err := config.NewHistoryStore(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Append(ctx, history.Record{
		ID:        uuid.NewString(),
		Host:      cfg.Scan.Host,
		Port:      cfg.Scan.Port,
		ScannedAt: time.Now().UTC(),
		Report:    report,
	})
}
