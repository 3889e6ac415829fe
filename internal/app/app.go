// Package app wires configuration, storage, the moderation engine, scan
// workers, retention and the HTTP server into a running service.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"modchat/internal/retention"
	"modchat/pkg/config"
	"modchat/pkg/logger"
	"modchat/pkg/models"
	"modchat/pkg/moderation"
	"modchat/pkg/store"
)

const defaultScanWorkers = 2

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	addr      string
	dbPath    string
	version   string
	commit    string
	buildDate string

	engine *moderation.Engine
	scan   *moderation.ScanQueue

	srv *http.Server
}

// New initializes resources that do not require a running context: env
// file, config validation, the store and the moderation engine. Call Run
// to start workers and the HTTP server and block until shutdown.
func New(cfg *config.Config, addr, dbPath, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if dir := cfg.Logging.AuditDir; dir != "" {
		if err := logger.AttachAuditFileSink(dir); err != nil {
			logger.Warn("audit_sink_unavailable", "dir", dir, "error", err)
		}
	}

	if err := store.Open(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dbPath, err)
	}

	// Admin-editable settings live in the store; fall back to the shipped
	// defaults on first boot.
	settings, ok, err := store.GetModerationSettings()
	if err != nil {
		return nil, fmt.Errorf("load moderation settings: %w", err)
	}
	if !ok {
		settings = moderation.DefaultSettings()
		logger.Info("moderation_settings_default")
	}
	engine := moderation.NewEngine(settings, moderation.NewLexiconScorer())

	scanCfg := cfg.Moderation.Scan
	if scanCfg.MaxPooledBufferBytes > 0 {
		moderation.SetMaxPooledBuffer(scanCfg.MaxPooledBufferBytes.Int64())
	}
	scan := moderation.NewScanQueue(scanCfg.QueueCapacity)

	return &App{
		cfg:       cfg,
		addr:      addr,
		dbPath:    dbPath,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		engine:    engine,
		scan:      scan,
	}, nil
}

// Run starts the scan workers, retention and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	workers := a.cfg.Moderation.Scan.Workers
	if workers <= 0 {
		workers = defaultScanWorkers
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scan.RunWorker(workerCtx, persistFlag)
		}()
	}
	logger.Info("scan_workers_started", "workers", workers, "capacity", a.scan.Cap())

	stopRetention, err := retention.Start(ctx, a.cfg.Retention)
	if err != nil {
		stopWorkers()
		return err
	}

	a.printBanner()
	errCh := a.startHTTP()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			runErr = err
		}
	}

	a.shutdown(stopWorkers, stopRetention, &wg)
	return runErr
}

// shutdown stops the HTTP server, drains the scan queue within the
// configured timeout and closes the store.
func (a *App) shutdown(stopWorkers, stopRetention context.CancelFunc, wg *sync.WaitGroup) {
	stopRetention()

	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.srv.Shutdown(sctx)
		cancel()
	}

	// Give workers a window to drain pending flags before forcing exit.
	drain := a.cfg.Moderation.Scan.DrainTimeout.Duration()
	if drain <= 0 {
		drain = 5 * time.Second
	}
	deadline := time.Now().Add(drain)
	for a.scan.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stopWorkers()
	wg.Wait()
	a.scan.CloseAndDrain()
	if d := a.scan.Dropped(); d > 0 {
		logger.Warn("scan_flags_dropped_total", "count", d)
	}

	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("server_stopped")
}

// persistFlag decodes a queued flag back into a review item and writes it
// to the store.
func persistFlag(f *moderation.Flag) error {
	var item models.QueueItem
	if err := json.Unmarshal(f.Payload, &item); err != nil {
		logger.Error("flag_decode_failed", "item", f.ItemID, "error", err)
		return err
	}
	if err := store.SaveQueueItem(item); err != nil {
		logger.Error("queue_item_save_failed", "item", item.ID, "error", err)
		return err
	}
	logger.Debug("queue_item_persisted", "item", item.ID, "source", item.SourceID)
	return nil
}

// validateConfig fails fast on settings the server cannot run with.
func validateConfig(cfg *config.Config) error {
	sec := cfg.Security
	if len(sec.APIKeys.Backend) == 0 && len(sec.APIKeys.Frontend) == 0 && len(sec.APIKeys.Admin) == 0 {
		return fmt.Errorf("no API keys configured; set security.api_keys or MODCHAT_API_*_KEYS")
	}
	if len(sec.APIKeys.Frontend) > 0 && len(sec.APIKeys.Backend) == 0 {
		return fmt.Errorf("frontend keys require at least one backend key to sign author identities")
	}
	tls := cfg.Server.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("tls requires both cert_file and key_file")
	}
	if cfg.Retention.Enabled && cfg.Retention.Period.Duration() <= 0 {
		return fmt.Errorf("retention.enabled requires retention.period")
	}
	if rl := sec.RateLimit; rl.RPS < 0 || rl.Burst < 0 {
		return fmt.Errorf("rate limit values must be non-negative")
	}
	return nil
}
