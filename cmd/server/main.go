package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/dextop-world/dextop/internal/config"
	"github.com/dextop-world/dextop/internal/debug"
	"github.com/dextop-world/dextop/internal/logger"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

// parseFlags turns command line flags into config overrides. Only flags
// that were set override the file and environment.
func parseFlags(args []string) (config.Overrides, error) {
	flagSet := pflag.NewFlagSet("dextop-server", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML config file")
	addr := flagSet.String("addr", "", "listen address, e.g. :3005")
	dbPath := flagSet.String("db", "", "path to the SQLite database")
	logLevel := flagSet.String("log-level", "", "log level (trace, debug, info, warn, error)")
	debugMode := flagSet.Bool("debug", false, "enable debug logging and gin debug mode")
	certFile := flagSet.String("tls-cert", "", "PEM certificate chain; enables HTTPS with --tls-key")
	keyFile := flagSet.String("tls-key", "", "PEM private key")

	if err := flagSet.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return config.Overrides{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	var o config.Overrides
	if flagSet.Changed("config") {
		o.ConfigPath = configPath
	}
	if flagSet.Changed("addr") {
		o.Addr = addr
	}
	if flagSet.Changed("db") {
		o.DatabasePath = dbPath
	}
	if flagSet.Changed("log-level") {
		o.LogLevel = logLevel
	}
	if flagSet.Changed("debug") {
		o.Debug = debugMode
	}
	if flagSet.Changed("tls-cert") || flagSet.Changed("tls-key") {
		if *certFile == "" || *keyFile == "" {
			return config.Overrides{}, errors.New("--tls-cert and --tls-key must be set together")
		}
		o.TLS = &config.TLSConfig{CertFile: *certFile, KeyFile: *keyFile}
	}
	return o, nil
}

func configureLogging(cfg *config.Config) error {
	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	return nil
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Dev-only: drop delivered private messages older than a day.
	if v := os.Getenv("DEXTOP_DEV_PRUNE_MESSAGES"); v == "1" || v == "true" {
		logger.Warnf("DEXTOP_DEV_PRUNE_MESSAGES enabled - pruning delivered private messages")
		if err := debug.PruneDeliveredMessages(a.db.DB, 24*time.Hour); err != nil {
			logger.Warnf("Failed to prune messages: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.runSweeper(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS != nil {
			logger.Infof("dextop server starting on https://localhost%s", cfg.Addr)
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		logger.Infof("dextop server starting on http://localhost%s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
