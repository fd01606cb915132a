// Command server runs the collaborative OT text-editing server: the
// session.Manager core plus the pkg/transport WebSocket adapter.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shiv248/otrelay/pkg/logger"
	"github.com/shiv248/otrelay/pkg/session"
	"github.com/shiv248/otrelay/pkg/transport"
)

// config holds server configuration, assembled from environment variables
// with cobra flags overriding them.
type config struct {
	Addr                string
	InputQueueCapacity  int
	FanoutBufferSize    int
	WSReadTimeoutSec    int
	WSWriteTimeoutSec   int
	MaxPayloadKB        int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := defaultConfig()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Collaborative OT text-editing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP address to listen on")
	flags.IntVar(&cfg.InputQueueCapacity, "input-queue-capacity", cfg.InputQueueCapacity, "per-session input queue capacity")
	flags.IntVar(&cfg.FanoutBufferSize, "fanout-buffer-size", cfg.FanoutBufferSize, "per-subscriber fan-out buffer capacity")
	flags.IntVar(&cfg.WSReadTimeoutSec, "ws-read-timeout-seconds", cfg.WSReadTimeoutSec, "WebSocket read timeout in seconds")
	flags.IntVar(&cfg.WSWriteTimeoutSec, "ws-write-timeout-seconds", cfg.WSWriteTimeoutSec, "WebSocket write timeout in seconds")
	flags.IntVar(&cfg.MaxPayloadKB, "max-payload-kb", cfg.MaxPayloadKB, "maximum inbound WebSocket frame size in KiB")

	return cmd
}

func defaultConfig() config {
	// .env is optional; a missing file is not an error (matches the
	// pack's joho/godotenv usage in zfogg/sidechain and apex-build).
	_ = godotenv.Load()

	return config{
		Addr:               getEnv("ADDR", "127.0.0.1:8080"),
		InputQueueCapacity: getEnvInt("INPUT_QUEUE_CAPACITY", session.DefaultInputCapacity),
		FanoutBufferSize:   getEnvInt("FANOUT_BUFFER_SIZE", session.DefaultFanoutCapacity),
		WSReadTimeoutSec:   getEnvInt("WS_READ_TIMEOUT_SECONDS", 60),
		WSWriteTimeoutSec:  getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10),
		MaxPayloadKB:       getEnvInt("MAX_PAYLOAD_KB", 1024),
	}
}

func run(cfg config) error {
	logger.Init()
	defer logger.Sync()

	logger.Info("server: starting", "addr", cfg.Addr)

	manager := session.NewManager(cfg.InputQueueCapacity, cfg.FanoutBufferSize)
	srv := transport.NewServer(manager, transport.Config{
		ReadTimeout:   time.Duration(cfg.WSReadTimeoutSec) * time.Second,
		WriteTimeout:  time.Duration(cfg.WSWriteTimeoutSec) * time.Second,
		MaxPayloadLen: int64(cfg.MaxPayloadKB) * 1024,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	case <-sigCtx.Done():
		logger.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
