package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/cdp-activation/internal/api"
	"github.com/ignite/cdp-activation/internal/app"
	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/pkg/telemetry"
)

var version = "dev"

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v\n"+
			"  Hint: run 'lsof -i :<port>' to find the blocking process", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  CDP Activation Server (cmd/server/main.go)               ║")
	log.Println("║  Segments, exports and audience uploads over HTTP         ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Activation.DryRun {
		log.Println("[config] dry-run mode active, no audiences will be uploaded")
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: %s is available", addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingOptions{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	// The server starts without data; /health/ready stays 503 until a
	// reload succeeds.
	loadCtx, loadCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := a.Load(loadCtx); err != nil {
		logger.Error("initial record load failed", "source", cfg.Data.Source, "error", err)
		log.Println("Record store empty: POST /api/data/reload once the source is available")
	} else if store, err := a.Holder.Load(); err == nil {
		c := store.Counts()
		log.Printf("Record store loaded: %d customers, %d transactions, %d events",
			c.Customers, c.Transactions, c.Events)
	}
	loadCancel()

	if a.Redis != nil {
		log.Println("Upload locks backed by Redis")
	} else {
		log.Println("Upload locks are process-local (no redis.url)")
	}
	if cfg.Ledger.Table != "" {
		log.Printf("Activation history stored in DynamoDB table %s", cfg.Ledger.Table)
	}

	handlers := api.NewHandlers(api.Deps{
		Config:        cfg,
		Holder:        a.Holder,
		Loader:        a.Loader,
		Engine:        a.Engine,
		Catalog:       a.Catalog,
		Formatter:     a.Formatter,
		ExportOptions: a.ExportOptions,
		Activator:     a.Activator,
	})

	var bucket api.BucketHeader
	if a.S3 != nil && cfg.Export.S3Bucket != "" {
		bucket = a.S3
	}
	health := api.NewHealthChecker(a.Holder, a.DB, a.Redis, bucket, cfg.Export.S3Bucket)
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	logger.Sync()

	log.Println("Server stopped")
}
