package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/finance-intake/internal/blob"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/ingest"
	"github.com/joseph-ayodele/finance-intake/internal/intake"
	"github.com/joseph-ayodele/finance-intake/internal/metrics"
	"github.com/joseph-ayodele/finance-intake/internal/ocr"
	"github.com/joseph-ayodele/finance-intake/internal/repository"
	"github.com/joseph-ayodele/finance-intake/internal/server"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

func main() {
	cfg := common.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("intaked exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	objects, err := store.Open(ctx, store.Config{
		Driver:           cfg.Store.Driver,
		DSN:              cfg.Store.DSN,
		MaxConns:         cfg.Store.MaxConns,
		MinConns:         cfg.Store.MinConns,
		MaxConnLifetime:  cfg.Store.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Store.MaxConnIdleTime,
		DialTimeout:      cfg.Store.DialTimeout,
		StatementTimeout: cfg.Store.StatementTimeout,
	}, logger)
	if err != nil {
		return common.WrapError(err, "open store")
	}
	defer func() {
		if err := objects.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	blobs, err := openBlobs(ctx, cfg.Blob, logger)
	if err != nil {
		return common.WrapError(err, "open blob store")
	}

	ocrClient, err := ocr.NewHTTPClient(ocr.Config{
		BaseURL:      cfg.OCR.BaseURL,
		APIKey:       cfg.OCR.APIKey,
		PollInterval: cfg.OCR.PollInterval,
	}, logger)
	if err != nil {
		return common.WrapError(err, "ocr client")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return common.WrapError(err, "register metrics")
	}

	svc := intake.New(intake.Config{
		Retention:     cfg.Intake.Retention,
		SweepInterval: cfg.Intake.SweepInterval,
		OCRTimeout:    cfg.OCR.Timeout,
		MaxRetries:    cfg.Intake.MaxRetries,
	}, intake.Dependencies{
		Documents: repository.NewDocumentRepository(objects, logger),
		Catalog:   repository.NewCatalogRepository(objects, logger),
		Ledger:    repository.NewLedger(objects, logger),
		Blobs:     blobs,
		OCR:       ocrClient,
	}, logger, intake.WithMetrics(m))

	queued, err := svc.Recover(ctx)
	if err != nil {
		return common.WrapError(err, "recover documents")
	}
	logger.Info("intake state recovered", "queued", queued)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return common.WrapError(err, "listen "+cfg.Server.GRPCAddr)
	}
	grpcServer := server.New(svc, m, logger)
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if dir := cfg.Intake.InboxDir; dir != "" {
		ingestor := ingest.NewFSIngestor(svc, logger)
		g.Go(func() error {
			return ingest.Watch(gctx, ingestor, ingest.WatchConfig{
				Roots:       []string{dir},
				InitialScan: true,
				Debounce:    500 * time.Millisecond,
			}, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		grpcServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBlobs(ctx context.Context, cfg common.BlobConfig, logger *slog.Logger) (blob.Store, error) {
	switch cfg.Driver {
	case "minio":
		logger.Info("using minio blob store", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
		return blob.NewMinIO(ctx, blob.MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
	default:
		logger.Warn("using in-memory blob store, file contents are lost on restart")
		return blob.NewMemory(), nil
	}
}
