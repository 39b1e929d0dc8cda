package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/blob"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/export"
	"github.com/joseph-ayodele/finance-intake/internal/ingest"
	"github.com/joseph-ayodele/finance-intake/internal/intake"
	"github.com/joseph-ayodele/finance-intake/internal/ocr"
	"github.com/joseph-ayodele/finance-intake/internal/repository"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

// catalogFile seeds the properties and accounts documents are matched against.
type catalogFile struct {
	Properties []entity.Property `json:"properties"`
	Accounts   []entity.Account  `json:"accounts"`
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem   = flag.Bool("inmem", true, "use an in-memory SQLite database instead of STORE_DRIVER/DB_URL")
		dir     = flag.String("dir", "", "directory to process documents from (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		catalog = flag.String("catalog", "", "JSON file with properties and accounts (optional)")
		fromStr = flag.String("from", "", "from date YYYY-MM-DD")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "intake.xlsx")
	}

	from, err := parseDate(*fromStr)
	if err != nil {
		printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}
	to, err := parseDate(*toStr)
	if err != nil {
		printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	storeCfg := store.Config{Driver: store.DriverSQLite, DSN: ":memory:"}
	if !*inmem {
		storeCfg = store.Config{
			Driver:          cfg.Store.Driver,
			DSN:             cfg.Store.DSN,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
			MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
			DialTimeout:     cfg.Store.DialTimeout,
		}
	}
	objects, err := store.Open(ctx, storeCfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := objects.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	catalogRepo := repository.NewCatalogRepository(objects, logger)
	ledger := repository.NewLedger(objects, logger)
	if *catalog != "" {
		if err := seedCatalog(ctx, catalogRepo, *catalog); err != nil {
			logger.Error("failed to load catalog", "path", *catalog, "error", err)
			os.Exit(1)
		}
	}

	svc := intake.New(intake.Config{
		Retention:  cfg.Intake.Retention,
		OCRTimeout: cfg.OCR.Timeout,
		MaxRetries: cfg.Intake.MaxRetries,
	}, intake.Dependencies{
		Documents: repository.NewDocumentRepository(objects, logger),
		Catalog:   catalogRepo,
		Ledger:    ledger,
		Blobs:     blob.NewMemory(),
		OCR:       ocrClient(cfg.OCR, logger),
	}, logger)

	ingestor := ingest.NewFSIngestor(svc, logger)
	logger.Info("starting ingestion", "dir", *dir)
	_, stats, err := ingestor.IngestDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	processed := svc.ProcessPending(ctx)

	logger.Info("exporting to XLSX", "output", *out)
	xlsxBytes, err := export.NewService(ledger, svc, logger).ExportXLSX(ctx, from, to)
	if err != nil {
		logger.Error("failed to export", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	byState := map[constants.DocumentState]int{}
	for _, d := range svc.List(ctx) {
		byState[d.State]++
	}
	logger.Info("batch processing complete",
		"files_ingested", stats.Succeeded,
		"tasks_processed", processed,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files ingested: %d (%d duplicates, %d failed)\n", stats.Succeeded, stats.Deduplicated, stats.Failed)
	for _, st := range constants.States() {
		if n := byState[st]; n > 0 {
			fmt.Printf("- %s: %d\n", st, n)
		}
	}
	fmt.Printf("- Output: %s\n", *out)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func seedCatalog(ctx context.Context, repo repository.CatalogRepository, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var c catalogFile
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for _, p := range c.Properties {
		if _, err := repo.SaveProperty(ctx, p); err != nil {
			return err
		}
	}
	for _, a := range c.Accounts {
		if _, err := repo.SaveAccount(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// ocrClient falls back to a client that rejects every call, so statements
// still import when no OCR service is configured.
func ocrClient(cfg common.OCRConfig, logger *slog.Logger) ocr.Client {
	if cfg.BaseURL != "" {
		c, err := ocr.NewHTTPClient(ocr.Config{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			PollInterval: cfg.PollInterval,
		}, logger)
		if err == nil {
			return c
		}
		logger.Error("invalid OCR configuration", "error", err)
	} else {
		logger.Warn("OCR_URL not configured, only statements will be processed")
	}
	return ocr.ClientFunc(func(context.Context, ocr.Request) (*ocr.Response, error) {
		return nil, fmt.Errorf("ocr not configured: %w", ocr.ErrPermanent)
	})
}
