// Package intake owns the document lifecycle: it accepts files, queues
// them, drives OCR, validation, fingerprinting, matching and routing, and
// keeps the audit log of every transition.
package intake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/blob"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/matcher"
	"github.com/joseph-ayodele/finance-intake/internal/metrics"
	"github.com/joseph-ayodele/finance-intake/internal/ocr"
	"github.com/joseph-ayodele/finance-intake/internal/repository"
	"github.com/joseph-ayodele/finance-intake/internal/router"
	"github.com/joseph-ayodele/finance-intake/internal/statement"
	"github.com/joseph-ayodele/finance-intake/internal/validation"
)

// Config tunes the orchestrator. Zero durations take the defaults below;
// a zero MaxRetries disables retries.
type Config struct {
	// Retention is how long classified_ok documents are kept before purge.
	Retention time.Duration
	// SweepInterval is the purge cadence used by Run.
	SweepInterval time.Duration
	// OCRTimeout bounds a single OCR call.
	OCRTimeout time.Duration
	// MaxRetries caps transient OCR retries per revision.
	MaxRetries int
}

const (
	DefaultRetention     = 72 * time.Hour
	DefaultSweepInterval = 60 * time.Minute
	DefaultOCRTimeout    = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.OCRTimeout <= 0 {
		c.OCRTimeout = DefaultOCRTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries}.withDefaults()
}

// Dependencies are the collaborators the service drives.
type Dependencies struct {
	Documents repository.DocumentRepository
	Catalog   repository.CatalogRepository
	Ledger    repository.Ledger
	Blobs     blob.Store
	OCR       ocr.Client
}

// Option customizes a Service.
type Option func(*Service)

// WithClock injects the time source used for stamps, expirations and purge.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records transitions and OCR outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithParser replaces the statement parser.
func WithParser(p *statement.Parser) Option {
	return func(s *Service) { s.parser = p }
}

// Service is the single writer of intake documents. It owns the priority
// queue and the in-memory index; the store mirrors every committed change.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	metrics *metrics.Metrics

	documents repository.DocumentRepository
	catalog   repository.CatalogRepository
	ledger    repository.Ledger
	blobs     blob.Store
	ocr       ocr.Client

	parser    *statement.Parser
	matcher   *matcher.Matcher
	router    *router.Router
	validator validation.Validator

	queue *queue

	mu       sync.Mutex
	submitMu sync.Mutex
	docs     map[string]*entity.IntakeDocument
	// versions bumps whenever a document is reset or removed so that
	// in-flight results for an older version are discarded.
	versions map[string]uint64
	inFlight map[string]bool
}

// New builds a Service. Call Recover before Run to reload persisted work.
func New(cfg Config, deps Dependencies, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		documents: deps.Documents,
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		blobs:     deps.Blobs,
		ocr:       deps.OCR,
		queue:     newQueue(),
		docs:      make(map[string]*entity.IntakeDocument),
		versions:  make(map[string]uint64),
		inFlight:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parser == nil {
		s.parser = statement.NewParser(statement.DefaultConfig(), logger)
	}
	s.matcher = matcher.New(logger)
	s.router = router.New(logger, deps.Ledger, deps.Ledger).WithClock(s.now)
	s.validator = validation.Validator{Now: s.now}
	return s
}

// QueueLen reports how many tasks are waiting.
func (s *Service) QueueLen() int {
	return s.queue.len()
}

// Pending lists queued tasks in service order.
func (s *Service) Pending() []Task {
	return s.queue.snapshot()
}

func (s *Service) enqueue(docID string, priority constants.Priority, attempt int) {
	if s.queue.push(Task{DocID: docID, Priority: priority, Attempt: attempt, EnqueuedAt: s.now()}) {
		s.logger.Debug("intake.enqueued", "doc_id", docID, "priority", priority.String(), "attempt", attempt)
	}
	s.metrics.QueueDepth(s.queue.len())
}

// transition moves doc to state and appends the matching log line.
func (s *Service) transition(doc *entity.IntakeDocument, state constants.DocumentState, message string, metadata map[string]any) {
	doc.State = state
	doc.UpdatedAt = s.now()
	doc.AppendLog(doc.UpdatedAt, string(state), message, metadata)
	s.metrics.StateEntered(string(state))
}

// persist writes doc to the store. Callers hold s.mu.
func (s *Service) persist(ctx context.Context, doc *entity.IntakeDocument) error {
	if s.documents == nil {
		return nil
	}
	return s.documents.Save(ctx, doc)
}
