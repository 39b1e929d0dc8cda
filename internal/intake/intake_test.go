package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/blob"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/metrics"
	"github.com/joseph-ayodele/finance-intake/internal/ocr"
	"github.com/joseph-ayodele/finance-intake/internal/repository"
	"github.com/joseph-ayodele/finance-intake/internal/router"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

const supplyCode = "ES0021000000000001AB"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	svc     *Service
	docs    repository.DocumentRepository
	catalog repository.CatalogRepository
	ledger  repository.Ledger
	blobs   *blob.Memory
	clock   *clock
	calls   atomic.Int32
	extract func(ctx context.Context, req ocr.Request) (*ocr.Response, error)
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	objects := store.NewMemory()
	f := &fixture{
		docs:    repository.NewDocumentRepository(objects, nil),
		catalog: repository.NewCatalogRepository(objects, nil),
		ledger:  repository.NewLedger(objects, nil),
		blobs:   blob.NewMemory(),
		clock:   &clock{t: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)},
		extract: utilityOCR,
	}
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	client := ocr.ClientFunc(func(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
		f.calls.Add(1)
		return f.extract(ctx, req)
	})
	f.svc = New(cfg, Dependencies{
		Documents: f.docs,
		Catalog:   f.catalog,
		Ledger:    f.ledger,
		Blobs:     f.blobs,
		OCR:       client,
	}, nil, WithClock(f.clock.Now), WithMetrics(m))

	_, err = f.catalog.SaveProperty(context.Background(), entity.Property{
		ID:          "prop-1",
		Name:        "Piso Centro",
		Address:     "Calle Mayor 12, Madrid",
		PostalCode:  "28013",
		SupplyCodes: []string{supplyCode},
	})
	require.NoError(t, err)
	_, err = f.catalog.SaveAccount(context.Background(), entity.Account{
		ID:            "acc-1",
		Alias:         "Cuenta nómina",
		IBAN:          "ES9121000418450200051332",
		AccountNumber: "21000418450200051332",
	})
	require.NoError(t, err)
	return f
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func utilityOCR(_ context.Context, req ocr.Request) (*ocr.Response, error) {
	return &ocr.Response{
		JobID:  "job-" + req.DocumentID,
		Status: constants.OCRStatusSucceeded,
		Text:   "Factura de electricidad Iberdrola CUPS " + supplyCode + " consumo 250 kWh",
		Fields: entity.ExtractedFields{
			SupplierName:  "Iberdrola Clientes SAU",
			SupplierTaxID: "A95758389",
			NetAmount:     money("50.00"),
			TaxAmount:     money("10.50"),
			TotalAmount:   money("60.50"),
			Currency:      "EUR",
			IssueDate:     "2024-03-01",
			Utility:       &entity.UtilityDetails{SupplyCode: supplyCode},
		},
		FieldConfidence: map[string]float64{"total_amount": 0.98},
	}, nil
}

func (f *fixture) submit(t *testing.T, name, content string) *entity.IntakeDocument {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), SubmitRequest{Filename: name, Content: []byte(content)})
	require.NoError(t, err)
	require.False(t, res.Deduplicated)
	return res.Document
}

func (f *fixture) get(t *testing.T, id string) *entity.IntakeDocument {
	t.Helper()
	doc, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func logCodes(doc *entity.IntakeDocument) []string {
	codes := make([]string, 0, len(doc.Logs))
	for _, l := range doc.Logs {
		codes = append(codes, l.Code)
	}
	return codes
}

func countCode(doc *entity.IntakeDocument, code string) int {
	n := 0
	for _, l := range doc.Logs {
		if l.Code == code {
			n++
		}
	}
	return n
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{Filename: "virus.exe", Content: []byte("x")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.Submit(ctx, SubmitRequest{Filename: "empty.pdf"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.Submit(ctx, SubmitRequest{Filename: "a.pdf", Content: []byte("x"), Source: "fax"})
	assert.ErrorIs(t, err, common.ErrValidation)

	assert.Equal(t, 0, f.svc.QueueLen())
	assert.Equal(t, 0, f.blobs.Len())
}

func TestSubmit_CreatesReceivedDocument(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	doc := f.submit(t, "factura.pdf", "%PDF-1.4 utility")

	assert.Equal(t, constants.StateReceived, doc.State)
	assert.Equal(t, constants.SourceUpload, doc.Source)
	assert.Equal(t, constants.DocTypeUnknown, doc.DeclaredType)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, 1, doc.Fingerprint.Revision)
	assert.NotEmpty(t, doc.Fingerprint.FileHash)
	assert.Equal(t, []string{"received"}, logCodes(doc))
	assert.Equal(t, 1, f.svc.QueueLen())
	assert.Equal(t, 1, f.blobs.Len())

	stored, err := f.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateReceived, stored.State)
}

func TestSubmit_SameBytesMergeIntoActiveDocument(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	first := f.submit(t, "factura.pdf", "same bytes")

	res, err := f.svc.Submit(context.Background(), SubmitRequest{Filename: "copy.pdf", Content: []byte("same bytes")})
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
	assert.Equal(t, first.ID, res.Document.ID)
	assert.Equal(t, 2, res.Document.Fingerprint.Revision)
	assert.Equal(t, 1, countCode(res.Document, "duplicate_submission"))
	assert.Equal(t, 1, f.svc.QueueLen())
	assert.Equal(t, 1, f.blobs.Len())
	assert.Len(t, f.svc.List(context.Background()), 1)
}

func TestProcess_UtilityBillBecomesPropertyExpense(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	doc := f.submit(t, "factura.pdf", "%PDF utility")

	assert.Equal(t, 1, f.svc.ProcessPending(context.Background()))

	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateClassifiedOK, got.State, got.Logs)
	assert.Equal(t, constants.SubtypeUtilitySupply, got.Classification.Subtype)
	require.NotNil(t, got.DestinationRef)
	assert.Equal(t, entity.DestinationExpense, got.DestinationRef.Kind)
	assert.True(t, strings.HasPrefix(got.DestinationRef.Path, "expenses/property/prop-1/2024/"), got.DestinationRef.Path)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(72*time.Hour), *got.ExpiresAt)
	require.NotNil(t, got.Match)
	assert.Equal(t, entity.MatchExactCode, got.Match.Method)
	assert.Equal(t, "job-"+doc.ID, got.OCR.JobID)
	assert.Equal(t, 1, got.Fingerprint.ComputedFor)
	assert.NotEmpty(t, got.Fingerprint.DocFingerprint)
	assert.Nil(t, got.ErrorMessage)

	assert.Equal(t, []string{"received", "ocr_running", "ocr_ok", "validated", "fingerprint", "matched", "classified_ok"}, logCodes(got))

	expenses, err := f.ledger.ListExpenses(context.Background())
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, entity.ScopeProperty, expenses[0].Scope)
	assert.Equal(t, "prop-1", expenses[0].PropertyID)
	assert.Equal(t, got.DestinationRef.ID, expenses[0].ID)
	assert.True(t, decimal.RequireFromString("60.50").Equal(expenses[0].Total))

	stored, err := f.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateClassifiedOK, stored.State)
}

func TestProcess_SEPAReceiptBecomesMovement(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, req ocr.Request) (*ocr.Response, error) {
		assert.Equal(t, constants.DocTypeSEPAReceipt, req.DeclaredType)
		return &ocr.Response{
			JobID: "job-sepa",
			Text:  "Recibo adeudo SEPA Comunidad de propietarios",
			Fields: entity.ExtractedFields{
				SupplierName:  "Comunidad Calle Mayor 12",
				TotalAmount:   money("45.00"),
				DueDate:       "2024-03-05",
				AccountMasked: "ES** **** **** **** **** 1332",
			},
		}, nil
	}
	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		Filename:     "recibo.pdf",
		DeclaredType: constants.DocTypeSEPAReceipt,
		Source:       constants.SourceEmail,
		Content:      []byte("sepa"),
	})
	require.NoError(t, err)
	f.svc.ProcessPending(context.Background())

	got := f.get(t, res.Document.ID)
	require.Equal(t, constants.StateClassifiedOK, got.State, got.Logs)
	assert.Equal(t, constants.SubtypePlainReceipt, got.Classification.Subtype)
	require.NotNil(t, got.DestinationRef)
	assert.Equal(t, entity.DestinationMovement, got.DestinationRef.Kind)
	assert.True(t, strings.HasPrefix(got.DestinationRef.Path, "treasury/acc-1/"), got.DestinationRef.Path)

	movements, err := f.ledger.ListMovements(context.Background())
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "acc-1", movements[0].AccountID)
	assert.True(t, decimal.RequireFromString("-45").Equal(movements[0].Amount))
}

func TestProcess_MissingFieldsNeedReview(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return &ocr.Response{
			JobID:  "job-1",
			Text:   "Factura electricidad consumo",
			Fields: entity.ExtractedFields{SupplierName: "Endesa"},
		}, nil
	}
	doc := f.submit(t, "factura.pdf", "incomplete")
	f.svc.ProcessPending(context.Background())

	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateNeedsReview, got.State)
	assert.Contains(t, got.ReviewReason, "total_amount")
	assert.Contains(t, got.ReviewReason, "issue_date")
	assert.ElementsMatch(t, []string{"total_amount", "issue_date"}, got.OCR.Missing)
	assert.Nil(t, got.DestinationRef)
	assert.Nil(t, got.ExpiresAt)

	expenses, err := f.ledger.ListExpenses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestProcess_HomeReformAlwaysNeedsReview(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return &ocr.Response{
			JobID: "job-1",
			Text:  "Factura reforma de cocina, mano de obra y materiales. CUPS " + supplyCode,
			Fields: entity.ExtractedFields{
				SupplierName:   "Reformas López SL",
				TotalAmount:    money("1200.00"),
				IssueDate:      "2024-03-10",
				ServiceAddress: "Calle Mayor 12, 28013 Madrid",
			},
		}, nil
	}
	doc := f.submit(t, "obra.pdf", "reform")
	f.svc.ProcessPending(context.Background())

	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateNeedsReview, got.State)
	assert.Equal(t, constants.SubtypeHomeReform, got.Classification.Subtype)
	assert.Equal(t, router.ReasonFiscalSplit, got.ReviewReason)
	assert.Nil(t, got.DestinationRef)

	split := map[constants.FiscalCategory]decimal.Decimal{
		constants.FiscalImprovement:        decimal.RequireFromString("800"),
		constants.FiscalRepairConservation: decimal.RequireFromString("400"),
	}
	resolved, err := f.svc.Resolve(context.Background(), doc.ID, router.Resolution{
		Kind:        entity.DestinationExpense,
		Scope:       entity.ScopeProperty,
		PropertyID:  "prop-1",
		FiscalSplit: split,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StateArchived, resolved.State)
	require.NotNil(t, resolved.DestinationRef)
	assert.Empty(t, resolved.ReviewReason)

	expenses, err := f.ledger.ListExpenses(context.Background())
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Len(t, expenses[0].FiscalSplit, 2)

	_, err = f.svc.Resolve(context.Background(), doc.ID, router.Resolution{Kind: entity.DestinationExpense})
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestResolve_BadSplitLeavesDocumentInReview(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return &ocr.Response{Text: "Factura de servicios profesionales", Fields: entity.ExtractedFields{
			SupplierName: "Asesores SL", TotalAmount: money("100"), IssueDate: "2024-03-01",
		}}, nil
	}
	doc := f.submit(t, "invoice.pdf", "generic")
	f.svc.ProcessPending(context.Background())
	require.Equal(t, constants.StateNeedsReview, f.get(t, doc.ID).State)

	_, err := f.svc.Resolve(context.Background(), doc.ID, router.Resolution{
		Kind:        entity.DestinationExpense,
		FiscalSplit: map[constants.FiscalCategory]decimal.Decimal{constants.FiscalFurniture: decimal.RequireFromString("99")},
	})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, constants.StateNeedsReview, f.get(t, doc.ID).State)

	// the checkout was released
	_, err = f.svc.Resolve(context.Background(), doc.ID, router.Resolution{Kind: entity.DestinationExpense})
	require.NoError(t, err)
}

func TestProcess_TransientFailuresRetryThreeTimes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return nil, fmt.Errorf("%w: upstream 503", ocr.ErrTransient)
	}
	doc := f.submit(t, "factura.pdf", "flaky")

	assert.Equal(t, 4, f.svc.ProcessPending(context.Background()))
	assert.Equal(t, int32(4), f.calls.Load())

	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateOCRFailed, got.State)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "upstream 503")
	assert.Equal(t, 3, countCode(got, "ocr_retry"))
	assert.Equal(t, 1, countCode(got, "ocr_running"))
	assert.Equal(t, 0, f.svc.QueueLen())
}

func TestProcess_UnclassifiedFailuresAreRetried(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return nil, errors.New("ocr engine unavailable")
	}
	doc := f.submit(t, "factura.pdf", "engine down")

	assert.Equal(t, 4, f.svc.ProcessPending(context.Background()))
	assert.Equal(t, int32(4), f.calls.Load())

	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateOCRFailed, got.State)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "ocr engine unavailable")
	assert.Equal(t, 3, countCode(got, "ocr_retry"))
}

func TestProcess_TransientThenSuccess(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
		if f.calls.Load() <= 2 {
			return nil, ocr.ErrTransient
		}
		return utilityOCR(ctx, req)
	}
	doc := f.submit(t, "factura.pdf", "eventually")
	f.svc.ProcessPending(context.Background())

	assert.Equal(t, int32(3), f.calls.Load())
	got := f.get(t, doc.ID)
	assert.Equal(t, constants.StateClassifiedOK, got.State)
	assert.Equal(t, 2, countCode(got, "ocr_retry"))
}

func TestProcess_PermanentFailureIsNotRetried(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return nil, fmt.Errorf("%w: reply violates schema", ocr.ErrPermanent)
	}
	doc := f.submit(t, "factura.pdf", "broken")
	f.svc.ProcessPending(context.Background())

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, constants.StateOCRFailed, f.get(t, doc.ID).State)
}

func TestProcess_TimeoutIsParked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCRTimeout = 20 * time.Millisecond
	f := newFixture(t, cfg)
	f.extract = func(ctx context.Context, _ ocr.Request) (*ocr.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	doc := f.submit(t, "factura.pdf", "slow")
	f.svc.ProcessPending(context.Background())

	assert.Equal(t, int32(1), f.calls.Load())
	got := f.get(t, doc.ID)
	assert.Equal(t, constants.StateOCRTimeout, got.State)
	assert.Equal(t, constants.OCRStatusTimeout, got.OCR.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, 0, f.svc.QueueLen())
}

func TestProcess_TimeoutIgnoredByClientStillParks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCRTimeout = 50 * time.Millisecond
	f := newFixture(t, cfg)
	unblock := make(chan struct{})
	t.Cleanup(func() { close(unblock) })
	f.extract = func(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
		<-unblock
		return utilityOCR(ctx, req)
	}
	doc := f.submit(t, "factura.pdf", "stuck engine")

	done := make(chan int, 1)
	go func() { done <- f.svc.ProcessPending(context.Background()) }()
	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("worker still blocked after the OCR timeout")
	}

	got := f.get(t, doc.ID)
	assert.Equal(t, constants.StateOCRTimeout, got.State)
	assert.Equal(t, constants.OCRStatusTimeout, got.OCR.Status)
	assert.Equal(t, 0, f.svc.QueueLen())
}

func TestProcess_PanicIsRecoveredAndQueueContinues(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
		if req.Filename == "boom.pdf" {
			panic("nil map write")
		}
		return utilityOCR(ctx, req)
	}
	bad := f.submit(t, "boom.pdf", "bad")
	good := f.submit(t, "factura.pdf", "good")

	assert.Equal(t, 2, f.svc.ProcessPending(context.Background()))

	failed := f.get(t, bad.ID)
	assert.Equal(t, constants.StateOCRFailed, failed.State)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "nil map write")
	assert.Equal(t, constants.StateClassifiedOK, f.get(t, good.ID).State)
}

func TestProcess_DeleteDuringOCRDiscardsResult(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
		require.NoError(t, f.svc.Delete(ctx, req.DocumentID))
		return utilityOCR(ctx, req)
	}
	doc := f.submit(t, "factura.pdf", "deleted mid-flight")
	f.svc.ProcessPending(context.Background())

	_, err := f.svc.Get(context.Background(), doc.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.docs.Get(context.Background(), doc.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 0, f.blobs.Len())

	expenses, err := f.ledger.ListExpenses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestProcess_ReprocessDuringOCRRunsAgain(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
		if f.calls.Load() == 1 {
			_, err := f.svc.Reprocess(ctx, req.DocumentID)
			require.NoError(t, err)
		}
		return utilityOCR(ctx, req)
	}
	doc := f.submit(t, "factura.pdf", "reset mid-flight")
	f.svc.ProcessPending(context.Background())

	assert.Equal(t, int32(2), f.calls.Load())
	got := f.get(t, doc.ID)
	assert.Equal(t, constants.StateClassifiedOK, got.State)
	assert.Equal(t, 2, got.Fingerprint.Revision)
	assert.Equal(t, 2, got.Fingerprint.ComputedFor)

	expenses, err := f.ledger.ListExpenses(context.Background())
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestReprocess(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return nil, ocr.ErrPermanent
	}
	doc := f.submit(t, "factura.pdf", "retry me")
	f.svc.ProcessPending(context.Background())
	require.Equal(t, constants.StateOCRFailed, f.get(t, doc.ID).State)

	f.extract = utilityOCR
	reset, err := f.svc.Reprocess(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateReceived, reset.State)
	assert.Nil(t, reset.ErrorMessage)
	assert.Equal(t, 2, reset.Fingerprint.Revision)
	assert.Empty(t, reset.Fingerprint.DocFingerprint)

	f.svc.ProcessPending(context.Background())
	got := f.get(t, doc.ID)
	assert.Equal(t, constants.StateClassifiedOK, got.State)
	assert.Equal(t, 2, got.Fingerprint.ComputedFor)

	_, err = f.svc.Reprocess(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReprocess_JumpsTheQueue(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.submit(t, "a.pdf", "a")
	b := f.submit(t, "b.pdf", "b")
	c := f.submit(t, "c.pdf", "c")

	_, err := f.svc.Reprocess(context.Background(), c.ID)
	require.NoError(t, err)

	var order []string
	for _, task := range f.svc.Pending() {
		order = append(order, task.DocID)
	}
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, order)
	assert.Equal(t, constants.PriorityHigh, f.svc.Pending()[0].Priority)
}

func TestLifecycleGuards(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	doc := f.submit(t, "factura.pdf", "guarded")

	_, err := f.svc.Archive(ctx, doc.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState, "received cannot be archived")

	f.svc.ProcessPending(ctx)
	archived, err := f.svc.Archive(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateArchived, archived.State)
	assert.Nil(t, archived.ExpiresAt)
	assert.NotNil(t, archived.DestinationRef)

	_, err = f.svc.Reprocess(ctx, doc.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Delete(ctx, doc.ID), common.ErrInvalidState)
	_, err = f.svc.Resolve(ctx, doc.ID, router.Resolution{})
	assert.ErrorIs(t, err, common.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Delete(ctx, "missing"), common.ErrNotFound)
}

func TestSweep_PurgeBoundary(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	start := f.clock.Now()

	kept := f.submit(t, "kept.pdf", "kept")
	purged := f.submit(t, "purged.pdf", "purged")
	f.svc.ProcessPending(ctx)
	_, err := f.svc.Archive(ctx, kept.ID)
	require.NoError(t, err)

	f.clock.Set(start.Add(72 * time.Hour))
	assert.Equal(t, 0, f.svc.Sweep(ctx), "expiresAt equal to now is kept")

	f.clock.Set(start.Add(72*time.Hour + time.Nanosecond))
	assert.Equal(t, 1, f.svc.Sweep(ctx))

	_, err = f.svc.Get(ctx, purged.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.docs.Get(ctx, purged.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, f.blobs.Len())

	f.clock.Set(start.Add(1000 * time.Hour))
	assert.Equal(t, 0, f.svc.Sweep(ctx), "archived documents are never purged")
	assert.Equal(t, constants.StateArchived, f.get(t, kept.ID).State)

	expenses, err := f.ledger.ListExpenses(ctx)
	require.NoError(t, err)
	assert.Len(t, expenses, 2, "purge never touches the ledger")
}

func TestSweep_OnlyClassifiedDocuments(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return nil, ocr.ErrPermanent
	}
	doc := f.submit(t, "factura.pdf", "failed")
	f.svc.ProcessPending(context.Background())

	f.clock.Set(f.clock.Now().Add(10000 * time.Hour))
	assert.Equal(t, 0, f.svc.Sweep(context.Background()))
	assert.Equal(t, constants.StateOCRFailed, f.get(t, doc.ID).State)
}

const statementCSV = "Cuenta: ES91 2100 0418 4502 0005 1332\n" +
	"Fecha;Concepto;Importe;Saldo\n" +
	"02/01/2024;Recibo Iberdrola Clientes;-45,30;1.254,70\n" +
	"03/01/2024;Transferencia nómina;1.500,00;2.754,70\n" +
	"Fecha;Concepto;Importe;Saldo\n" +
	"05/01/2024;Compra Mercadona café;-23,10;2.731,60\n" +
	"bad;Something with a long description;-1,00;0\n" +
	"Total;;1.431,60;\n"

func TestStatement_BypassesOCRAndImportsBatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	doc := f.submit(t, "extracto.csv", statementCSV)
	f.svc.ProcessPending(ctx)

	assert.Equal(t, int32(0), f.calls.Load())
	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateClassifiedOK, got.State, got.Logs)
	assert.Equal(t, constants.SubtypeBankStatement, got.Classification.Subtype)
	require.NotNil(t, got.DestinationRef)
	assert.Equal(t, entity.DestinationImportBatch, got.DestinationRef.Kind)
	assert.Equal(t, "automatic import/CaixaBank/"+got.DestinationRef.ID, got.DestinationRef.Path)
	assert.NotNil(t, got.ExpiresAt)
	assert.Equal(t, []string{"received", "statement_imported", "classified_ok"}, logCodes(got))
	require.NotNil(t, got.Match)
	assert.Equal(t, "acc-1", got.Match.EntityID)

	movements, err := f.ledger.ListMovementsByBatch(ctx, got.DestinationRef.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 3)
	for _, mv := range movements {
		assert.Equal(t, "acc-1", mv.AccountID)
	}

	batches, err := f.ledger.ListImportBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, entity.RowCounts{Total: 6, Imported: 3, Skipped: 2, Errored: 1}, batches[0].Counts)
	assert.Equal(t, got.Fingerprint.FileHash, batches[0].ContentHash)

	// reprocessing the same statement reuses the batch
	_, err = f.svc.Reprocess(ctx, doc.ID)
	require.NoError(t, err)
	f.svc.ProcessPending(ctx)
	again := f.get(t, doc.ID)
	assert.Equal(t, constants.StateClassifiedOK, again.State)
	assert.Equal(t, got.DestinationRef.ID, again.DestinationRef.ID)
	all, err := f.ledger.ListMovements(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStatement_RequiresMappingThenRemap(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	doc := f.submit(t, "odd.csv", "x;y;z\n01/02/2024;Cafe bar;-3,50\n")
	f.svc.ProcessPending(ctx)

	got := f.get(t, doc.ID)
	require.Equal(t, constants.StateNeedsReview, got.State)
	assert.Equal(t, router.ReasonColumnMapping, got.ReviewReason)
	last := got.Logs[len(got.Logs)-1]
	require.Contains(t, last.Metadata, "suggested_mapping")
	suggested, ok := last.Metadata["suggested_mapping"].(entity.ColumnMapping)
	require.True(t, ok)
	assert.Equal(t, 0, suggested.Date)

	incomplete := entity.EmptyMapping()
	_, err := f.svc.Remap(ctx, doc.ID, incomplete)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	m := entity.EmptyMapping()
	m.HeaderRow, m.Date, m.Description, m.Amount = 0, 0, 1, 2
	remapped, err := f.svc.Remap(ctx, doc.ID, m)
	require.NoError(t, err)
	assert.Equal(t, constants.StateClassifiedOK, remapped.State)
	assert.Equal(t, 1, countCode(remapped, "mapping_applied"))

	batches, err := f.ledger.ListImportBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, m, batches[0].Mapping)
	assert.Equal(t, 1, batches[0].Counts.Imported)
}

func TestRemap_RejectsNonStatements(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.extract = func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
		return &ocr.Response{Fields: entity.ExtractedFields{SupplierName: "X"}}, nil
	}
	doc := f.submit(t, "scan.pdf", "pdf")
	f.svc.ProcessPending(context.Background())
	require.Equal(t, constants.StateNeedsReview, f.get(t, doc.ID).State)

	_, err := f.svc.Remap(context.Background(), doc.ID, entity.EmptyMapping())
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestFingerprint_DuplicateMergesIntoExistingDocument(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	now := f.clock.Now()

	// two records for the same bytes, as left behind by an interrupted run
	for i, id := range []string{"doc-a", "doc-b"} {
		key := "documents/" + id + "/factura.pdf"
		require.NoError(t, f.blobs.Put(ctx, key, []byte("same"), "application/pdf"))
		require.NoError(t, f.docs.Save(ctx, &entity.IntakeDocument{
			ID:          id,
			Source:      constants.SourceUpload,
			Filename:    "factura.pdf",
			MimeType:    "application/pdf",
			BlobKey:     key,
			State:       constants.StateOCRRunning,
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
			Fingerprint: entity.Fingerprint{FileHash: "hash-same", Revision: 1},
		}))
	}

	queued, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	f.svc.ProcessPending(ctx)

	survivor := f.get(t, "doc-a")
	assert.Equal(t, constants.StateClassifiedOK, survivor.State)
	assert.Equal(t, 2, survivor.Fingerprint.Revision)
	assert.Equal(t, 1, countCode(survivor, "duplicate_merged"))
	assert.Equal(t, 1, countCode(survivor, "received"), "recovered from ocr_running")

	_, err = f.svc.Get(ctx, "doc-b")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, f.blobs.Len())

	expenses, err := f.ledger.ListExpenses(ctx)
	require.NoError(t, err)
	assert.Len(t, expenses, 1, "the merged duplicate is never booked")
}

func TestRecover_LeavesSettledDocumentsAlone(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, f.docs.Save(ctx, &entity.IntakeDocument{ID: "done", State: constants.StateNeedsReview, Fingerprint: entity.Fingerprint{FileHash: "h1", Revision: 1}}))
	require.NoError(t, f.docs.Save(ctx, &entity.IntakeDocument{ID: "new", State: constants.StateReceived, Fingerprint: entity.Fingerprint{FileHash: "h2", Revision: 1}}))

	queued, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Len(t, f.svc.List(ctx), 2)
	assert.Len(t, f.svc.List(ctx, constants.StateNeedsReview), 1)
	assert.Equal(t, "new", f.svc.Pending()[0].DocID)
}

func TestRun_ProcessesUntilCancelled(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	doc := f.submit(t, "factura.pdf", "background")
	require.Eventually(t, func() bool {
		got, err := f.svc.Get(context.Background(), doc.ID)
		return err == nil && got.State == constants.StateClassifiedOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestShouldRetry(t *testing.T) {
	transient := fmt.Errorf("poll job: %w", ocr.ErrTransient)
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"first failure", transient, 1, true},
		{"third failure", transient, 3, true},
		{"fourth failure", transient, 4, false},
		{"timeout", ocr.ErrTimeout, 1, false},
		{"deadline", context.DeadlineExceeded, 1, false},
		{"permanent", ocr.ErrPermanent, 1, false},
		{"unclassified", errors.New("boom"), 1, true},
		{"unclassified exhausted", errors.New("boom"), 4, false},
		{"wrapped permanent", fmt.Errorf("decode: %w", ocr.ErrPermanent), 1, false},
		{"nil", nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestQueue_PriorityAndDedupe(t *testing.T) {
	q := newQueue()
	assert.True(t, q.push(Task{DocID: "a"}))
	assert.True(t, q.push(Task{DocID: "b"}))
	assert.True(t, q.push(Task{DocID: "c", Priority: constants.PriorityHigh}))
	assert.True(t, q.push(Task{DocID: "d", Priority: constants.PriorityHigh}))
	assert.False(t, q.push(Task{DocID: "a"}), "already queued")
	assert.True(t, q.push(Task{DocID: "b", Priority: constants.PriorityHigh}), "promoted")
	assert.False(t, q.push(Task{DocID: "c", Priority: constants.PriorityHigh}))

	var order []string
	for {
		task, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, task.DocID)
	}
	assert.Equal(t, []string{"c", "d", "b", "a"}, order)
	assert.False(t, q.remove("a"))
}
