package server

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/blob"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/intake"
	"github.com/joseph-ayodele/finance-intake/internal/metrics"
	"github.com/joseph-ayodele/finance-intake/internal/ocr"
	"github.com/joseph-ayodele/finance-intake/internal/repository"
	"github.com/joseph-ayodele/finance-intake/internal/router"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

type harness struct {
	client *Client
	conn   *grpc.ClientConn
	svc    *intake.Service
	ledger repository.Ledger
	reg    *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	objects := store.NewMemory()
	ledger := repository.NewLedger(objects, nil)
	svc := intake.New(intake.DefaultConfig(), intake.Dependencies{
		Documents: repository.NewDocumentRepository(objects, nil),
		Catalog:   repository.NewCatalogRepository(objects, nil),
		Ledger:    ledger,
		Blobs:     blob.NewMemory(),
		OCR: ocr.ClientFunc(func(_ context.Context, _ ocr.Request) (*ocr.Response, error) {
			return &ocr.Response{
				JobID:  "job-1",
				Text:   "Factura electricidad consumo",
				Fields: entity.ExtractedFields{SupplierName: "Endesa"},
			}, nil
		}),
	}, nil)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := New(svc, m, slog.New(slog.DiscardHandler))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewClient(conn), conn: conn, svc: svc, ledger: ledger, reg: reg}
}

func requireCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, status.Code(err), err.Error())
}

func TestSubmitGetList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.client.Submit(ctx, &SubmitRequest{
		Filename:     "factura.pdf",
		DeclaredType: "factura",
		Content:      []byte("%PDF-1.4 body"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	assert.False(t, res.Deduplicated)
	assert.Equal(t, constants.StateReceived, res.Document.State)
	assert.Equal(t, constants.DocTypeInvoice, res.Document.DeclaredType)
	assert.Equal(t, constants.SourceUpload, res.Document.Source)

	again, err := h.client.Submit(ctx, &SubmitRequest{Filename: "copy.pdf", Content: []byte("%PDF-1.4 body")})
	require.NoError(t, err)
	assert.True(t, again.Deduplicated)
	assert.Equal(t, res.Document.ID, again.Document.ID)

	got, err := h.client.Get(ctx, &DocumentRequest{ID: res.Document.ID})
	require.NoError(t, err)
	assert.Equal(t, "factura.pdf", got.Document.Filename)

	list, err := h.client.List(ctx, &ListRequest{States: []string{"received"}})
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)

	list, err = h.client.List(ctx, &ListRequest{States: []string{"archived"}})
	require.NoError(t, err)
	assert.Empty(t, list.Documents)

	_, err = h.client.List(ctx, &ListRequest{States: []string{"bogus"}})
	requireCode(t, err, codes.InvalidArgument)
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Submit(ctx, &SubmitRequest{Filename: "notes.exe", Content: []byte("x")})
	requireCode(t, err, codes.InvalidArgument)

	_, err = h.client.Submit(ctx, &SubmitRequest{Filename: "a.pdf"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = h.client.Get(ctx, &DocumentRequest{})
	requireCode(t, err, codes.InvalidArgument)

	_, err = h.client.Get(ctx, &DocumentRequest{ID: "not-a-uuid"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = h.client.Get(ctx, &DocumentRequest{ID: uuid.NewString()})
	requireCode(t, err, codes.NotFound)

	res, err := h.client.Submit(ctx, &SubmitRequest{Filename: "a.pdf", Content: []byte("a")})
	require.NoError(t, err)

	_, err = h.client.Archive(ctx, &DocumentRequest{ID: res.Document.ID})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = h.client.Resolve(ctx, &ResolveRequest{ID: res.Document.ID, Resolution: router.Resolution{Kind: "refund"}})
	requireCode(t, err, codes.InvalidArgument)

	_, err = h.client.Resolve(ctx, &ResolveRequest{ID: res.Document.ID, Resolution: router.Resolution{Kind: entity.DestinationExpense}})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = h.client.Remap(ctx, &RemapRequest{ID: res.Document.ID, Mapping: entity.EmptyMapping()})
	requireCode(t, err, codes.FailedPrecondition)
}

func TestReviewResolvedOverRPC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.client.Submit(ctx, &SubmitRequest{Filename: "factura.pdf", Content: []byte("incomplete")})
	require.NoError(t, err)
	require.Equal(t, 1, h.svc.ProcessPending(ctx))

	got, err := h.client.Get(ctx, &DocumentRequest{ID: res.Document.ID})
	require.NoError(t, err)
	require.Equal(t, constants.StateNeedsReview, got.Document.State)
	assert.Contains(t, got.Document.OCR.Missing, "total_amount")

	resolved, err := h.client.Resolve(ctx, &ResolveRequest{
		ID: res.Document.ID,
		Resolution: router.Resolution{
			Kind:  entity.DestinationExpense,
			Scope: entity.ScopePersonal,
			Total: decimal.NewNullDecimal(decimal.RequireFromString("42.10")),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StateArchived, resolved.Document.State)
	require.NotNil(t, resolved.Document.DestinationRef)
	assert.Equal(t, entity.DestinationExpense, resolved.Document.DestinationRef.Kind)

	expenses, err := h.ledger.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.True(t, expenses[0].Total.Equal(decimal.RequireFromString("42.10")))

	_, err = h.client.Reprocess(ctx, &DocumentRequest{ID: res.Document.ID})
	requireCode(t, err, codes.FailedPrecondition)
}

func TestReprocessAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.client.Submit(ctx, &SubmitRequest{Filename: "factura.pdf", Content: []byte("incomplete")})
	require.NoError(t, err)
	h.svc.ProcessPending(ctx)

	again, err := h.client.Reprocess(ctx, &DocumentRequest{ID: res.Document.ID})
	require.NoError(t, err)
	assert.Equal(t, constants.StateReceived, again.Document.State)
	assert.Equal(t, 2, again.Document.Fingerprint.Revision)

	del, err := h.client.Delete(ctx, &DocumentRequest{ID: res.Document.ID})
	require.NoError(t, err)
	assert.Equal(t, res.Document.ID, del.ID)

	_, err = h.client.Get(ctx, &DocumentRequest{ID: res.Document.ID})
	requireCode(t, err, codes.NotFound)
	assert.Zero(t, h.svc.QueueLen())
}

func TestRequestIDAndMetrics(t *testing.T) {
	h := newHarness(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-123")

	var header metadata.MD
	_, err := h.client.List(ctx, &ListRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-123"}, header.Get(RequestIDHeader))

	header = nil
	_, err = h.client.List(context.Background(), &ListRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(RequestIDHeader), 1)
	assert.NotEqual(t, "req-123", header.Get(RequestIDHeader)[0])

	_, err = h.client.Get(ctx, &DocumentRequest{ID: uuid.NewString()})
	requireCode(t, err, codes.NotFound)

	series, err := testutil.GatherAndCount(h.reg, "intake_grpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	hc := healthpb.NewHealthClient(h.conn)

	for _, name := range []string{"", ServiceName} {
		resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: name})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}
