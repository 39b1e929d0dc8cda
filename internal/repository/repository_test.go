package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

func backends(t *testing.T) map[string]store.ObjectStore {
	s, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return map[string]store.ObjectStore{"memory": store.NewMemory(), "sqlite": s}
}

func newDoc(id, hash string, created time.Time) *entity.IntakeDocument {
	return &entity.IntakeDocument{
		ID:          id,
		Filename:    id + ".pdf",
		State:       constants.StateReceived,
		CreatedAt:   created,
		UpdatedAt:   created,
		Fingerprint: entity.Fingerprint{FileHash: hash, Revision: 1},
	}
}

func TestDocumentRepository(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := NewDocumentRepository(s, nil)

			require.NoError(t, repo.Save(ctx, newDoc("b", "h2", base.Add(time.Minute))))
			require.NoError(t, repo.Save(ctx, newDoc("a", "h1", base)))

			got, err := repo.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "a.pdf", got.Filename)
			assert.True(t, got.CreatedAt.Equal(base))

			all, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].ID)

			// a state change moves the document between state index buckets
			got.State = constants.StateClassifiedOK
			got.Fingerprint.DocFingerprint = "fp-1"
			require.NoError(t, repo.Save(ctx, got))

			received, err := repo.ListByState(ctx, constants.StateReceived)
			require.NoError(t, err)
			require.Len(t, received, 1)
			assert.Equal(t, "b", received[0].ID)

			byHash, err := repo.FindByFileHash(ctx, "h1")
			require.NoError(t, err)
			require.Len(t, byHash, 1)

			byFP, err := repo.FindByFingerprint(ctx, "fp-1")
			require.NoError(t, err)
			require.Len(t, byFP, 1)
			assert.Equal(t, "a", byFP[0].ID)

			require.NoError(t, repo.Delete(ctx, "a"))
			_, err = repo.Get(ctx, "a")
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	}
}

func TestCatalogRepository(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := NewCatalogRepository(s, nil)

			id, err := repo.SaveProperty(ctx, entity.Property{Name: "Piso Mayor", Address: "Calle Mayor 5", SupplyCodes: []string{"ES0021000000000001AB"}})
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			_, err = repo.SaveAccount(ctx, entity.Account{ID: "acc-1", Alias: "Nomina", IBAN: "ES9121000418450200051332"})
			require.NoError(t, err)

			props, err := repo.ListProperties(ctx)
			require.NoError(t, err)
			require.Len(t, props, 1)
			assert.Equal(t, id, props[0].ID)
			assert.Equal(t, []string{"ES0021000000000001AB"}, props[0].SupplyCodes)

			accounts, err := repo.ListAccounts(ctx)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, "acc-1", accounts[0].ID)
		})
	}
}

func TestLedger(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := NewLedger(s, nil)

			expID, err := ledger.CreateExpense(ctx, entity.Expense{
				Scope:       entity.ScopeProperty,
				PropertyID:  "prop-1",
				Total:       decimal.RequireFromString("1000"),
				Subtype:     constants.SubtypeHomeReform,
				FiscalSplit: map[constants.FiscalCategory]decimal.Decimal{constants.FiscalImprovement: decimal.RequireFromString("1000")},
				DocumentID:  "doc-1",
			})
			require.NoError(t, err)
			assert.NotEmpty(t, expID)

			_, err = ledger.CreateMovement(ctx, entity.Movement{Amount: decimal.RequireFromString("-3.50"), DedupeKey: "k1", BatchID: "b1"})
			require.NoError(t, err)
			_, err = ledger.CreateMovement(ctx, entity.Movement{Amount: decimal.RequireFromString("-60")})
			require.NoError(t, err)

			exists, err := ledger.MovementExists(ctx, "k1")
			require.NoError(t, err)
			assert.True(t, exists)
			exists, err = ledger.MovementExists(ctx, "k2")
			require.NoError(t, err)
			assert.False(t, exists)
			exists, err = ledger.MovementExists(ctx, "")
			require.NoError(t, err)
			assert.False(t, exists)

			byBatch, err := ledger.ListMovementsByBatch(ctx, "b1")
			require.NoError(t, err)
			require.Len(t, byBatch, 1)
			assert.True(t, byBatch[0].Amount.Equal(decimal.RequireFromString("-3.50")))

			expenses, err := ledger.ListExpenses(ctx)
			require.NoError(t, err)
			require.Len(t, expenses, 1)
			assert.True(t, expenses[0].FiscalSplit[constants.FiscalImprovement].Equal(decimal.RequireFromString("1000")))

			_, err = ledger.FindImportBatch(ctx, "hash-1")
			assert.ErrorIs(t, err, common.ErrNotFound)

			batchID, err := ledger.CreateImportBatch(ctx, entity.ImportBatch{ContentHash: "hash-1", Filename: "extracto.csv", Counts: entity.RowCounts{Total: 3, Imported: 3}})
			require.NoError(t, err)

			found, err := ledger.FindImportBatch(ctx, "hash-1")
			require.NoError(t, err)
			assert.Equal(t, batchID, found.ID)
			assert.Equal(t, 3, found.Counts.Imported)

			batches, err := ledger.ListImportBatches(ctx)
			require.NoError(t, err)
			assert.Len(t, batches, 1)
		})
	}
}
