package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/repository"
)

const (
	SheetExpenses  = "Expenses"
	SheetMovements = "Movements"
	SheetReview    = "Review"
)

// DocumentLister lists intake documents by state. *intake.Service satisfies it.
type DocumentLister interface {
	List(ctx context.Context, states ...constants.DocumentState) []*entity.IntakeDocument
}

// Service is a tiny façade over the ledger that produces XLSX bytes for exports.
type Service struct {
	ledger    repository.Ledger
	documents DocumentLister
	logger    *slog.Logger
}

func NewService(ledger repository.Ledger, documents DocumentLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, documents: documents, logger: logger}
}

// ExportXLSX returns a workbook with expenses, movements and the review queue.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything, including undated rows.
func (s *Service) ExportXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	window := newWindow(from, to, start)

	expenses, err := s.ledger.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	movements, err := s.ledger.ListMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	var review []*entity.IntakeDocument
	if s.documents != nil {
		review = s.documents.List(ctx, constants.StateNeedsReview)
	}

	expenses = filter(expenses, func(e entity.Expense) string { return e.IssueDate }, window)
	movements = filter(movements, func(m entity.Movement) string { return m.Date }, window)
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].IssueDate < expenses[j].IssueDate })
	sort.SliceStable(movements, func(i, j int) bool { return movements[i].Date < movements[j].Date })

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_failed", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetExpenses); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetMovements, SheetReview} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	writeExpenses(f, expenses)
	writeMovements(f, movements)
	writeReview(f, review)

	activeIndex, _ := f.GetSheetIndex(SheetExpenses)
	f.SetActiveSheet(activeIndex)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"expenses", len(expenses),
		"movements", len(movements),
		"review", len(review),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeExpenses(f *excelize.File, rows []entity.Expense) {
	sw := newSheetWriter(f, SheetExpenses, []string{
		"Issue Date", "Scope", "Property", "Supplier", "Tax ID",
		"Subtype", "Total", "Currency", "Fiscal Split", "Document",
	})
	for _, e := range rows {
		sw.row(e.IssueDate, string(e.Scope), e.PropertyID, truncate(e.SupplierName, 80), e.SupplierTaxID,
			string(e.Subtype), e.Total.InexactFloat64(), e.Currency, fiscalSplit(e), e.DocumentID)
	}
	_ = f.SetColWidth(SheetExpenses, "A", "A", 12) // date
	_ = f.SetColWidth(SheetExpenses, "C", "D", 28) // property, supplier
	_ = f.SetColWidth(SheetExpenses, "I", "I", 40) // split
	_ = f.SetColWidth(SheetExpenses, "J", "J", 38) // document
}

func writeMovements(f *excelize.File, rows []entity.Movement) {
	sw := newSheetWriter(f, SheetMovements, []string{
		"Date", "Account", "Description", "Amount", "Direction",
		"Balance", "Currency", "Batch", "Document",
	})
	for _, m := range rows {
		var balance any
		if m.Balance.Valid {
			balance = m.Balance.Decimal.InexactFloat64()
		}
		sw.row(m.Date, m.AccountID, truncate(m.Description, 140), m.Amount.InexactFloat64(), string(m.Direction),
			balance, m.Currency, m.BatchID, m.DocumentID)
	}
	_ = f.SetColWidth(SheetMovements, "A", "A", 12) // date
	_ = f.SetColWidth(SheetMovements, "C", "C", 48) // description
	_ = f.SetColWidth(SheetMovements, "H", "I", 38) // ids
}

func writeReview(f *excelize.File, docs []*entity.IntakeDocument) {
	sw := newSheetWriter(f, SheetReview, []string{
		"Document", "Filename", "Declared Type", "Subtype", "Reason", "Updated",
	})
	for _, d := range docs {
		sw.row(d.ID, d.Filename, string(d.DeclaredType), string(d.Classification.Subtype),
			truncate(d.ReviewReason, 140), d.UpdatedAt.UTC().Format(time.RFC3339))
	}
	_ = f.SetColWidth(SheetReview, "A", "A", 38) // document
	_ = f.SetColWidth(SheetReview, "B", "B", 28) // filename
	_ = f.SetColWidth(SheetReview, "E", "E", 60) // reason
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int
}

func newSheetWriter(f *excelize.File, sheet string, headers []string) *sheetWriter {
	sw := &sheetWriter{f: f, sheet: sheet, next: 1}
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	sw.row(values...)
	return sw
}

func (w *sheetWriter) row(values ...any) {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, w.next)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
	w.next++
}

func fiscalSplit(e entity.Expense) string {
	if len(e.FiscalSplit) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.FiscalSplit))
	for cat, amount := range e.FiscalSplit {
		parts = append(parts, string(cat)+"="+amount.StringFixed(2))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// window is an inclusive date range over canonical YYYY-MM-DD strings.
type window struct {
	from, to string
}

func newWindow(from, to *time.Time, now time.Time) window {
	var w window
	if from != nil {
		w.from = from.UTC().Format(time.DateOnly)
		if to == nil {
			w.to = now.UTC().Format(time.DateOnly)
		}
	}
	if to != nil {
		w.to = to.UTC().Format(time.DateOnly)
	}
	return w
}

func (w window) open() bool {
	return w.from == "" && w.to == ""
}

func (w window) contains(date string) bool {
	if w.open() {
		return true
	}
	if date == "" {
		return false
	}
	return (w.from == "" || date >= w.from) && (w.to == "" || date <= w.to)
}

func filter[T any](rows []T, date func(T) string, w window) []T {
	if w.open() {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if w.contains(date(r)) {
			out = append(out, r)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
