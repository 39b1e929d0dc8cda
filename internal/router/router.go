// Package router decides where a classified document ends up: an expense,
// a treasury movement, an import batch or the review queue.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

// Ledger creates ledger entries and returns their ids.
type Ledger interface {
	CreateExpense(ctx context.Context, e entity.Expense) (string, error)
	CreateMovement(ctx context.Context, m entity.Movement) (string, error)
}

// BatchStore persists import batch audit records and answers movement
// dedupe lookups. FindImportBatch returns an error wrapping
// common.ErrNotFound when no batch has the content hash.
type BatchStore interface {
	FindImportBatch(ctx context.Context, contentHash string) (*entity.ImportBatch, error)
	CreateImportBatch(ctx context.Context, b entity.ImportBatch) (string, error)
	MovementExists(ctx context.Context, dedupeKey string) (bool, error)
}

// Action is what the router decided.
type Action string

const (
	ActionCommit Action = "commit"
	ActionReview Action = "review"
)

// Decision is the router outcome. Destination is set iff Action is commit.
type Decision struct {
	Action      Action
	Destination *entity.DestinationRef
	Reason      string
	Batch       *entity.ImportBatch
	// Reused is true when a statement with the same content was imported before.
	Reused bool
}

// Committed reports whether a ledger entry exists for the decision.
func (d Decision) Committed() bool {
	return d.Action == ActionCommit && d.Destination != nil
}

func review(reason string) Decision {
	return Decision{Action: ActionReview, Reason: reason}
}

// Input is the routed view of a document.
type Input struct {
	DocumentID     string
	Filename       string
	Classification entity.Classification
	Fields         entity.ExtractedFields
	Match          entity.MatchResult
}

// InputFromDocument collects the routing input from a document.
func InputFromDocument(doc *entity.IntakeDocument) Input {
	in := Input{
		DocumentID:     doc.ID,
		Filename:       doc.Filename,
		Classification: doc.Classification,
		Fields:         doc.OCR.Fields,
		Match:          entity.NoMatch(),
	}
	if doc.Match != nil {
		in.Match = *doc.Match
	}
	return in
}

const defaultCurrency = "EUR"

// Review reasons.
const (
	ReasonFiscalSplit   = "home-reform requires a manual fiscal split"
	ReasonDestination   = "select a destination for this invoice"
	ReasonUnrecognized  = "unrecognized document, select a destination"
	ReasonNotTabular    = "bank statement is not a csv or xlsx file"
	ReasonMissingTotal  = "no positive total to book"
	ReasonColumnMapping = "statement columns need a manual mapping"
)

type Router struct {
	logger  *slog.Logger
	ledger  Ledger
	batches BatchStore
	now     func() time.Time
}

func New(logger *slog.Logger, ledger Ledger, batches BatchStore) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, ledger: ledger, batches: batches, now: time.Now}
}

// WithClock overrides the clock used for CreatedAt stamps.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Route sends an OCR'd document to its destination. Ledger failures are
// returned as errors; everything else is a Decision.
func (r *Router) Route(ctx context.Context, in Input) (Decision, error) {
	switch in.Classification.Subtype {
	case constants.SubtypeUtilitySupply:
		return r.routeUtility(ctx, in)
	case constants.SubtypePlainReceipt:
		return r.routeReceipt(ctx, in)
	case constants.SubtypeHomeReform:
		return review(ReasonFiscalSplit), nil
	case constants.SubtypeGenericInvoice:
		return review(ReasonDestination), nil
	case constants.SubtypeBankStatement:
		return review(ReasonNotTabular), nil
	default:
		return review(ReasonUnrecognized), nil
	}
}

func (r *Router) routeUtility(ctx context.Context, in Input) (Decision, error) {
	if !in.Fields.HasTotal() {
		return review(ReasonMissingTotal), nil
	}
	exp := r.expenseFrom(in)
	if in.Match.Matched() && in.Match.EntityKind == "property" {
		exp.Scope = entity.ScopeProperty
		exp.PropertyID = in.Match.EntityID
	}
	return r.commitExpense(ctx, exp)
}

func (r *Router) routeReceipt(ctx context.Context, in Input) (Decision, error) {
	if !in.Fields.HasTotal() {
		return review(ReasonMissingTotal), nil
	}
	mv := r.movementFrom(in, in.Fields.TotalAmount.Decimal.Neg())
	if in.Match.Matched() && in.Match.EntityKind == "account" {
		mv.AccountID = in.Match.EntityID
	}
	return r.commitMovement(ctx, mv)
}

func (r *Router) expenseFrom(in Input) entity.Expense {
	f := in.Fields
	return entity.Expense{
		Scope:         entity.ScopePersonal,
		SupplierName:  f.SupplierName,
		SupplierTaxID: f.SupplierTaxID,
		IssueDate:     utils.CanonicalDate(f.IssueDate),
		DueDate:       utils.CanonicalDate(f.DueDate),
		Total:         f.TotalAmount.Decimal.Round(2),
		Currency:      currency(f.Currency),
		Subtype:       in.Classification.Subtype,
		DocumentID:    in.DocumentID,
		CreatedAt:     r.now().UTC(),
	}
}

func (r *Router) movementFrom(in Input, amount decimal.Decimal) entity.Movement {
	f := in.Fields
	date := utils.CanonicalDate(f.IssueDate)
	if date == "" {
		date = utils.CanonicalDate(f.DueDate)
	}
	desc := strings.TrimSpace(f.SupplierName)
	if f.SEPA != nil && f.SEPA.MandateReference != "" {
		desc = strings.TrimSpace(desc + " " + f.SEPA.MandateReference)
	}
	if desc == "" {
		desc = in.Filename
	}
	amount = amount.Round(2)
	return entity.Movement{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Direction:   entity.DirectionOf(amount),
		Currency:    currency(f.Currency),
		DocumentID:  in.DocumentID,
		CreatedAt:   r.now().UTC(),
	}
}

func (r *Router) commitExpense(ctx context.Context, exp entity.Expense) (Decision, error) {
	id, err := r.ledger.CreateExpense(ctx, exp)
	if err != nil {
		return Decision{}, fmt.Errorf("create expense: %w", err)
	}
	r.logger.Info("router.expense.created", "expense_id", id, "doc_id", exp.DocumentID, "scope", exp.Scope)
	return Decision{
		Action: ActionCommit,
		Destination: &entity.DestinationRef{
			Kind: entity.DestinationExpense,
			ID:   id,
			Path: expensePath(exp, id),
		},
	}, nil
}

func (r *Router) commitMovement(ctx context.Context, mv entity.Movement) (Decision, error) {
	id, err := r.ledger.CreateMovement(ctx, mv)
	if err != nil {
		return Decision{}, fmt.Errorf("create movement: %w", err)
	}
	r.logger.Info("router.movement.created", "movement_id", id, "doc_id", mv.DocumentID, "amount", mv.Amount.String())
	return Decision{
		Action: ActionCommit,
		Destination: &entity.DestinationRef{
			Kind: entity.DestinationMovement,
			ID:   id,
			Path: movementPath(mv, id),
		},
	}, nil
}

func expensePath(e entity.Expense, id string) string {
	year := yearOf(e.IssueDate)
	if e.Scope == entity.ScopeProperty {
		return path.Join("expenses", "property", e.PropertyID, year, id)
	}
	return path.Join("expenses", "personal", year, id)
}

func movementPath(m entity.Movement, id string) string {
	account := m.AccountID
	if account == "" {
		account = "unassigned"
	}
	return path.Join("treasury", account, yearOf(m.Date), id)
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return "undated"
}

func currency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return defaultCurrency
	}
	return c
}
