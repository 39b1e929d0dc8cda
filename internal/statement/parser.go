// Package statement parses bank statement exports (CSV-like text and xlsx)
// into normalized transactions, detecting encoding, separator, header row
// and column roles on its own.
package statement

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

// Status of a parse.
type Status string

const (
	StatusParsed          Status = "parsed"
	StatusRequiresMapping Status = "requires_mapping"
)

// Formats reported on results.
const (
	FormatDelimited = "csv"
	FormatXLSX      = "xlsx"
)

// Result is the structured outcome of parsing one statement file.
type Result struct {
	Status        Status                `json:"status"`
	Reason        string                `json:"reason,omitempty"`
	Format        string                `json:"format"`
	Encoding      string                `json:"encoding,omitempty"`
	Separator     string                `json:"separator,omitempty"`
	Columns       int                   `json:"columns"`
	Header        []string              `json:"header,omitempty"`
	Mapping       entity.ColumnMapping  `json:"mapping"`
	Suggested     *entity.ColumnMapping `json:"suggested,omitempty"`
	IBAN          string                `json:"iban,omitempty"`
	AccountNumber string                `json:"account_number,omitempty"`
	Bank          string                `json:"bank,omitempty"`
	Transactions  []entity.Transaction  `json:"transactions,omitempty"`
	Counts        entity.RowCounts      `json:"counts"`
	DateFrom      string                `json:"date_from,omitempty"`
	DateTo        string                `json:"date_to,omitempty"`
}

// RequiresMapping is true when the caller must supply a column mapping.
func (r *Result) RequiresMapping() bool {
	return r.Status == StatusRequiresMapping
}

// Config bounds how much of a file the detectors look at.
type Config struct {
	SniffLines      int
	HeaderScanRows  int
	SampleRows      int
	AccountScanRows int
}

// DefaultConfig returns the standard detector windows.
func DefaultConfig() Config {
	return Config{SniffLines: 10, HeaderScanRows: 10, SampleRows: 20, AccountScanRows: 20}
}

// Parser turns statement bytes into transactions.
type Parser struct {
	cfg    Config
	logger *slog.Logger
}

func NewParser(cfg Config, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SniffLines <= 0 {
		cfg.SniffLines = def.SniffLines
	}
	if cfg.HeaderScanRows <= 0 {
		cfg.HeaderScanRows = def.HeaderScanRows
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = def.SampleRows
	}
	if cfg.AccountScanRows <= 0 {
		cfg.AccountScanRows = def.AccountScanRows
	}
	return &Parser{cfg: cfg, logger: logger}
}

// Parse detects everything from the bytes. Unmappable input is reported as
// a requires_mapping result; err is only set for unreadable xlsx containers.
func (p *Parser) Parse(filename string, content []byte) (*Result, error) {
	return p.parse(filename, content, nil)
}

// ParseWithMapping skips role detection and uses the given mapping.
func (p *Parser) ParseWithMapping(filename string, content []byte, mapping entity.ColumnMapping) (*Result, error) {
	return p.parse(filename, content, &mapping)
}

func (p *Parser) parse(filename string, content []byte, manual *entity.ColumnMapping) (*Result, error) {
	res := &Result{Mapping: entity.EmptyMapping()}

	rows, spreadsheet, err := p.readRows(filename, content, res)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusRequiresMapping {
		return res, nil
	}

	for _, r := range rows {
		if len(r) > res.Columns {
			res.Columns = len(r)
		}
	}
	res.IBAN, res.AccountNumber = detectAccount(filepath.Base(filename), rows, p.cfg.AccountScanRows)
	res.Bank = bankName(res.IBAN, res.AccountNumber)

	var mapping entity.ColumnMapping
	if manual != nil {
		mapping = *manual
		if !mapping.Complete() {
			return p.requireMapping(res, mapping.HeaderRow, "supplied mapping lacks date, description or amount"), nil
		}
	} else {
		headerRow := detectHeader(rows, p.cfg.HeaderScanRows)
		if headerRow >= 0 {
			mapping = mapByKeywords(rows[headerRow], headerRow)
		} else {
			mapping = entity.EmptyMapping()
		}
		if !mapping.Complete() {
			fillByHeuristics(&mapping, sampleRows(rows, headerRow+1, p.cfg.SampleRows), res.Columns, spreadsheet)
		}
		if !mapping.Complete() {
			return p.requireMapping(res, headerRow, "could not resolve date, description and amount columns"), nil
		}
	}
	res.Mapping = mapping
	if mapping.HeaderRow >= 0 && mapping.HeaderRow < len(rows) {
		res.Header = rows[mapping.HeaderRow]
	}

	p.parseRows(rows, mapping, spreadsheet, res)
	res.Status = StatusParsed

	p.logger.Info("statement.parse.ok",
		"filename", filename,
		"format", res.Format,
		"encoding", res.Encoding,
		"separator", res.Separator,
		"rows", res.Counts.Total,
		"transactions", len(res.Transactions),
		"errored", res.Counts.Errored,
		"skipped", res.Counts.Skipped,
		"bank", res.Bank,
	)
	return res, nil
}

func (p *Parser) requireMapping(res *Result, headerRow int, reason string) *Result {
	res.Status = StatusRequiresMapping
	res.Reason = reason
	s := suggestedMapping(headerRow)
	res.Suggested = &s
	p.logger.Warn("statement.parse.requires_mapping", "reason", reason, "format", res.Format)
	return res
}

// readRows loads raw rows from xlsx or delimited text.
func (p *Parser) readRows(filename string, content []byte, res *Result) ([][]string, bool, error) {
	if isXLSX(filename, content) {
		res.Format = FormatXLSX
		rows, err := readXLSX(content)
		if err != nil {
			p.logger.Error("statement.xlsx.open_failed", "filename", filename, "error", err)
			return nil, true, fmt.Errorf("read xlsx: %w", err)
		}
		if len(rows) == 0 {
			p.requireMapping(res, -1, "spreadsheet has no rows")
		}
		return rows, true, nil
	}

	res.Format = FormatDelimited
	text, enc := decodeText(content)
	res.Encoding = enc
	sep, _, ok := detectSeparator(text, p.cfg.SniffLines)
	if !ok {
		p.requireMapping(res, -1, "no separator yields at least three columns")
		return nil, false, nil
	}
	res.Separator = separatorName(sep)
	return readRecords(text, sep), false, nil
}

func isXLSX(filename string, content []byte) bool {
	if bytes.HasPrefix(content, []byte("PK\x03\x04")) {
		return true
	}
	return constants.NormalizeExt(filepath.Ext(filename)) == "xlsx"
}

// readXLSX returns the raw cell values of the first sheet that has data.
func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

func sampleRows(rows [][]string, from, n int) [][]string {
	if from < 0 {
		from = 0
	}
	var out [][]string
	for i := from; i < len(rows) && len(out) < n; i++ {
		if !blankRow(rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}

func (p *Parser) parseRows(rows [][]string, m entity.ColumnMapping, spreadsheet bool, res *Result) {
	start := m.HeaderRow + 1
	if start < 0 {
		start = 0
	}
	if start > len(rows) {
		start = len(rows)
	}
	data := rows[start:]
	amountFormat := detectNumberFormat(amountSamples(data, m))

	for i, row := range data {
		if blankRow(row) {
			continue
		}
		res.Counts.Total++
		if isHeaderRepeat(row, res.Header) || isSummaryRow(row, m, spreadsheet) {
			res.Counts.Skipped++
			continue
		}

		tx, ok := parseRow(row, m, spreadsheet, amountFormat)
		if !ok {
			res.Counts.Errored++
			continue
		}
		tx.Row = m.HeaderRow + 2 + i
		res.Transactions = append(res.Transactions, tx)

		if res.DateFrom == "" || tx.Date < res.DateFrom {
			res.DateFrom = tx.Date
		}
		if tx.Date > res.DateTo {
			res.DateTo = tx.Date
		}
	}
}

func parseRow(row []string, m entity.ColumnMapping, spreadsheet bool, format utils.NumberFormat) (entity.Transaction, bool) {
	var tx entity.Transaction

	tx.Date = parseDateCell(cell(row, m.Date), spreadsheet)
	tx.Description = strings.Join(strings.Fields(cell(row, m.Description)), " ")
	if tx.Date == "" || tx.Description == "" {
		return tx, false
	}

	if m.Amount >= 0 {
		amt, err := utils.ParseAmountFormat(cell(row, m.Amount), format)
		if err != nil {
			return tx, false
		}
		tx.Amount = amt
	} else {
		credit, errC := utils.ParseAmountFormat(cell(row, m.Credit), format)
		debit, errD := utils.ParseAmountFormat(cell(row, m.Debit), format)
		if errC != nil && errD != nil {
			return tx, false
		}
		tx.Amount = credit.Abs().Sub(debit.Abs())
	}
	tx.Direction = entity.DirectionOf(tx.Amount)

	if m.Balance >= 0 {
		if bal, err := utils.ParseAmountFormat(cell(row, m.Balance), format); err == nil {
			tx.Balance.Decimal = bal
			tx.Balance.Valid = true
		}
	}
	return tx, true
}

func amountSamples(rows [][]string, m entity.ColumnMapping) []string {
	var out []string
	for _, col := range []int{m.Amount, m.Credit, m.Debit, m.Balance} {
		if col < 0 {
			continue
		}
		for _, row := range rows {
			if v := strings.TrimSpace(cell(row, col)); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isHeaderRepeat(row, header []string) bool {
	if len(header) > 0 && len(row) == len(header) {
		same := true
		for i := range row {
			if utils.FoldText(row[i]) != utils.FoldText(header[i]) {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return vocabHits(row) >= minColumns
}

var summaryPrefixes = []string{"total", "subtotal", "suma", "saldo inicial", "saldo final", "saldo anterior"}

// isSummaryRow reports totals and balance lines. A row with a valid date is
// a transaction whatever its description says.
func isSummaryRow(row []string, m entity.ColumnMapping, spreadsheet bool) bool {
	if parseDateCell(cell(row, m.Date), spreadsheet) != "" {
		return false
	}
	for _, c := range row {
		folded := utils.FoldText(c)
		for _, p := range summaryPrefixes {
			if folded == p || strings.HasPrefix(folded, p+" ") {
				return true
			}
		}
	}
	return false
}
