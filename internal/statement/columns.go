package statement

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

type role int

const (
	roleNone role = iota
	roleDate
	roleDescription
	roleAmount
	roleBalance
	roleCredit
	roleDebit
)

// Header vocabulary (es/en/pt/ca), already folded. Order matters for
// containment: "fecha valor" must resolve to date before "valor" does.
var headerVocab = []struct {
	role  role
	terms []string
}{
	{roleDate, []string{"fecha", "fecha operacion", "fecha valor", "f valor", "f operacion", "date", "booking date", "value date", "transaction date", "data", "data valor", "data operacao", "data moviment"}},
	{roleBalance, []string{"saldo", "balance", "saldo disponible", "running balance", "saldo contable"}},
	{roleCredit, []string{"haber", "abono", "abonos", "ingreso", "ingresos", "credit", "credito", "entrada", "entradas"}},
	{roleDebit, []string{"debe", "cargo", "cargos", "gasto", "gastos", "debit", "debito", "salida", "salidas"}},
	{roleAmount, []string{"importe", "cantidad", "amount", "monto", "valor", "import", "montante", "importe eur"}},
	{roleDescription, []string{"concepto", "descripcion", "detalle", "movimiento", "description", "concept", "details", "narrative", "descricao", "concepte", "descripcio", "observaciones", "beneficiario", "payee"}},
}

// cellRole maps a header cell to a role: exact term first, then word containment.
func cellRole(cell string) role {
	folded := utils.FoldText(cell)
	if folded == "" {
		return roleNone
	}
	for _, v := range headerVocab {
		for _, term := range v.terms {
			if folded == term {
				return v.role
			}
		}
	}
	for _, v := range headerVocab {
		for _, term := range v.terms {
			if utils.ContainsWord(folded, term) {
				return v.role
			}
		}
	}
	return roleNone
}

func vocabHits(row []string) int {
	n := 0
	for _, cell := range row {
		if cellRole(cell) != roleNone {
			n++
		}
	}
	return n
}

// detectHeader returns the index of the row among the first scan rows with
// the most vocabulary cells, or -1 when no row reaches three.
func detectHeader(rows [][]string, scan int) int {
	best, bestHits := -1, 0
	for i := 0; i < len(rows) && i < scan; i++ {
		if hits := vocabHits(rows[i]); hits >= minColumns && hits > bestHits {
			best, bestHits = i, hits
		}
	}
	return best
}

// mapByKeywords assigns roles from header cells; the first column wins a role.
func mapByKeywords(header []string, headerRow int) entity.ColumnMapping {
	m := entity.EmptyMapping()
	m.HeaderRow = headerRow
	for i, cell := range header {
		switch cellRole(cell) {
		case roleDate:
			setOnce(&m.Date, i)
		case roleDescription:
			setOnce(&m.Description, i)
		case roleAmount:
			setOnce(&m.Amount, i)
		case roleBalance:
			setOnce(&m.Balance, i)
		case roleCredit:
			setOnce(&m.Credit, i)
		case roleDebit:
			setOnce(&m.Debit, i)
		}
	}
	return m
}

func setOnce(dst *int, i int) {
	if *dst < 0 {
		*dst = i
	}
}

var reAmount = regexp.MustCompile(`(?i)^\(?[-+−]?\s*[€$£]?\s*[0-9][0-9.,\s]*\s*(?:€|\$|£|eur)?\)?$`)

// Heuristic thresholds over sampled data rows.
const (
	dateLikeRatio   = 0.6
	amountLikeRatio = 0.8
	descriptionLen  = 10.0
)

type columnStats struct {
	values     int
	dates      int
	amounts    int
	totalChars int
}

func (s columnStats) dateLike() bool {
	return s.values > 0 && float64(s.dates)/float64(s.values) >= dateLikeRatio
}

func (s columnStats) amountLike() bool {
	return s.values > 0 && float64(s.amounts)/float64(s.values) >= amountLikeRatio
}

func (s columnStats) avgLen() float64 {
	if s.values == 0 {
		return 0
	}
	return float64(s.totalChars) / float64(s.values)
}

func sampleStats(sample [][]string, cols int, spreadsheet bool) []columnStats {
	stats := make([]columnStats, cols)
	for _, row := range sample {
		for c := 0; c < cols && c < len(row); c++ {
			v := strings.TrimSpace(row[c])
			if v == "" {
				continue
			}
			st := &stats[c]
			st.values++
			st.totalChars += len([]rune(v))
			if isDateValue(v, spreadsheet) {
				st.dates++
			}
			if reAmount.MatchString(v) {
				st.amounts++
			}
		}
	}
	return stats
}

// fillByHeuristics resolves the required roles keyword matching left open.
func fillByHeuristics(m *entity.ColumnMapping, sample [][]string, cols int, spreadsheet bool) {
	stats := sampleStats(sample, cols, spreadsheet)
	used := func(c int) bool {
		return c == m.Date || c == m.Description || c == m.Amount || c == m.Balance || c == m.Credit || c == m.Debit
	}

	if m.Date < 0 {
		for c, st := range stats {
			if !used(c) && st.dateLike() {
				m.Date = c
				break
			}
		}
	}
	if !m.HasAmount() {
		for c, st := range stats {
			if !used(c) && !st.dateLike() && st.amountLike() {
				m.Amount = c
				break
			}
		}
	}
	if m.Description < 0 {
		best, bestLen := -1, descriptionLen
		for c, st := range stats {
			if used(c) || st.dateLike() || st.amountLike() {
				continue
			}
			if l := st.avgLen(); l > bestLen {
				best, bestLen = c, l
			}
		}
		m.Description = best
	}
}

// suggestedMapping is the best-effort fallback: the first three columns.
func suggestedMapping(headerRow int) entity.ColumnMapping {
	m := entity.EmptyMapping()
	m.HeaderRow = headerRow
	m.Date, m.Description, m.Amount = 0, 1, 2
	return m
}

// Excel serial day numbers between 1970 and 2100.
const (
	minExcelSerial = 25569
	maxExcelSerial = 73051
)

func isDateValue(v string, spreadsheet bool) bool {
	if _, ok := utils.ParseDate(v); ok {
		return true
	}
	_, ok := excelSerialDate(v, spreadsheet)
	return ok
}

// parseDateCell canonicalizes a date cell, accepting Excel serials from xlsx.
func parseDateCell(v string, spreadsheet bool) string {
	if d := utils.CanonicalDate(v); d != "" {
		return d
	}
	if d, ok := excelSerialDate(v, spreadsheet); ok {
		return d
	}
	return ""
}

func excelSerialDate(v string, spreadsheet bool) (string, bool) {
	if !spreadsheet {
		return "", false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < minExcelSerial || f > maxExcelSerial || f != float64(int64(f)) {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// detectNumberFormat votes European vs US across amount samples.
func detectNumberFormat(samples []string) utils.NumberFormat {
	eu, us := 0, 0
	for _, raw := range samples {
		s := strings.TrimLeft(strings.TrimSpace(raw), "-+(")
		hasComma := strings.Contains(s, ",")
		hasDot := strings.Contains(s, ".")
		switch {
		case hasComma && hasDot:
			if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
				eu++
			} else {
				us++
			}
		case hasComma:
			if hasDecimalSuffix(s, ',') {
				eu++
			}
		case hasDot:
			if hasDecimalSuffix(s, '.') {
				us++
			}
		}
	}
	switch {
	case eu > us:
		return utils.FormatEuropean
	case us > eu:
		return utils.FormatUS
	default:
		return utils.FormatAuto
	}
}

func hasDecimalSuffix(s string, sep byte) bool {
	s = strings.TrimRight(s, " €$£EUReur)")
	i := strings.LastIndexByte(s, sep)
	if i < 0 {
		return false
	}
	digits := len(s) - i - 1
	return digits == 1 || digits == 2
}
