package statement

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Candidate separators in tie-break order.
var separators = []rune{';', ',', '\t', '|'}

const minColumns = 3

// detectSeparator scores each candidate by the average column count over
// the first lines and keeps the best one with at least three columns.
// Ties keep the earlier candidate, so ';' wins over ','.
func detectSeparator(text string, lines int) (rune, float64, bool) {
	sample := firstLines(text, lines)
	if sample == "" {
		return 0, 0, false
	}

	var best rune
	bestAvg := 0.0
	for _, sep := range separators {
		records := readRecords(sample, sep)
		if len(records) == 0 {
			continue
		}
		cols := 0
		for _, rec := range records {
			cols += len(rec)
		}
		avg := float64(cols) / float64(len(records))
		if avg >= minColumns && avg > bestAvg {
			best, bestAvg = sep, avg
		}
	}
	return best, bestAvg, bestAvg > 0
}

// readRecords splits delimited text, tolerating ragged rows and stray quotes.
func readRecords(text string, sep rune) [][]string {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			break
		}
		out = append(out, rec)
	}
	return out
}

func firstLines(text string, n int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == n {
			break
		}
	}
	return strings.Join(kept, "\n")
}

func separatorName(sep rune) string {
	switch sep {
	case '\t':
		return "tab"
	case 0:
		return ""
	default:
		return string(sep)
	}
}
