package statement

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

var (
	reIBANCandidate = regexp.MustCompile(`[A-Z]{2}[0-9]{2}(?:[ -]?[A-Z0-9]{4}){2,7}(?:[ -]?[A-Z0-9]{1,4})?`)
	// Spanish CCC: bank, branch, control digits, account.
	reCCC = regexp.MustCompile(`\b[0-9]{4}[ -]?[0-9]{4}[ -]?[0-9]{2}[ -]?[0-9]{10}\b`)
)

// IBAN lengths for the countries statements usually come from.
var ibanLengths = map[string]int{
	"ES": 24, "PT": 25, "FR": 27, "DE": 22, "IT": 27, "GB": 22,
	"NL": 18, "BE": 16, "AD": 24, "IE": 22, "LU": 20, "CH": 21,
}

// Spanish bank codes (IBAN positions 5-8, CCC positions 1-4).
var bankCodes = map[string]string{
	"0049": "Banco Santander",
	"0073": "Openbank",
	"0075": "Banco Popular",
	"0081": "Banco Sabadell",
	"0128": "Bankinter",
	"0182": "BBVA",
	"1465": "ING",
	"2038": "Bankia",
	"2085": "Ibercaja",
	"2095": "Kutxabank",
	"2100": "CaixaBank",
	"3058": "Cajamar",
}

// detectAccount searches the filename and the first rows independently.
// When only an IBAN is found the account number is its BBAN.
func detectAccount(filename string, rows [][]string, scan int) (iban, account string) {
	texts := []string{filename}
	for i := 0; i < len(rows) && i < scan; i++ {
		texts = append(texts, strings.Join(rows[i], " "))
	}

	for _, t := range texts {
		up := strings.ToUpper(t)
		if iban == "" {
			iban = findIBAN(up)
		}
		if account == "" {
			if m := reCCC.FindString(up); m != "" {
				account = utils.LastDigits(m, 20)
			}
		}
	}
	if iban != "" && account == "" {
		account = utils.AccountFromIBAN(iban)
	}
	return iban, account
}

func findIBAN(upper string) string {
	for _, cand := range reIBANCandidate.FindAllString(upper, -1) {
		norm := utils.NormalizeIBAN(cand)
		if n, ok := ibanLengths[norm[:2]]; ok {
			if len(norm) >= n && utils.ValidIBAN(norm[:n]) {
				return norm[:n]
			}
			continue
		}
		if utils.ValidIBAN(norm) {
			return norm
		}
	}
	return ""
}

// bankName resolves the issuing bank from an IBAN or Spanish account number.
func bankName(iban, account string) string {
	code := ""
	switch {
	case strings.HasPrefix(iban, "ES") && len(iban) >= 8:
		code = iban[4:8]
	case len(account) == 20:
		code = account[:4]
	}
	return bankCodes[code]
}
