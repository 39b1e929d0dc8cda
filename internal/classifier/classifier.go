// Package classifier assigns a subtype to intake documents using
// deterministic keyword rules. Same inputs always produce the same output.
package classifier

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/matcher"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

const (
	baseConfidence    = 0.5
	confidencePerHit  = 0.1
	maxConfidence     = 0.95
	tabularConfidence = 0.95
	otherConfidence   = 0.3

	// a specific subtype needs this many hits to beat generic-invoice
	minSpecificHits = 2
	declaredBonus   = 2
	supplyCodeBonus = 2
)

// Input is everything the classifier looks at. Text, SupplierName and
// LineItems are empty on the first, metadata-only pass.
type Input struct {
	Filename     string
	MimeType     string
	DeclaredType constants.DocType
	Text         string
	SupplierName string
	LineItems    []string
}

// FromDocument builds an Input from a document and its current OCR record.
func FromDocument(doc *entity.IntakeDocument) Input {
	in := Input{
		Filename:     doc.Filename,
		MimeType:     doc.MimeType,
		DeclaredType: doc.DeclaredType,
		Text:         doc.OCR.Text,
		SupplierName: doc.OCR.Fields.SupplierName,
	}
	for _, li := range doc.OCR.Fields.LineItems {
		in.LineItems = append(in.LineItems, li.Description)
	}
	return in
}

// IsTabular reports whether a file goes through the statement parser.
func IsTabular(filename, mime string) bool {
	if _, ok := constants.TabularExtensions[constants.NormalizeExt(filepath.Ext(filename))]; ok {
		return true
	}
	return constants.IsTabularMIME(mime)
}

// Classify returns the classification for in.
func Classify(in Input) entity.Classification {
	if IsTabular(in.Filename, in.MimeType) {
		return entity.Classification{
			DocType:    constants.DocTypeBankStatement,
			Subtype:    constants.SubtypeBankStatement,
			Confidence: tabularConfidence,
			Keywords:   []string{"tabular"},
		}
	}

	corpus := foldCorpus(in)
	scores := make(map[constants.Subtype]int)
	matched := make(map[constants.Subtype][]string)

	for _, r := range specificRules {
		hits := matchKeywords(corpus, r.keywords)
		scores[r.subtype] = len(hits)
		matched[r.subtype] = hits
	}
	if code := matcher.ExtractSupplyCode(in.Text, in.Filename); code != "" {
		scores[constants.SubtypeUtilitySupply] += supplyCodeBonus
		matched[constants.SubtypeUtilitySupply] = append(matched[constants.SubtypeUtilitySupply], "supply-code")
	}
	if in.DeclaredType == constants.DocTypeSEPAReceipt {
		scores[constants.SubtypePlainReceipt] += declaredBonus
		matched[constants.SubtypePlainReceipt] = append(matched[constants.SubtypePlainReceipt], "declared:sepa_receipt")
	}

	generic := matchKeywords(corpus, genericInvoiceKeywords)
	if in.DeclaredType == constants.DocTypeInvoice {
		generic = append(generic, "declared:invoice")
	}

	stmt := matchKeywords(corpus, statementKeywords)
	if in.DeclaredType == constants.DocTypeBankStatement && len(stmt) > 0 {
		return build(constants.SubtypeBankStatement, len(stmt)+declaredBonus, stmt)
	}

	best, bestHits := bestSpecific(scores)
	switch {
	case bestHits >= minSpecificHits:
		return build(best, bestHits, matched[best])
	case len(generic) > 0:
		return build(constants.SubtypeGenericInvoice, len(generic), generic)
	case bestHits > 0:
		return build(best, bestHits, matched[best])
	case len(stmt) >= minSpecificHits:
		return build(constants.SubtypeBankStatement, len(stmt), stmt)
	}

	docType := in.DeclaredType
	if docType == "" {
		docType = constants.DocTypeUnknown
	}
	return entity.Classification{
		DocType:    docType,
		Subtype:    constants.SubtypeOther,
		Confidence: otherConfidence,
	}
}

// bestSpecific picks the highest score; ties go to the earlier subtype in
// constants.Subtypes order.
func bestSpecific(scores map[constants.Subtype]int) (constants.Subtype, int) {
	best, bestHits := constants.SubtypeOther, 0
	for _, st := range constants.Subtypes() {
		if h, ok := scores[st]; ok && h > bestHits {
			best, bestHits = st, h
		}
	}
	return best, bestHits
}

func build(st constants.Subtype, hits int, keywords []string) entity.Classification {
	conf := baseConfidence + confidencePerHit*float64(hits)
	if conf > maxConfidence {
		conf = maxConfidence
	}
	kw := append([]string(nil), keywords...)
	sort.Strings(kw)
	return entity.Classification{
		DocType:    docTypeFor(st),
		Subtype:    st,
		Confidence: conf,
		Keywords:   kw,
	}
}

func docTypeFor(st constants.Subtype) constants.DocType {
	switch st {
	case constants.SubtypePlainReceipt:
		return constants.DocTypeSEPAReceipt
	case constants.SubtypeBankStatement:
		return constants.DocTypeBankStatement
	case constants.SubtypeOther:
		return constants.DocTypeUnknown
	default:
		return constants.DocTypeInvoice
	}
}

func foldCorpus(in Input) string {
	parts := []string{
		strings.TrimSuffix(in.Filename, filepath.Ext(in.Filename)),
		in.SupplierName,
		in.Text,
	}
	parts = append(parts, in.LineItems...)
	return utils.FoldText(strings.Join(parts, " "))
}

func matchKeywords(corpus string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if utils.ContainsWord(corpus, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}
