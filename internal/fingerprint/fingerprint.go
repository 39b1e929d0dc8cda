// Package fingerprint derives content and business-key hashes for intake
// documents so reprocessing and re-uploads collapse onto one record.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

// FileHash is the hex SHA-256 of the raw bytes.
func FileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Compute normalizes the business fields and hashes them together with the
// file hash. The same bytes and fields always yield the same result.
func Compute(content []byte, fields entity.ExtractedFields) entity.FingerprintResult {
	return ComputeWithFileHash(FileHash(content), fields)
}

// ComputeWithFileHash is Compute for callers that already hashed the bytes.
func ComputeWithFileHash(fileHash string, fields entity.ExtractedFields) entity.FingerprintResult {
	res := entity.FingerprintResult{
		FileHash:          fileHash,
		NormalizedTotal:   NormalizeAmount(fields),
		IssueDate:         utils.CanonicalDate(fields.IssueDate),
		SupplierTaxID:     NormalizeTaxID(fields.SupplierTaxID),
		SupplierNameLower: NormalizeName(fields.SupplierName),
	}

	key := strings.Join([]string{
		res.SupplierNameLower,
		res.SupplierTaxID,
		res.IssueDate,
		res.NormalizedTotal,
		res.FileHash,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	res.DocFingerprint = hex.EncodeToString(sum[:])
	return res
}

// NormalizeAmount renders the total with two fixed decimals, "" when absent.
func NormalizeAmount(fields entity.ExtractedFields) string {
	if !fields.TotalAmount.Valid {
		return ""
	}
	return utils.FormatFixed(fields.TotalAmount.Decimal)
}

// NormalizeName lower-cases, strips diacritics and collapses punctuation.
func NormalizeName(name string) string {
	return utils.FoldText(name)
}

// NormalizeTaxID upper-cases and drops every non-alphanumeric character.
func NormalizeTaxID(id string) string {
	return utils.AlnumUpper(id)
}
