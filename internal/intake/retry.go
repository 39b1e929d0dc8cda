package intake

import "github.com/joseph-ayodele/finance-intake/internal/ocr"

// DefaultMaxRetries is how many times a failed OCR call is retried before
// the document is marked ocr_failed. Timeouts and permanent failures are
// never retried.
const DefaultMaxRetries = 3

// ShouldRetry decides whether the OCR call numbered attempt (1-based) that
// failed with err gets another try under the default budget.
func ShouldRetry(err error, attempt int) bool {
	return shouldRetry(err, attempt, DefaultMaxRetries)
}

func shouldRetry(err error, attempt, maxRetries int) bool {
	if !ocr.IsTransient(err) {
		return false
	}
	return attempt <= maxRetries
}
