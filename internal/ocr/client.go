package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/finance-intake/constants"
)

type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	// HTTPTimeout bounds a single HTTP exchange. The whole extraction is
	// bounded by the caller's context.
	HTTPTimeout time.Duration
}

// HTTPClient submits a job with POST {base}/jobs and polls
// GET {base}/jobs/{id} until it is done.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

type submitBody struct {
	DocumentID    string `json:"document_id,omitempty"`
	Filename      string `json:"filename"`
	MimeType      string `json:"mime_type"`
	DeclaredType  string `json:"declared_type"`
	ContentBase64 string `json:"content_base64"`
}

func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("ocr base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("ocr base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	schema, err := compileSchema(replySchema())
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		schema: schema,
		logger: logger,
	}, nil
}

func (c *HTTPClient) headers() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Extract runs one OCR job to completion.
func (c *HTTPClient) Extract(ctx context.Context, req Request) (*Response, error) {
	declared := req.DeclaredType
	if declared == "" {
		declared = constants.DocTypeUnknown
	}
	body := submitBody{
		DocumentID:    req.DocumentID,
		Filename:      req.Filename,
		MimeType:      req.MimeType,
		DeclaredType:  string(declared),
		ContentBase64: base64.StdEncoding.EncodeToString(req.Content),
	}

	raw, _, err := sendJSON(ctx, c.http, http.MethodPost, c.cfg.BaseURL+"/jobs", body, c.headers(), c.logger)
	if err != nil {
		return nil, c.classify(ctx, "submit", err)
	}
	resp, err := c.decode(raw)
	if err != nil {
		return nil, err
	}

	for !resp.Status.Done() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("job %s still %s: %w: %v", resp.JobID, resp.Status, ErrTimeout, ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}
		raw, _, err = sendJSON(ctx, c.http, http.MethodGet, c.cfg.BaseURL+"/jobs/"+url.PathEscape(resp.JobID), nil, c.headers(), c.logger)
		if err != nil {
			return nil, c.classify(ctx, "poll", err)
		}
		if resp, err = c.decode(raw); err != nil {
			return nil, err
		}
	}

	switch resp.Status {
	case constants.OCRStatusFailed:
		return resp, fmt.Errorf("job %s failed: %s: %w", resp.JobID, resp.Error, ErrTransient)
	case constants.OCRStatusTimeout:
		return resp, fmt.Errorf("job %s timed out: %w", resp.JobID, ErrTimeout)
	}
	c.logger.Info("ocr.job.succeeded", "job_id", resp.JobID, "doc_id", req.DocumentID, "fields_dropped", len(resp.Dropped))
	return resp, nil
}

// decode sanitizes, validates and unmarshals a job reply.
func (c *HTTPClient) decode(raw []byte) (*Response, error) {
	clean, dropped, err := sanitizeReply(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if len(dropped) > 0 {
		c.logger.Warn("ocr.reply.sanitized", "dropped", dropped)
	}
	if err := validateReply(c.schema, clean); err != nil {
		c.logger.Error("ocr.reply.schema_violation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	var resp Response
	if err := json.Unmarshal(clean, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrPermanent, err)
	}
	resp.Dropped = dropped
	return &resp, nil
}

// classify maps transport failures onto the error classes.
func (c *HTTPClient) classify(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %v", stage, ErrTimeout, err)
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests || se.Code >= 500:
			return fmt.Errorf("%s: %w: %v", stage, ErrTransient, err)
		default:
			return fmt.Errorf("%s: %w: %v: %s", stage, ErrPermanent, err, strings.TrimSpace(se.Body))
		}
	}
	return fmt.Errorf("%s: %w: %v", stage, ErrTransient, err)
}
