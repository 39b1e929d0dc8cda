package common

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OCR_URL", "http://ocr.local")
	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Blob.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Intake.Retention)
	assert.Equal(t, 60*time.Minute, cfg.Intake.SweepInterval)
	assert.Equal(t, 3, cfg.Intake.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.OCR.Timeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_URL", "postgres://u:p@localhost/intake")
	t.Setenv("OCR_URL", "http://ocr.local")
	t.Setenv("OCR_TIMEOUT", "15s")
	t.Setenv("INTAKE_MAX_RETRIES", "5")
	t.Setenv("BLOB_USE_SSL", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 15*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, 5, cfg.Intake.MaxRetries)
	assert.True(t, cfg.Blob.UseSSL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, int32(20), cfg.Store.MaxConns, "unparsable values fall back to defaults")
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:  StoreConfig{Driver: "memory"},
			Blob:   BlobConfig{Driver: "memory"},
			OCR:    OCRConfig{BaseURL: "http://ocr", Timeout: time.Second},
			Server: ServerConfig{GRPCAddr: ":8080"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }, false},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, false},
		{"minio without bucket", func(c *Config) { c.Blob = BlobConfig{Driver: "minio", Endpoint: "x"} }, false},
		{"missing ocr url", func(c *Config) { c.OCR.BaseURL = "" }, false},
		{"zero ocr timeout", func(c *Config) { c.OCR.Timeout = 0 }, false},
		{"negative retries", func(c *Config) { c.Intake.MaxRetries = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("filename", "scan.exe", Required, AllowedFile).
		Field("content", []byte{}, Required).
		Field("source", "fax", OneOf("upload", "email")).
		Field("id", "nope", UUID)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 4)
	assert.ErrorIs(t, v.Error(), ErrValidation)
	assert.Contains(t, v.ErrorMessage(), "unsupported file extension")

	ok := NewValidator().
		Field("filename", "Factura.PDF", Required, AllowedFile, MaxLength(255)).
		Field("content", []byte("x"), Required).
		Field("source", "", OneOf("upload", "email"))
	assert.False(t, ok.HasErrors())
	assert.NoError(t, ok.Error())
	assert.NoError(t, ValidateAndReturnError(ok))

	st, _ := status.FromError(ValidateAndReturnError(v))
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{NotFoundf("document %s", "x"), codes.NotFound},
		{InvalidInputf("bad"), codes.InvalidArgument},
		{fmt.Errorf("wrapped: %w", ErrValidation), codes.InvalidArgument},
		{InvalidStatef("archived"), codes.FailedPrecondition},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{NewAppError("DB", "boom", ErrDatabase), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		st, ok := status.FromError(ToStatus(tt.err))
		require.True(t, ok)
		assert.Equal(t, tt.code, st.Code(), tt.err.Error())
	}
	assert.NoError(t, ToStatus(nil))
}

func TestContextHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))

	l := slog.New(slog.DiscardHandler)
	assert.Same(t, l, LoggerFromContext(WithLogger(ctx, l), nil))
	assert.Same(t, slog.Default(), LoggerFromContext(ctx, nil))
}
