package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/finance-intake/internal/common"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	content := []byte("%PDF-1.4 fake")
	require.NoError(t, m.Put(ctx, "docs/a.pdf", content, "application/pdf"))

	content[0] = 'X'
	got, err := m.Get(ctx, "docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(got), "stored bytes are copied")

	require.NoError(t, m.Delete(ctx, "docs/a.pdf"))
	require.NoError(t, m.Delete(ctx, "docs/a.pdf"))
	_, err = m.Get(ctx, "docs/a.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestNewMinIO_ValidatesConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  MinIOConfig
	}{
		{"missing endpoint", MinIOConfig{AccessKey: "k", SecretKey: "s", Bucket: "b"}},
		{"missing credentials", MinIOConfig{Endpoint: "localhost:9000", Bucket: "b"}},
		{"missing bucket", MinIOConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinIO(ctx, tt.cfg)
			assert.Error(t, err)
		})
	}
}
