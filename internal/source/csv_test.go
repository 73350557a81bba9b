package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrank/crossrank/internal/panel"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCSVSource_Fetch(t *testing.T) {
	path := writeFile(t, "factors.csv", "timestamp,BTC,ETH\n2025-06-02,1.5,\n2025-06-03,2.5,3.5\n")
	src := NewCSV(path)

	p, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, p.Rows())
	assert.Equal(t, []string{"BTC", "ETH"}, p.Symbols())
	assert.True(t, panel.IsMissing(p.At(0, 1)))
	assert.Equal(t, 3.5, p.At(1, 1))
	assert.Equal(t, "csv:factors.csv", src.Name())
}

func TestCSVSource_MissingFile(t *testing.T) {
	src := NewCSV(filepath.Join(t.TempDir(), "absent.csv"))

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}

func TestCSVSource_BadContent(t *testing.T) {
	path := writeFile(t, "bad.csv", "timestamp,BTC\n2025-06-02,not-a-number\n")

	_, err := NewCSV(path).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestCSVSource_CanceledContext(t *testing.T) {
	path := writeFile(t, "factors.csv", "timestamp,BTC,ETH\n2025-06-02,1,2\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSV(path).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
