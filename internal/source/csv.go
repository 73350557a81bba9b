package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crossrank/crossrank/internal/panel"
)

// CSVSource reads a factor panel from a header-plus-records CSV file.
type CSVSource struct {
	path string
}

// NewCSV returns a source reading from path on every fetch.
func NewCSV(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Name() string {
	return "csv:" + filepath.Base(s.path)
}

// Fetch parses the file. The panel is rebuilt on every call; caching is the
// caller's concern.
func (s *CSVSource) Fetch(ctx context.Context) (*panel.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open factor csv: %w", err)
	}
	defer f.Close()

	p, err := panel.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return p, nil
}
