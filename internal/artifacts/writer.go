// Package artifacts writes the on-disk outputs of a signal run: the signal
// panel as CSV, a compact JSON summary, and a human-readable report.
// Outputs land in a date-partitioned directory under the configured root.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/crossrank/crossrank/internal/panel"
	"github.com/crossrank/crossrank/internal/signal"
)

// reportDecisionCap bounds the decision table in report.md; long histories
// get truncated with a note rather than a thousand-row table.
const reportDecisionCap = 50

// Summary captures one run for summary.json and the report header.
type Summary struct {
	RunID            string
	Generated        time.Time
	Source           string
	Policy           string
	Percent          float64
	HoldDays         int
	Rows             int
	Cols             int
	Decisions        int
	MissingDecisions int
	Elapsed          time.Duration
}

// Paths lists every artifact a run produces.
type Paths struct {
	OutputDir   string `json:"output_dir"`
	SignalsCSV  string `json:"signals_csv"`
	SummaryJSON string `json:"summary_json"`
	ReportMD    string `json:"report_md"`
}

// Writer lands run artifacts in <root>/<YYYY-MM-DD>/. A second run on the
// same day overwrites the first; latest wins.
type Writer struct {
	outputDir string
}

// NewWriter creates a writer rooted at outputDir for today.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: filepath.Join(outputDir, time.Now().UTC().Format("2006-01-02"))}
}

// OutputDir returns the dated directory artifacts land in.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// Paths returns the artifact locations for this writer.
func (w *Writer) Paths() Paths {
	return Paths{
		OutputDir:   w.outputDir,
		SignalsCSV:  filepath.Join(w.outputDir, "signals.csv"),
		SummaryJSON: filepath.Join(w.outputDir, "summary.json"),
		ReportMD:    filepath.Join(w.outputDir, "report.md"),
	}
}

func (w *Writer) ensureDir() error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// writeAtomic lands an artifact via temp file + rename so a concurrent
// reader never observes a partial file.
func (w *Writer) writeAtomic(path string, write func(*os.File) error) error {
	if err := w.ensureDir(); err != nil {
		return err
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteSignals writes the signal panel as CSV with integer cells and empty
// cells for missing rows.
func (w *Writer) WriteSignals(signals *panel.Panel) error {
	return w.writeAtomic(w.Paths().SignalsCSV, func(file *os.File) error {
		if err := panel.WriteCSVWith(file, signals, func(v float64) string {
			return strconv.Itoa(int(v))
		}); err != nil {
			return fmt.Errorf("failed to write signals: %w", err)
		}
		return nil
	})
}

// WriteSummary writes the compact machine-readable run summary.
func (w *Writer) WriteSummary(s Summary) error {
	paths := w.Paths()
	summary := map[string]interface{}{
		"run_id":            s.RunID,
		"generated":         s.Generated.UTC().Format(time.RFC3339),
		"source":            s.Source,
		"policy":            s.Policy,
		"percent":           s.Percent,
		"hold_days":         s.HoldDays,
		"rows":              s.Rows,
		"cols":              s.Cols,
		"decisions":         s.Decisions,
		"missing_decisions": s.MissingDecisions,
		"elapsed_ms":        s.Elapsed.Milliseconds(),
		"artifacts": map[string]string{
			"signals": paths.SignalsCSV,
			"summary": paths.SummaryJSON,
			"report":  paths.ReportMD,
		},
	}

	return w.writeAtomic(paths.SummaryJSON, func(file *os.File) error {
		encoder := json.NewEncoder(file)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(summary); err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		return nil
	})
}

// WriteReport writes the markdown run report with the per-decision table.
func (w *Writer) WriteReport(s Summary, decisions []signal.RowStat) error {
	return w.writeAtomic(w.Paths().ReportMD, func(file *os.File) error {
		if _, err := file.WriteString(w.generateReport(s, decisions)); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	})
}

func (w *Writer) generateReport(s Summary, decisions []signal.RowStat) string {
	var report strings.Builder

	report.WriteString("# CrossRank Signal Report\n\n")
	report.WriteString(fmt.Sprintf("**Run**: %s\n", s.RunID))
	report.WriteString(fmt.Sprintf("**Generated**: %s\n", s.Generated.UTC().Format("2006-01-02 15:04:05 UTC")))
	report.WriteString(fmt.Sprintf("**Source**: %s\n", s.Source))
	report.WriteString(fmt.Sprintf("**Configuration**: percent=%.4g, policy=%s, hold=%d\n\n",
		s.Percent, s.Policy, s.HoldDays))

	report.WriteString("## Summary\n\n")
	report.WriteString(fmt.Sprintf("- **Panel**: %d rows x %d assets\n", s.Rows, s.Cols))
	report.WriteString(fmt.Sprintf("- **Decision rows**: %d\n", s.Decisions))
	if s.Decisions > 0 {
		coverage := float64(s.Decisions-s.MissingDecisions) / float64(s.Decisions) * 100
		report.WriteString(fmt.Sprintf("- **Coverage**: %d/%d decisions produced signals (%.1f%%)\n",
			s.Decisions-s.MissingDecisions, s.Decisions, coverage))
	}
	report.WriteString(fmt.Sprintf("- **Elapsed**: %s\n\n", s.Elapsed))

	report.WriteString("## Decisions\n\n")
	if len(decisions) == 0 {
		report.WriteString("No decision rows.\n\n")
	} else {
		report.WriteString("| Row | Valid | Tail | Longs | Shorts | Lower | Upper |\n")
		report.WriteString("|-----:|------:|-----:|------:|-------:|------:|------:|\n")
		for i, d := range decisions {
			if i >= reportDecisionCap {
				report.WriteString(fmt.Sprintf("\nTruncated at %d of %d decisions.\n", reportDecisionCap, len(decisions)))
				break
			}
			lower, upper := "n/a", "n/a"
			if !d.Missing {
				lower = fmt.Sprintf("%.6g", d.Thresholds.Lower)
				upper = fmt.Sprintf("%.6g", d.Thresholds.Upper)
			}
			report.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %s | %s |\n",
				d.Row, d.Valid, d.TailSize, d.Longs, d.Shorts, lower, upper))
		}
		report.WriteString("\n")
	}

	paths := w.Paths()
	report.WriteString("## Artifact Paths\n\n")
	report.WriteString(fmt.Sprintf("- **Signals CSV**: `%s`\n", paths.SignalsCSV))
	report.WriteString(fmt.Sprintf("- **Summary JSON**: `%s`\n", paths.SummaryJSON))
	report.WriteString(fmt.Sprintf("- **Output Directory**: `%s`\n", paths.OutputDir))

	return report.String()
}
