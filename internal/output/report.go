package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/models"
	"github.com/litansh/TrendMaster-AI/internal/services"
)

// ReportWriter renders the markdown analysis report for a run.
type ReportWriter struct {
	dir    string
	logger *logrus.Logger
}

func NewReportWriter(dir string, logger *logrus.Logger) *ReportWriter {
	return &ReportWriter{dir: dir, logger: logger}
}

// Write renders and stores the report, returning the file path.
func (w *ReportWriter) Write(run *services.RunOutput, changes *models.ChangeReport) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("analysis-report-%s.md", run.RunID))
	if err := os.WriteFile(path, []byte(Render(run, changes)), 0o644); err != nil {
		return "", fmt.Errorf("writing analysis report: %w", err)
	}

	w.logger.WithField("path", path).Info("Wrote analysis report")
	return path, nil
}

// Render builds the markdown report body.
func Render(run *services.RunOutput, changes *models.ChangeReport) string {
	var b strings.Builder
	summary := run.Summary

	fmt.Fprintf(&b, "# Rate Limit Analysis Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", run.RunID)
	fmt.Fprintf(&b, "- Environment: %s\n", summary.Environment)
	fmt.Fprintf(&b, "- Started: %s\n", summary.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n\n", summary.Duration.Round(time.Millisecond))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- Pairs analyzed: %d (excluded: %d, errors: %d)\n",
		summary.TotalPairs, summary.Excluded, summary.Errors)
	if summary.AvgRate > 0 {
		fmt.Fprintf(&b, "- Recommended rates: avg %.0f, min %d, max %d req/min\n",
			summary.AvgRate, summary.MinRate, summary.MaxRate)
	}
	for _, level := range []string{"high", "medium", "low"} {
		if count, ok := summary.ByConfidence[level]; ok {
			fmt.Fprintf(&b, "- %s confidence: %d\n", strings.ToUpper(level[:1])+level[1:], count)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Recommendations\n\n")
	fmt.Fprintf(&b, "| Partner | Path | Rate (req/min) | Confidence | Method | Peak At | Rationale |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|---|\n")
	for _, result := range run.Results {
		if result.Excluded {
			continue
		}
		peakAt := "-"
		if result.BaseMetrics != nil && !result.BaseMetrics.PeakTime.IsZero() {
			peakAt = result.BaseMetrics.PeakTime.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s | %s |\n",
			result.Partner, result.Path, result.RecommendedRateLimit,
			result.Confidence.Level, result.CalculationMethod, peakAt, result.Rationale)
	}
	b.WriteString("\n")

	if changes != nil {
		fmt.Fprintf(&b, "## Configuration Changes\n\n")
		fmt.Fprintf(&b, "- Added: %d, Modified: %d, Removed: %d, Unchanged: %d, Skipped: %d\n\n",
			len(changes.Added), len(changes.Modified), len(changes.Removed),
			changes.Unchanged, changes.Skipped)
		for _, change := range changes.Modified {
			fmt.Fprintf(&b, "- %s %s: %d -> %d (%+.1f%%)\n",
				change.Partner, change.Path, change.OldLimit, change.NewLimit, change.ChangePercent)
		}
		for _, change := range changes.Added {
			fmt.Fprintf(&b, "- %s %s: new entry at %d\n",
				change.Partner, change.Path, change.NewLimit)
		}
		b.WriteString("\n")
	}

	var failed []*models.RateCalculationResult
	for _, result := range run.Results {
		if result.Error != "" {
			failed = append(failed, result)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "## Errors\n\n")
		for _, result := range failed {
			fmt.Fprintf(&b, "- %s %s: %s\n", result.Partner, result.Path, result.Error)
		}
		b.WriteString("\n")
	}

	excluded := 0
	for _, result := range run.Results {
		if result.Excluded {
			excluded++
		}
	}
	if excluded > 0 {
		fmt.Fprintf(&b, "## Excluded\n\n")
		for _, result := range run.Results {
			if result.Excluded {
				fmt.Fprintf(&b, "- %s %s: %s\n", result.Partner, result.Path, result.Rationale)
			}
		}
	}

	return b.String()
}
