package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spacesedan/karmatrack/internal/models"
)

const REPORTS_DIR = "performance"

// ReportWriter persists one rendered report per period. The markdown and
// html bodies are deterministic; the volatile generated-at stamp goes to a
// sidecar meta file so regenerated reports stay byte-comparable.
type ReportWriter struct {
	dir string
}

func NewReportWriter(dataDir string) (*ReportWriter, error) {
	dir := filepath.Join(dataDir, REPORTS_DIR)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("[ReportWriter] failed to create reports dir: %w", err)
	}
	return &ReportWriter{dir: dir}, nil
}

// Write overwrites any prior artifacts for the period and returns the
// markdown path.
func (w *ReportWriter) Write(period string, markdown, html []byte, meta models.ReportMeta) (string, error) {
	mdPath := filepath.Join(w.dir, period+".md")
	if err := os.WriteFile(mdPath, markdown, 0o644); err != nil {
		return "", fmt.Errorf("[ReportWriter] failed to write %s: %w", mdPath, err)
	}
	htmlPath := filepath.Join(w.dir, period+".html")
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", fmt.Errorf("[ReportWriter] failed to write %s: %w", htmlPath, err)
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("[ReportWriter] failed to marshal meta: %w", err)
	}
	metaPath := filepath.Join(w.dir, period+".meta.json")
	if err := os.WriteFile(metaPath, append(metaData, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("[ReportWriter] failed to write %s: %w", metaPath, err)
	}
	return mdPath, nil
}

// LatestPeriod reports the most recent period an artifact exists for.
func (w *ReportWriter) LatestPeriod() (string, bool) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return "", false
	}
	var periods []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".md") {
			periods = append(periods, strings.TrimSuffix(name, ".md"))
		}
	}
	if len(periods) == 0 {
		return "", false
	}
	sort.Strings(periods)
	return periods[len(periods)-1], true
}
