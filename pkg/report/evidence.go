package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/partnerwatch/ppscan/pkg/scan"
)

// Evidence subdirectory names.
const (
	rawHTMLDir       = "raw_html"
	extractedTextDir = "extracted_text"
	metaDir          = "meta"
)

// EvidenceWriter persists what each page looked like at scan time, so a
// finding can be reviewed later even after the page changes.
type EvidenceWriter struct {
	run Run
	dir string
}

// NewEvidenceWriter creates the evidence directory layout under dir.
func NewEvidenceWriter(dir string, run Run) (*EvidenceWriter, error) {
	for _, sub := range []string{rawHTMLDir, extractedTextDir, metaDir} {
		err := os.MkdirAll(filepath.Join(dir, sub), 0o700)
		if err != nil {
			return nil, fmt.Errorf("create evidence dir: %w", err)
		}
	}

	return &EvidenceWriter{dir: dir, run: run}, nil
}

type pageMeta struct {
	RunID     string    `json:"run_id"`
	ScannedAt time.Time `json:"scanned_at"`
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Status    int       `json:"http_status"`
}

// Write stores the raw HTML, the extracted text, and a metadata record for
// one page. Files are keyed by a sanitized form of the URL.
func (e *EvidenceWriter) Write(page scan.Page, rawHTML string) error {
	stem := SafeFilename(page.URL)
	if stem == "" {
		stem = "page"
	}

	err := os.WriteFile(filepath.Join(e.dir, rawHTMLDir, stem+".html"), []byte(rawHTML), 0o600)
	if err != nil {
		return fmt.Errorf("write raw html: %w", err)
	}

	err = os.WriteFile(filepath.Join(e.dir, extractedTextDir, stem+".txt"), []byte(page.Text), 0o600)
	if err != nil {
		return fmt.Errorf("write extracted text: %w", err)
	}

	meta, err := json.MarshalIndent(pageMeta{
		RunID:     e.run.ID,
		ScannedAt: e.run.StartedAt.UTC(),
		URL:       page.URL,
		FinalURL:  page.FinalURL,
		Title:     page.Title,
		Status:    page.Status,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal page meta: %w", err)
	}

	err = os.WriteFile(filepath.Join(e.dir, metaDir, stem+".json"), meta, 0o600)
	if err != nil {
		return fmt.Errorf("write page meta: %w", err)
	}

	return nil
}
