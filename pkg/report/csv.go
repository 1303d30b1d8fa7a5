package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/partnerwatch/ppscan/pkg/scan"
)

// PageResult pairs one scanned page with its surviving findings.
type PageResult struct {
	Page     scan.Page
	Findings []scan.Finding
}

// csvHeader is the report.csv column set. Downstream review tooling keys on
// these names; do not reorder.
var csvHeader = []string{
	"run_id",
	"scanned_at",
	"url",
	"final_url",
	"http_status",
	"title",
	"rule_id",
	"taxonomy",
	"severity",
	"match_text",
	"snippet",
	"recommendation",
	"page_url",
	"screenshot",
}

// WriteCSV writes one row per finding, in page order then finding order.
// Pages without findings contribute no rows.
func WriteCSV(w io.Writer, run Run, results []PageResult) error {
	cw := csv.NewWriter(w)

	err := cw.Write(csvHeader)
	if err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	scannedAt := run.StartedAt.UTC().Format(time.RFC3339)

	for _, result := range results {
		for _, f := range result.Findings {
			row := []string{
				run.ID,
				scannedAt,
				result.Page.URL,
				result.Page.FinalURL,
				strconv.Itoa(result.Page.Status),
				result.Page.Title,
				f.RuleID,
				f.Taxonomy,
				string(f.Severity),
				f.MatchText,
				f.Snippet,
				f.Recommendation,
				f.PageURL,
				f.Screenshot,
			}

			err := cw.Write(row)
			if err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	cw.Flush()

	err = cw.Error()
	if err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}
