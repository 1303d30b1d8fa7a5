package report_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerwatch/ppscan/pkg/report"
	"github.com/partnerwatch/ppscan/pkg/rule"
	"github.com/partnerwatch/ppscan/pkg/scan"
)

func fixedRun() report.Run {
	return report.Run{
		ID:        "20260830_deadbeef",
		StartedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func fixtureResults() []report.PageResult {
	return []report.PageResult{
		{
			Page: scan.Page{
				URL:      "https://partner.example/review",
				FinalURL: "https://partner.example/review",
				Title:    "Upgrade Review, 2026",
				Status:   200,
			},
			Findings: []scan.Finding{
				{
					RuleID:         "DISC_001",
					Taxonomy:       "missing-disclosure",
					Severity:       rule.SeverityMedium,
					PageURL:        "https://partner.example/review",
					MatchText:      "APR",
					Snippet:        "loans with 9.99% APR for most borrowers",
					Recommendation: "Add rate variability language near APR mentions.",
				},
			},
		},
		{
			Page: scan.Page{
				URL:      "https://blog.example/post",
				FinalURL: "https://blog.example/post",
				Title:    "Loan Guide",
				Status:   200,
			},
			Findings: []scan.Finding{
				{
					RuleID:         "MKT_001",
					Taxonomy:       "misleading-marketing",
					Severity:       rule.SeverityHigh,
					PageURL:        "https://blog.example/post",
					MatchText:      "guaranteed approval",
					Snippet:        "apply today with guaranteed approval and no credit check",
					Recommendation: "Remove approval guarantees.",
				},
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	require.NoError(t, report.WriteCSV(&sb, fixedRun(), fixtureResults()))

	assertGolden(t, "report_csv", sb.String())
}

func TestWriteCSVNoFindings(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	results := []report.PageResult{
		{Page: scan.Page{URL: "https://clean.example", Status: 200}},
	}

	require.NoError(t, report.WriteCSV(&sb, fixedRun(), results))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Len(t, lines, 1, "header only")
	assert.True(t, strings.HasPrefix(lines[0], "run_id,scanned_at,url,"))
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	require.NoError(t, report.WriteHTML(&sb, fixedRun(), fixtureResults()))

	out := sb.String()

	assert.Contains(t, out, "20260830_deadbeef")
	assert.Contains(t, out, "2 finding(s)")
	assert.Contains(t, out, "<h2>https://partner.example/review</h2>")
	assert.Contains(t, out, "<h2>https://blog.example/post</h2>")
	assert.Contains(t, out, `<span class="severity severity-high">HIGH</span>`)
	assert.Contains(t, out, `<span class="severity severity-medium">MEDIUM</span>`)
	assert.Contains(t, out, "<mark>guaranteed approval</mark>")
	assert.Contains(t, out, "<mark>APR</mark>")
}

func TestWriteHTMLEscapesSnippets(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	results := []report.PageResult{
		{
			Page: scan.Page{URL: "https://partner.example", Status: 200},
			Findings: []scan.Finding{
				{
					RuleID:    "R1",
					Severity:  rule.SeverityLow,
					MatchText: "APR",
					Snippet:   `<script>alert("x")</script> 9.99% APR`,
				},
			},
		},
	}

	require.NoError(t, report.WriteHTML(&sb, fixedRun(), results))

	out := sb.String()

	assert.NotContains(t, out, `<script>alert`)
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "<mark>APR</mark>")
}

func TestWriteHTMLHighlightsUnicodeSnippets(t *testing.T) {
	t.Parallel()

	// Lowercasing changes byte lengths for these runes (U+023A grows, U+0130
	// shrinks), so the highlight offsets must come from the original snippet.
	tcs := map[string]string{
		"lowercasing grows bytes":   strings.Repeat("Ⱥ", 10) + "APR",
		"lowercasing shrinks bytes": strings.Repeat("İ", 10) + "APR",
	}

	for name, snippet := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			results := []report.PageResult{
				{
					Page: scan.Page{URL: "https://partner.example", Status: 200},
					Findings: []scan.Finding{
						{
							RuleID:    "R1",
							Severity:  rule.SeverityLow,
							MatchText: "APR",
							Snippet:   snippet,
						},
					},
				},
			}

			var sb strings.Builder

			require.NoError(t, report.WriteHTML(&sb, fixedRun(), results))

			out := sb.String()

			assert.True(t, utf8.ValidString(out))
			assert.Contains(t, out, "<mark>APR</mark>")
		})
	}
}

func TestEvidenceWriter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w, err := report.NewEvidenceWriter(dir, fixedRun())
	require.NoError(t, err)

	page := scan.Page{
		URL:      "https://partner.example/review",
		FinalURL: "https://partner.example/review?ref=1",
		Title:    "Upgrade Review",
		Text:     "Upgrade offers loans with 9.99% APR.",
		Status:   200,
	}

	require.NoError(t, w.Write(page, "<html><body>raw</body></html>"))

	stem := report.SafeFilename(page.URL)

	rawHTML, err := os.ReadFile(filepath.Join(dir, "raw_html", stem+".html"))
	require.NoError(t, err)
	assert.Equal(t, "<html><body>raw</body></html>", string(rawHTML))

	text, err := os.ReadFile(filepath.Join(dir, "extracted_text", stem+".txt"))
	require.NoError(t, err)
	assert.Equal(t, page.Text, string(text))

	metaRaw, err := os.ReadFile(filepath.Join(dir, "meta", stem+".json"))
	require.NoError(t, err)

	var meta map[string]any

	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	assert.Equal(t, "20260830_deadbeef", meta["run_id"])
	assert.Equal(t, page.URL, meta["url"])
	assert.Equal(t, page.FinalURL, meta["final_url"])
	assert.InEpsilon(t, 200.0, meta["http_status"], 0.001)
}

func TestSafeFilename(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  string
	}{
		"url": {
			input: "https://partner.example/review?id=1",
			want:  "https_partner_example_review_id_1",
		},
		"uppercase folded": {
			input: "Upgrade Review 2026",
			want:  "upgrade_review_2026",
		},
		"runs collapsed and trimmed": {
			input: "--a///b--",
			want:  "a_b",
		},
		"long input capped": {
			input: strings.Repeat("a", 200),
			want:  strings.Repeat("a", 80),
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, report.SafeFilename(tc.input))
		})
	}
}

func TestNewRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	run := report.NewRun(now)

	assert.Equal(t, now, run.StartedAt)
	require.Len(t, run.ID, len("20260830")+1+8)
	assert.True(t, strings.HasPrefix(run.ID, "20260830_"))
	assert.NotEqual(t, run.ID, report.NewRun(now).ID, "run IDs must be unique")
}
