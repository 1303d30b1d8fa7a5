package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
	"unicode"

	_ "embed"
)

//go:embed report.html.tmpl
var htmlTemplate string

var reportTemplate = template.Must(
	template.New("report").Funcs(template.FuncMap{
		"highlight": highlight,
		"lower":     strings.ToLower,
	}).Parse(htmlTemplate),
)

type htmlReport struct {
	RunID     string
	ScannedAt string
	Pages     []PageResult
	Total     int
}

// WriteHTML renders the findings as a standalone HTML page, grouped by URL
// with the matched text highlighted inside each snippet.
func WriteHTML(w io.Writer, run Run, results []PageResult) error {
	total := 0
	for _, r := range results {
		total += len(r.Findings)
	}

	err := reportTemplate.Execute(w, htmlReport{
		RunID:     run.ID,
		ScannedAt: run.StartedAt.UTC().Format(time.RFC3339),
		Pages:     results,
		Total:     total,
	})
	if err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}

// highlight wraps the first case-insensitive occurrence of match inside
// snippet in a <mark> element. Both strings are escaped before the markup is
// assembled.
func highlight(snippet, match string) template.HTML {
	escaped := template.HTMLEscapeString(snippet)
	if match == "" {
		return template.HTML(escaped) //nolint:gosec // Escaped above.
	}

	start, end := indexFold(snippet, match)
	if start < 0 {
		return template.HTML(escaped) //nolint:gosec // Escaped above.
	}

	before := template.HTMLEscapeString(snippet[:start])
	hit := template.HTMLEscapeString(snippet[start:end])
	after := template.HTMLEscapeString(snippet[end:])

	return template.HTML(before + "<mark>" + hit + "</mark>" + after) //nolint:gosec // All parts escaped.
}

// indexFold locates the first case-insensitive occurrence of substr in s and
// returns its byte offsets in s, or (-1, -1). Folding happens rune by rune so
// the offsets stay on rune boundaries even where lowercasing changes byte
// lengths (e.g. U+023A, U+0130).
func indexFold(s, substr string) (int, int) {
	target := []rune(substr)
	if len(target) == 0 {
		return -1, -1
	}

	var (
		runes []rune
		offs  []int
	)

	for i, r := range s {
		runes = append(runes, r)
		offs = append(offs, i)
	}

	offs = append(offs, len(s))

	for i := 0; i+len(target) <= len(runes); i++ {
		found := true

		for j, tr := range target {
			if unicode.ToLower(runes[i+j]) != unicode.ToLower(tr) {
				found = false

				break
			}
		}

		if found {
			return offs[i], offs[i+len(target)]
		}
	}

	return -1, -1
}
