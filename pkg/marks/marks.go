// Package marks turns reviewer false-positive marks into policy suppressions.
//
// Reviewers export marks as a CSV from the findings report. This package
// parses that CSV, drops marks already covered by the policy's suppression
// list, and appends the remainder to the policy file without disturbing its
// comments or formatting. Running the same marks file twice is a no-op.
package marks

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/partnerwatch/ppscan/api/v1beta1/policies"
	"github.com/partnerwatch/ppscan/pkg/scan"
	"github.com/partnerwatch/ppscan/pkg/yaml"
)

// Recognized marks CSV columns. Unknown columns are ignored so reviewers can
// keep extra bookkeeping columns in their export.
const (
	columnURL             = "url"
	columnRuleID          = "rule_id"
	columnSnippetContains = "snippet_contains"
	columnMatchContains   = "match_contains"
	columnURLContains     = "url_contains"
	columnReason          = "reason"
)

// ErrNoMarks is returned when the CSV contains a header but no data rows.
var ErrNoMarks = errors.New("marks file contains no marks")

// ReadCSV parses a marks CSV into suppressions. The first row must be a
// header naming at least one recognized column. A row's url column is used as
// a URL constraint when url_contains is empty, so marks exported straight
// from the findings report pin to the page they were reviewed on.
func ReadCSV(r io.Reader) ([]*scan.Suppression, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read marks header: %w", err)
	}

	columns := make(map[string]int, len(header))

	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	known := false

	for _, name := range []string{
		columnURL, columnRuleID, columnSnippetContains,
		columnMatchContains, columnURLContains, columnReason,
	} {
		if _, ok := columns[name]; ok {
			known = true

			break
		}
	}

	if !known {
		return nil, fmt.Errorf("marks header %v has no recognized columns", header)
	}

	field := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[i])
	}

	var suppressions []*scan.Suppression

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read marks row: %w", err)
		}

		s := &scan.Suppression{
			RuleID:          field(row, columnRuleID),
			URLContains:     field(row, columnURLContains),
			SnippetContains: field(row, columnSnippetContains),
			MatchContains:   field(row, columnMatchContains),
			Reason:          field(row, columnReason),
		}

		if s.URLContains == "" {
			s.URLContains = field(row, columnURL)
		}

		err = s.Validate()
		if err != nil {
			return nil, fmt.Errorf("marks line %d: %w", line, err)
		}

		suppressions = append(suppressions, s)
	}

	if len(suppressions) == 0 {
		return nil, ErrNoMarks
	}

	return suppressions, nil
}

// Dedupe returns the incoming suppressions not already present in existing,
// with duplicates inside incoming also collapsed. Equality ignores the
// reason, so re-marking a known false positive with different wording does
// not grow the list.
func Dedupe(existing, incoming []*scan.Suppression) []*scan.Suppression {
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	for _, s := range existing {
		seen[constraintKey(s)] = struct{}{}
	}

	var fresh []*scan.Suppression

	for _, s := range incoming {
		key := constraintKey(s)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		fresh = append(fresh, s)
	}

	return fresh
}

func constraintKey(s *scan.Suppression) string {
	return strings.Join([]string{
		strings.ToLower(s.RuleID),
		strings.ToLower(s.URLContains),
		strings.ToLower(s.SnippetContains),
		strings.ToLower(s.MatchContains),
	}, "\x00")
}

// AppendToPolicy appends new suppressions to the policy document, preserving
// its comments and formatting. It returns the updated document and the number
// of suppressions actually added; zero added returns the input unchanged.
func AppendToPolicy(policyData []byte, incoming []*scan.Suppression) ([]byte, int, error) {
	p, err := policies.NewLoaderFromBytes(policyData).Load()
	if err != nil {
		return nil, 0, fmt.Errorf("load policy: %w", err)
	}

	fresh := Dedupe(p.Suppressions, incoming)
	if len(fresh) == 0 {
		return policyData, 0, nil
	}

	merged, err := yaml.ReplaceChildFromValue(
		policyData, "suppressions", append(p.Suppressions, fresh...),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("merge suppressions: %w", err)
	}

	return merged, len(fresh), nil
}
