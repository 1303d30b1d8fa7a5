package scan

import (
	"errors"
	"strings"

	"github.com/partnerwatch/ppscan/pkg/rule"
)

// Page is one fetched and extracted page, as handed over by the fetch
// collaborator. Empty text is valid and yields zero findings.
type Page struct {
	// URL is the requested URL.
	URL string
	// FinalURL is the URL after redirects, if known.
	FinalURL string
	// Title is the page title, if known.
	Title string
	// Text is the extracted main body text.
	Text string
	// Screenshot is a path to a page screenshot, if one was captured.
	Screenshot string
	// Status is the HTTP status of the fetch.
	Status int
}

// PageURL returns the best URL to report for this page.
func (p Page) PageURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}

	return p.URL
}

// Finding is one reported rule violation. Findings are immutable once
// assembled; the screenshot and page link fields are carried through from the
// fetch collaborator untouched.
type Finding struct {
	RuleID         string
	Taxonomy       string
	Severity       rule.Severity
	PageURL        string
	MatchText      string
	Snippet        string
	Recommendation string
	Screenshot     string
}

// Suppression records one confirmed false positive. All set constraints must
// hold for the suppression to apply (logical AND). String constraints are
// case-insensitive substring checks; RuleID is an exact match.
type Suppression struct {
	// RuleID restricts the suppression to findings of one rule.
	RuleID string `json:"ruleId,omitempty" jsonschema:"title=Rule ID"`
	// URLContains restricts the suppression to pages whose URL contains this text.
	URLContains string `json:"urlContains,omitempty" jsonschema:"title=URL Contains"`
	// SnippetContains restricts the suppression to findings whose snippet contains this text.
	SnippetContains string `json:"snippetContains,omitempty" jsonschema:"title=Snippet Contains"`
	// MatchContains restricts the suppression to findings whose matched text contains this text.
	MatchContains string `json:"matchContains,omitempty" jsonschema:"title=Match Contains"`
	// Reason documents why this suppression exists.
	Reason string `json:"reason,omitempty" jsonschema:"title=Reason"`
}

// ErrUnconstrainedSuppression is returned for suppressions with no
// constraints; an unconstrained suppression would silently discard all
// findings.
var ErrUnconstrainedSuppression = errors.New("suppression has no constraints")

// Validate rejects suppressions that would match everything.
func (s *Suppression) Validate() error {
	if s.RuleID == "" && s.URLContains == "" && s.SnippetContains == "" && s.MatchContains == "" {
		return ErrUnconstrainedSuppression
	}

	return nil
}

// Matches reports whether this suppression applies to a match on the given
// page URL.
func (s *Suppression) Matches(pageURL string, m rule.Match) bool {
	if s.RuleID != "" && s.RuleID != m.RuleID {
		return false
	}
	if !containsFold(pageURL, s.URLContains) {
		return false
	}
	if !containsFold(m.Snippet, s.SnippetContains) {
		return false
	}
	if !containsFold(m.Text, s.MatchContains) {
		return false
	}

	return true
}

// containsFold is a case-insensitive substring check. An empty needle always
// matches, so unset constraints hold vacuously.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}

	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
