package rule

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/partnerwatch/ppscan/pkg/expr"
)

// Kind selects the evaluator variant for a rule.
type Kind string

const (
	// KindPattern flags every occurrence of any listed pattern.
	KindPattern Kind = "pattern"
	// KindQualifierRequired flags pattern occurrences that lack a nearby
	// qualifier phrase, e.g. an APR mention without a rate-variability
	// disclaimer in range.
	KindQualifierRequired Kind = "qualifier_required"
	// KindNear flags pattern occurrences that have a qualifier phrase nearby,
	// modeling risky term co-occurrence.
	KindNear Kind = "near"
	// KindTriggerPlusQualifier flags trigger occurrences with a distinct
	// qualifier nearby; the snippet spans from the earlier to the later
	// occurrence.
	KindTriggerPlusQualifier Kind = "trigger_plus_qualifier"
)

// ValidKinds contains all rule kinds accepted by policy validation.
var ValidKinds = []Kind{
	KindPattern,
	KindQualifierRequired,
	KindNear,
	KindTriggerPlusQualifier,
}

// Severity is the static severity attached to findings from a rule.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ValidSeverities contains all severities accepted by policy validation.
var ValidSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

// Match is a raw detection: one firing of one rule on one page, before the
// context gate and suppressions are applied.
type Match struct {
	RuleID  string
	Text    string
	Snippet string
	Start   int
	End     int
}

// Windows carries the default window sizes from the policy scan settings.
type Windows struct {
	// Snippet is the approximate snippet length in characters.
	Snippet int
	// Qualifier is the default qualifier search window in characters.
	Qualifier int
	// Proximity is the default co-occurrence window in characters.
	Proximity int
}

// PageContext is the page metadata available to rule guard expressions.
type PageContext struct {
	URL    string
	Title  string
	Status int
}

// Rule is one detection unit. Its compiled state is populated by [Rule.Compile]
// at policy load time; evaluation panics on an uncompiled rule.
//
// Guard expressions (`when`) are CEL, see [expr.NewPageEnvironment] for the
// available variables.
type Rule struct {
	eval        evaluator
	whenProgram cel.Program

	// ID uniquely identifies the rule. It is the join key for suppressions
	// and must be stable across runs.
	ID string `json:"id" jsonschema:"title=ID"`
	// Kind selects the detection behavior.
	Kind Kind `json:"kind" jsonschema:"title=Kind"`
	// Severity is attached to findings produced by this rule.
	Severity Severity `json:"severity,omitempty" jsonschema:"title=Severity"`
	// Taxonomy is a free-form category label carried into reports.
	Taxonomy string `json:"taxonomy,omitempty" jsonschema:"title=Taxonomy"`
	// Recommendation is shown in findings produced by this rule.
	Recommendation string `json:"recommendation,omitempty" jsonschema:"title=Recommendation"`
	// When is an optional CEL guard over page metadata. When it evaluates to
	// false the rule is skipped for that page.
	When string `json:"when,omitempty" jsonschema:"title=When"`
	// Patterns are the primary regular expressions, matched case-insensitively.
	Patterns []string `json:"patterns,omitempty" jsonschema:"title=Patterns"`
	// QualifierPatterns are literal companion regular expressions.
	QualifierPatterns []string `json:"qualifierPatterns,omitempty" jsonschema:"title=Qualifier Patterns"`
	// QualifierGroups name qualifier phrase lists declared in the policy.
	QualifierGroups []string `json:"qualifierGroups,omitempty" jsonschema:"title=Qualifier Groups"`
	// WindowChars overrides the default window size for this rule.
	WindowChars int `json:"windowChars,omitempty" jsonschema:"title=Window Chars"`
}

// New creates a compiled rule. Intended for tests and programmatic policies;
// YAML-loaded rules are compiled by policy validation.
func New(r *Rule, qualifiers map[string][]string, w Windows) (*Rule, error) {
	err := r.Compile(qualifiers, w)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// MustNew creates a compiled rule and panics if there's an error.
func MustNew(r *Rule, qualifiers map[string][]string, w Windows) *Rule {
	r, err := New(r, qualifiers, w)
	if err != nil {
		panic(err)
	}

	return r
}

// Compile validates the rule and builds its evaluator variant. The qualifiers
// map resolves [Rule.QualifierGroups] to phrase lists. All pattern and guard
// compilation errors surface here, before any page is evaluated.
func (r *Rule) Compile(qualifiers map[string][]string, w Windows) error {
	if r.ID == "" {
		return errors.New("rule has an empty id")
	}

	if r.Severity == "" {
		r.Severity = SeverityMedium
	} else if !slices.Contains(ValidSeverities, r.Severity) {
		return fmt.Errorf("rule %q: unknown severity %q", r.ID, r.Severity)
	}

	primary, err := compilePatterns(r.Patterns)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}

	companion, err := r.compileQualifiers(qualifiers)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}

	err = r.compileWhen()
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}

	if len(primary) == 0 {
		return fmt.Errorf("rule %q: no patterns declared", r.ID)
	}

	base := baseEval{
		ruleID:       r.ID,
		primary:      primary,
		companion:    companion,
		snippetChars: w.Snippet,
	}

	switch r.Kind {
	case KindPattern:
		r.eval = &patternEval{baseEval: base}

	case KindQualifierRequired:
		if len(companion) == 0 {
			return fmt.Errorf("rule %q: kind %s requires at least one qualifier pattern", r.ID, r.Kind)
		}

		base.window = windowOr(r.WindowChars, w.Qualifier)
		r.eval = &qualifierRequiredEval{baseEval: base}

	case KindNear:
		if len(companion) == 0 {
			return fmt.Errorf("rule %q: kind %s requires at least one qualifier pattern", r.ID, r.Kind)
		}

		base.window = windowOr(r.WindowChars, w.Proximity)
		r.eval = &nearEval{baseEval: base}

	case KindTriggerPlusQualifier:
		if len(companion) == 0 {
			return fmt.Errorf("rule %q: kind %s requires at least one qualifier pattern", r.ID, r.Kind)
		}

		base.window = windowOr(r.WindowChars, w.Qualifier)
		r.eval = &triggerPlusQualifierEval{baseEval: base}

	default:
		return fmt.Errorf("rule %q: unknown kind %q", r.ID, r.Kind)
	}

	return nil
}

// Evaluate runs the compiled rule against one page's text.
// Empty text yields no matches.
func (r *Rule) Evaluate(text string) []Match {
	if r.eval == nil {
		panic(errors.New("rule not compiled"))
	}

	if text == "" {
		return nil
	}

	return r.eval.evaluate(text)
}

// AppliesTo evaluates the rule's guard expression against page metadata.
// Rules without a guard apply to every page. A guard that fails to evaluate
// or returns a non-boolean is treated as a non-match.
func (r *Rule) AppliesTo(page PageContext) bool {
	if r.When == "" {
		return true
	}

	if r.whenProgram == nil {
		panic(errors.New("rule not compiled"))
	}

	result, _, err := r.whenProgram.Eval(map[string]any{
		"url":    page.URL,
		"status": page.Status,
		"title":  page.Title,
	})
	if err != nil {
		return false
	}

	if boolVal, ok := result.Value().(bool); ok {
		return boolVal
	}

	return false
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s (%s, %s)", r.ID, r.Kind, r.Severity)
}

func (r *Rule) compileQualifiers(qualifiers map[string][]string) ([]*regexp.Regexp, error) {
	patterns := slices.Clone(r.QualifierPatterns)

	for _, group := range r.QualifierGroups {
		phrases, ok := qualifiers[group]
		if !ok {
			return nil, fmt.Errorf("unknown qualifier group %q", group)
		}

		for _, phrase := range phrases {
			if phrase == "" {
				continue
			}

			patterns = append(patterns, regexp.QuoteMeta(phrase))
		}
	}

	return compilePatterns(patterns)
}

func (r *Rule) compileWhen() error {
	if r.When == "" || r.whenProgram != nil {
		return nil
	}

	env, err := expr.NewPageEnvironment()
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}

	program, err := env.Compile(r.When)
	if err != nil {
		return fmt.Errorf("compile guard expression: %w", err)
	}

	r.whenProgram = program

	return nil
}

// compilePatterns compiles regexes with case-insensitive matching.
// Empty entries are rejected rather than skipped, so a typo in the policy
// cannot silently disable a pattern.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		if p == "" {
			return nil, errors.New("empty pattern")
		}

		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}

		compiled = append(compiled, re)
	}

	return compiled, nil
}

func windowOr(override, fallback int) int {
	if override > 0 {
		return override
	}

	return fallback
}
