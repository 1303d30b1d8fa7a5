package scan

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/partnerwatch/ppscan/pkg/rule"
)

// GateMode selects how the context gate ties matches to the subject.
type GateMode string

const (
	// GateModePage keeps a match if the subject appears anywhere in the page
	// text. This is the historical behavior and the default; it cannot tell
	// "subject is the topic here" from "subject is mentioned elsewhere on the
	// page".
	GateModePage GateMode = "page"
	// GateModeMatch keeps a match only if a subject variant occurs within the
	// configured window of the match offsets.
	GateModeMatch GateMode = "match"
)

// ValidGateModes contains all gate modes accepted by policy validation.
var ValidGateModes = []GateMode{GateModePage, GateModeMatch}

// ContextGate filters raw matches to those contextually tied to the subject
// organization. Both modes are explicit configuration; a policy migration
// from page mode to match mode changes results and must be deliberate.
type ContextGate struct {
	variants []*regexp.Regexp
	mode     GateMode
	window   int
	require  bool
}

// GateConfig configures a [ContextGate].
type GateConfig struct {
	// SubjectVariants are the subject's name and aliases, matched literally
	// and case-insensitively.
	SubjectVariants []string
	// Mode selects page-level or match-proximity gating.
	Mode GateMode
	// WindowChars is the match-proximity window. Ignored in page mode.
	WindowChars int
	// Require enables the gate. When false all matches pass.
	Require bool
}

// NewContextGate compiles the subject variants into a gate.
func NewContextGate(cfg GateConfig) (*ContextGate, error) {
	if cfg.Mode == "" {
		cfg.Mode = GateModePage
	} else if !slices.Contains(ValidGateModes, cfg.Mode) {
		return nil, fmt.Errorf("unknown gate mode %q", cfg.Mode)
	}

	variants := make([]*regexp.Regexp, 0, len(cfg.SubjectVariants))

	for _, v := range cfg.SubjectVariants {
		if v == "" {
			continue
		}

		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(v))
		if err != nil {
			return nil, fmt.Errorf("compile subject variant %q: %w", v, err)
		}

		variants = append(variants, re)
	}

	return &ContextGate{
		variants: variants,
		mode:     cfg.Mode,
		window:   cfg.WindowChars,
		require:  cfg.Require,
	}, nil
}

// Mode returns the configured gate mode.
func (g *ContextGate) Mode() GateMode {
	return g.mode
}

// PageEligible reports whether a page can produce findings at all. In page
// mode this is the whole gate; in match mode pages are always eligible and
// gating happens per match.
func (g *ContextGate) PageEligible(text string) bool {
	if !g.require || len(g.variants) == 0 {
		return true
	}

	if g.mode == GateModeMatch {
		return true
	}

	for _, re := range g.variants {
		if re.MatchString(text) {
			return true
		}
	}

	return false
}

// Keep reports whether one match survives the gate.
func (g *ContextGate) Keep(text string, m rule.Match) bool {
	if !g.require || len(g.variants) == 0 {
		return true
	}

	if g.mode == GateModePage {
		// Page eligibility already established subject presence.
		return true
	}

	_, ok := rule.Nearby(text, rule.Span{Start: m.Start, End: m.End}, g.variants, g.window)

	return ok
}
