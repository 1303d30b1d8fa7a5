package rule

import "regexp"

// evaluator is the closed set of rule kind behaviors. One variant exists per
// [Kind]; the compiler in [Rule.Compile] is the only constructor.
type evaluator interface {
	evaluate(text string) []Match
}

type baseEval struct {
	ruleID       string
	primary      []*regexp.Regexp
	companion    []*regexp.Regexp
	window       int
	snippetChars int
}

func (b *baseEval) match(text string, sp Span) Match {
	return Match{
		RuleID:  b.ruleID,
		Text:    text[sp.Start:sp.End],
		Snippet: snippetAround(text, sp.Start, sp.End, b.snippetChars),
		Start:   sp.Start,
		End:     sp.End,
	}
}

// patternEval emits a match for every occurrence of every primary pattern.
type patternEval struct {
	baseEval
}

func (e *patternEval) evaluate(text string) []Match {
	var matches []Match

	for _, re := range e.primary {
		for _, sp := range FindAll(re, text) {
			matches = append(matches, e.match(text, sp))
		}
	}

	return matches
}

// qualifierRequiredEval emits a match for every primary occurrence that has
// no companion occurrence within the window.
type qualifierRequiredEval struct {
	baseEval
}

func (e *qualifierRequiredEval) evaluate(text string) []Match {
	var matches []Match

	for _, re := range e.primary {
		for _, sp := range FindAll(re, text) {
			if _, ok := Nearby(text, sp, e.companion, e.window); ok {
				continue
			}

			matches = append(matches, e.match(text, sp))
		}
	}

	return matches
}

// nearEval emits a match for every primary occurrence that has a companion
// occurrence within the window.
type nearEval struct {
	baseEval
}

func (e *nearEval) evaluate(text string) []Match {
	var matches []Match

	for _, re := range e.primary {
		for _, sp := range FindAll(re, text) {
			if _, ok := Nearby(text, sp, e.companion, e.window); !ok {
				continue
			}

			matches = append(matches, e.match(text, sp))
		}
	}

	return matches
}

// triggerPlusQualifierEval emits a match for every trigger occurrence with a
// companion occurrence within the window. The snippet spans from the earlier
// occurrence to the later one, so reports show both halves of the pairing.
type triggerPlusQualifierEval struct {
	baseEval
}

func (e *triggerPlusQualifierEval) evaluate(text string) []Match {
	var matches []Match

	for _, re := range e.primary {
		for _, sp := range FindAll(re, text) {
			companion, ok := Nearby(text, sp, e.companion, e.window)
			if !ok {
				continue
			}

			span := Span{
				Start: min(sp.Start, companion.Start),
				End:   max(sp.End, companion.End),
			}

			m := Match{
				RuleID:  e.ruleID,
				Text:    text[sp.Start:sp.End],
				Snippet: snippetAround(text, span.Start, span.End, e.snippetChars),
				Start:   sp.Start,
				End:     sp.End,
			}
			matches = append(matches, m)
		}
	}

	return matches
}
