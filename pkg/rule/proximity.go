package rule

import (
	"regexp"
	"unicode/utf8"
)

// Span marks one pattern occurrence, as byte offsets into UTF-8 text.
// Distances between spans are measured in characters, not bytes, so window
// sizes behave the same on pages with curly quotes or accented text.
type Span struct {
	Start int
	End   int
}

// FindAll returns all non-overlapping occurrences of re in text.
func FindAll(re *regexp.Regexp, text string) []Span {
	idxs := re.FindAllStringIndex(text, -1)
	if len(idxs) == 0 {
		return nil
	}

	spans := make([]Span, 0, len(idxs))
	for _, idx := range idxs {
		spans = append(spans, Span{Start: idx[0], End: idx[1]})
	}

	return spans
}

// Nearby reports whether any occurrence of any companion pattern lies within
// window characters of the primary span, measuring the distance between the
// nearest edges of the two occurrences. If so, it also returns the span of
// the nearest such occurrence. A companion that never occurs can never be
// nearby, regardless of window size.
func Nearby(text string, primary Span, companions []*regexp.Regexp, window int) (Span, bool) {
	var nearest Span

	nearestDist := -1

	for _, re := range companions {
		for _, c := range FindAll(re, text) {
			d := edgeDistance(text, primary, c)
			if d > window {
				continue
			}
			if nearestDist == -1 || d < nearestDist {
				nearestDist = d
				nearest = c
			}
		}
	}

	return nearest, nearestDist != -1
}

// edgeDistance is the character distance between the nearest edges of two
// spans, counted as runes in the gap text. Overlapping spans have distance
// zero.
func edgeDistance(text string, a, b Span) int {
	switch {
	case b.End <= a.Start:
		return utf8.RuneCountInString(text[b.End:a.Start])
	case b.Start >= a.End:
		return utf8.RuneCountInString(text[a.End:b.Start])
	default:
		return 0
	}
}

// snippetAround extracts a snippet of roughly snippetChars characters around
// the [start, end) span, with ellipsis markers when the snippet is truncated.
// The cut points land on rune boundaries so the snippet is always valid UTF-8.
func snippetAround(text string, start, end, snippetChars int) string {
	if text == "" || snippetChars <= 0 {
		return ""
	}

	half := snippetChars / 2

	s := runesBefore(text, start, half)

	e := runesAfter(text, s, snippetChars)
	if e < end {
		e = min(len(text), end)
	}

	out := text[s:e]
	if s > 0 {
		out = "…" + out
	}
	if e < len(text) {
		out += "…"
	}

	return out
}

// runesBefore returns the byte offset n runes before from, stopping at the
// start of text.
func runesBefore(text string, from, n int) int {
	for ; n > 0 && from > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}

	return from
}

// runesAfter returns the byte offset n runes after from, stopping at the end
// of text.
func runesAfter(text string, from, n int) int {
	for ; n > 0 && from < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[from:])
		from += size
	}

	return from
}
