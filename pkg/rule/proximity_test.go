package rule_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerwatch/ppscan/pkg/rule"
)

func TestFindAll(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`(?i)apr`)
	spans := rule.FindAll(re, "APR here, apr there")

	require.Len(t, spans, 2)
	assert.Equal(t, rule.Span{Start: 0, End: 3}, spans[0])
	assert.Equal(t, rule.Span{Start: 10, End: 13}, spans[1])

	assert.Nil(t, rule.FindAll(re, "nothing relevant"))
}

func TestNearby(t *testing.T) {
	t.Parallel()

	companions := []*regexp.Regexp{regexp.MustCompile(`rates vary`)}

	//                    0         1         2         3
	//                    0123456789012345678901234567890123456789
	const text = "9.99% APR applies. rates vary by credit."

	primary := rule.Span{Start: 6, End: 9} // "APR"

	// Gap between "APR" (end 9) and "rates vary" (start 19) is 10 chars.
	tcs := map[string]struct {
		window int
		want   bool
	}{
		"window larger than gap":  {window: 11, want: true},
		"window exactly the gap":  {window: 10, want: true},
		"window smaller than gap": {window: 9, want: false},
		"zero window":             {window: 0, want: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			span, ok := rule.Nearby(text, primary, companions, tc.window)
			assert.Equal(t, tc.want, ok)

			if tc.want {
				assert.Equal(t, rule.Span{Start: 19, End: 29}, span)
			}
		})
	}
}

func TestNearbyCountsCharacters(t *testing.T) {
	t.Parallel()

	companions := []*regexp.Regexp{regexp.MustCompile(`rates vary`)}

	// U+2019 is three bytes, so the gap is 40 characters but 120 bytes.
	text := "APR" + strings.Repeat("’", 40) + "rates vary"
	primary := rule.Span{Start: 0, End: 3}

	_, ok := rule.Nearby(text, primary, companions, 50)
	assert.True(t, ok, "40-character gap fits a 50-character window")

	_, ok = rule.Nearby(text, primary, companions, 40)
	assert.True(t, ok, "distance equal to the window matches")

	_, ok = rule.Nearby(text, primary, companions, 39)
	assert.False(t, ok)
}

func TestNearbyAbsentCompanion(t *testing.T) {
	t.Parallel()

	companions := []*regexp.Regexp{regexp.MustCompile(`rates vary`)}

	_, ok := rule.Nearby("APR with no disclaimer anywhere", rule.Span{Start: 0, End: 3}, companions, 1<<30)
	assert.False(t, ok, "a companion that never occurs is never nearby")
}

func TestNearbyOverlap(t *testing.T) {
	t.Parallel()

	companions := []*regexp.Regexp{regexp.MustCompile(`APR applies`)}

	// Overlapping spans have distance zero, so any window accepts them.
	_, ok := rule.Nearby("9.99% APR applies here", rule.Span{Start: 6, End: 9}, companions, 0)
	assert.True(t, ok)
}

func TestNearbyPicksNearest(t *testing.T) {
	t.Parallel()

	companions := []*regexp.Regexp{regexp.MustCompile(`vary`)}

	const text = "vary ... APR ... vary"

	span, ok := rule.Nearby(text, rule.Span{Start: 9, End: 12}, companions, 100)
	require.True(t, ok)
	assert.Equal(t, rule.Span{Start: 0, End: 4}, span, "ties broken toward the earlier occurrence")
}
