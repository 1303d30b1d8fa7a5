package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/partnerwatch/ppscan/pkg/extract"
)

func TestText(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  string
	}{
		"plain paragraph": {
			input: `<html><body><p>Upgrade offers personal loans.</p></body></html>`,
			want:  "Upgrade offers personal loans.",
		},
		"script and style dropped": {
			input: `<html><head><style>p { color: red }</style></head>` +
				`<body><script>var apr = "9.99% APR";</script><p>Visible text only.</p></body></html>`,
			want: "Visible text only.",
		},
		"chrome elements dropped": {
			input: `<html><body><nav>Home | Loans</nav><header>Site header</header>` +
				`<p>Main content.</p><aside>Related links</aside><footer>Copyright</footer></body></html>`,
			want: "Main content.",
		},
		"whitespace normalized": {
			input: "<html><body><p>rates\n\n\tvary   based on\ncreditworthiness</p></body></html>",
			want:  "rates vary based on creditworthiness",
		},
		"adjacent blocks separated": {
			input: `<html><body><div>no fees</div><div>personal loan</div></body></html>`,
			want:  "no fees personal loan",
		},
		"empty document": {
			input: "",
			want:  "",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, extract.Text(tc.input))
		})
	}
}

func TestTitle(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  string
	}{
		"simple title": {
			input: `<html><head><title>Upgrade Review 2026</title></head><body></body></html>`,
			want:  "Upgrade Review 2026",
		},
		"title with whitespace": {
			input: "<html><head><title>\n  Best Loans\t</title></head></html>",
			want:  "Best Loans",
		},
		"no title": {
			input: `<html><body><h1>Heading, not title</h1></body></html>`,
			want:  "",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, extract.Title(tc.input))
		})
	}
}
