// Package report renders scan results as CSV and HTML reports and writes
// per-page evidence files.
package report

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// Run identifies one scan run. The ID ties report rows and evidence files
// from the same run together.
type Run struct {
	// StartedAt is when the run began.
	StartedAt time.Time
	// ID is the run identifier, e.g. "20260830_1a2b3c4d".
	ID string
}

// NewRun creates a [Run] starting now.
func NewRun(now time.Time) Run {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)

	return Run{
		ID:        now.UTC().Format("20060102") + "_" + hex.EncodeToString(suffix),
		StartedAt: now,
	}
}

// SafeFilename converts a URL or title into a filesystem-safe file stem.
// The result is lowercase, uses underscores for anything outside [a-z0-9],
// and is capped so evidence paths stay short.
func SafeFilename(s string) string {
	const maxLen = 80

	var sb strings.Builder

	lastUnderscore := false

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)

			lastUnderscore = false
		default:
			if !lastUnderscore {
				sb.WriteByte('_')
			}

			lastUnderscore = true
		}

		if sb.Len() >= maxLen {
			break
		}
	}

	return strings.Trim(sb.String(), "_")
}
