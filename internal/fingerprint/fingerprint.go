// Package fingerprint computes stable identities for job listings so the
// same real posting reported by different boards collapses into one record.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/apply-cli/internal/model"
)

// descPrefixLen bounds how much of the description participates in
// normalization output. The prefix is carried for diagnostics only; identity
// is keyed on (title, company, location) so reposts with drifted wording do
// not fork into a second opportunity.
const descPrefixLen = 200

// Identify returns the deterministic fingerprint for a raw listing.
// Listings that normalize to the same (title, company, location) produce the
// same fingerprint regardless of source, posting date, or description drift.
func Identify(l model.RawListing) string {
	key := strings.Join([]string{
		Normalize(l.Title),
		Normalize(l.Company),
		Normalize(l.Location),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases, NFKC-folds, and collapses whitespace and
// punctuation so cosmetic differences between boards disappear.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// DescriptionPrefix returns the normalized leading slice of a description,
// recorded alongside the opportunity for repost diagnostics.
func DescriptionPrefix(desc string) string {
	n := Normalize(desc)
	if len(n) > descPrefixLen {
		n = n[:descPrefixLen]
	}
	return strings.TrimSpace(n)
}

// Merge folds a re-discovered listing into the existing opportunity: the
// incoming source joins the source set and the earliest posted date wins.
// Content fields stay as first recorded. The merged copy is returned; the
// caller decides persistence.
func Merge(existing model.Opportunity, incoming model.RawListing) model.Opportunity {
	if !existing.HasSource(incoming.Source) {
		existing.Sources = append(existing.Sources, incoming.Source)
	}
	if !incoming.PostedDate.IsZero() &&
		(existing.PostedDate.IsZero() || incoming.PostedDate.Before(existing.PostedDate)) {
		existing.PostedDate = incoming.PostedDate
	}
	return existing
}
