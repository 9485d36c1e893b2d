package review

import (
	"regexp"
	"strings"
)

// Disposition is the merge decision stated by the decision stage.
type Disposition string

const (
	Approved               Disposition = "Approved"
	ApprovedWithConditions Disposition = "Approved with conditions"
	RequestChanges         Disposition = "Request Changes"
	Escalated              Disposition = "Escalated"
	DispositionUnknown     Disposition = Unknown
)

// Patterns are listed in preference order: a blocking disposition anywhere
// in the searched text beats a conditional approval, which beats a plain one.
var dispositionPatterns = []struct {
	d    Disposition
	rank int
	re   *regexp.Regexp
}{
	{RequestChanges, 0, regexp.MustCompile(`\b(?:request(?:ing|ed)? changes|changes requested|disapproved|rejected)\b`)},
	{Escalated, 0, regexp.MustCompile(`\b(?:escalated|escalate to)\b`)},
	{ApprovedWithConditions, 1, regexp.MustCompile(`\b(?:approved with conditions|conditionally approved)\b`)},
	{Approved, 2, regexp.MustCompile(`\bapproved\b`)},
}

// negated matches a negation ending right before a phrase, allowing one
// word in between ("not approved", "cannot be approved", "not yet approved").
var negated = regexp.MustCompile(`\b(?:not|no|never|cannot|can't|won't|isn't|without)\s+(?:\w+\s+)?$`)

// DetectDisposition finds the disposition stated in free text. A line that
// mentions "decision" is searched first, then the whole text. A negated
// approval counts as Request Changes and a negated objection is ignored.
func DetectDisposition(text string) Disposition {
	lower := strings.ToLower(text)
	for _, line := range strings.Split(lower, "\n") {
		if strings.Contains(line, "decision") {
			if d, ok := preferredDisposition(line); ok {
				return d
			}
		}
	}
	if d, ok := preferredDisposition(lower); ok {
		return d
	}
	return DispositionUnknown
}

func preferredDisposition(s string) (Disposition, bool) {
	best, bestRank, bestPos := DispositionUnknown, -1, -1
	consider := func(d Disposition, rank, pos int) {
		if bestRank < 0 || rank < bestRank || (rank == bestRank && pos < bestPos) {
			best, bestRank, bestPos = d, rank, pos
		}
	}
	for _, p := range dispositionPatterns {
		for _, loc := range p.re.FindAllStringIndex(s, -1) {
			if !negated.MatchString(s[:loc[0]]) {
				consider(p.d, p.rank, loc[0])
				continue
			}
			if p.rank > 0 {
				consider(RequestChanges, 0, loc[0])
			}
		}
	}
	return best, bestRank >= 0
}
