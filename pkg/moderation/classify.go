package moderation

import "strings"

// Tier is the classification bucket for why content was rejected.
type Tier string

const (
	TierKeyword Tier = "tier1_keyword"
	TierLink    Tier = "tier2_link"
	TierAI      Tier = "tier3_ai_violation"
	TierOther   Tier = "other"
)

// Reason codes carried on the wire by rejection responses.
const (
	ReasonKeywordMatch  = "tier1_keyword_match"
	ReasonMaliciousLink = "tier2_malicious_link"
	ReasonAIViolation   = "tier3_ai_violation"
)

// RejectionError is returned by the messaging service when content is
// refused by the moderation layer. Reason is one of the fixed codes above
// (or empty/unknown); Message is human-readable.
type RejectionError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *RejectionError) Error() string {
	if e.Reason != "" {
		return "moderation rejected (" + e.Reason + "): " + e.Message
	}
	return "moderation rejected: " + e.Message
}

// Classify maps a rejection's reason code onto a Tier. Matching is by
// exact code or code substring; when the code is absent or unknown it
// falls back to scanning the free-text message for a few phrases the
// backend is known to emit. The fallback is best-effort: wording changes
// upstream will land in TierOther rather than misclassify.
func Classify(reason, message string) Tier {
	r := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case r == ReasonKeywordMatch, strings.Contains(r, "tier1"), strings.Contains(r, "keyword"):
		return TierKeyword
	case r == ReasonMaliciousLink, strings.Contains(r, "tier2"), strings.Contains(r, "link"):
		return TierLink
	case r == ReasonAIViolation, strings.Contains(r, "tier3"), strings.Contains(r, "ai_violation"):
		return TierAI
	}
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "violates"):
		return TierAI
	case strings.Contains(m, "prohibited"), strings.Contains(m, "blocked"):
		return TierKeyword
	}
	return TierOther
}

// SeverityLabel buckets a numeric severity for display and filtering:
// 0 -> Safe, 1-2 -> Low, 3-4 -> Medium, 5+ -> High.
func SeverityLabel(severity int) string {
	switch {
	case severity <= 0:
		return "Safe"
	case severity <= 2:
		return "Low"
	case severity <= 4:
		return "Medium"
	default:
		return "High"
	}
}
