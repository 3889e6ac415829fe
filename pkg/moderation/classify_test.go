package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyReasonCodes(t *testing.T) {
	cases := []struct {
		reason  string
		message string
		want    Tier
	}{
		{ReasonKeywordMatch, "", TierKeyword},
		{ReasonMaliciousLink, "", TierLink},
		{ReasonAIViolation, "", TierAI},
		{"TIER1_KEYWORD_MATCH", "", TierKeyword},
		{"tier2_something", "", TierLink},
		{"custom_keyword_rule", "", TierKeyword},
		{"bad_link_detected", "", TierLink},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.reason, tc.message), "reason=%q", tc.reason)
	}
}

func TestClassifyMessageFallback(t *testing.T) {
	cases := []struct {
		message string
		want    Tier
	}{
		{"This content violates our community guidelines", TierAI},
		{"Use of prohibited terms", TierKeyword},
		{"Your message was blocked", TierKeyword},
		{"Something went wrong", TierOther},
		{"", TierOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify("", tc.message), "message=%q", tc.message)
	}
}

func TestSeverityLabel(t *testing.T) {
	cases := []struct {
		severity int
		want     string
	}{
		{0, "Safe"},
		{1, "Low"},
		{2, "Low"},
		{3, "Medium"},
		{4, "Medium"},
		{5, "High"},
		{9, "High"},
		{-1, "Safe"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, SeverityLabel(tc.severity), "severity=%d", tc.severity)
	}
}

func TestRejectionErrorString(t *testing.T) {
	e := &RejectionError{Reason: ReasonKeywordMatch, Message: "blocked term"}
	require.Contains(t, e.Error(), ReasonKeywordMatch)
	require.Contains(t, e.Error(), "blocked term")

	bare := &RejectionError{Message: "no reason given"}
	require.Equal(t, "moderation rejected: no reason given", bare.Error())
}
