package moderation

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"

	"modchat/pkg/logger"
	"modchat/pkg/models"
)

// Decision is the engine's verdict on a piece of content.
type Decision string

const (
	// DecisionAllow passes the content through untouched.
	DecisionAllow Decision = "allow"
	// DecisionFlag accepts the content but queues it for human review.
	DecisionFlag Decision = "flag"
	// DecisionReject refuses the content outright.
	DecisionReject Decision = "reject"
)

// Blocklist is an administrator-maintained list of exact terms that always
// trigger rejection regardless of category scoring.
type Blocklist struct {
	Name  string   `json:"name" yaml:"name"`
	Terms []string `json:"terms" yaml:"terms"`
}

// Settings is the runtime-editable moderation configuration exposed via
// the admin config endpoints and persisted in the store.
type Settings struct {
	Blocklists []Blocklist `json:"blocklists" yaml:"blocklists"`
	// Thresholds maps category name to the severity at which content is
	// rejected. Categories missing from the map use DefaultThreshold.
	Thresholds       map[string]int `json:"thresholds" yaml:"thresholds"`
	DefaultThreshold int            `json:"default_threshold" yaml:"default_threshold"`
	// FlagThreshold is the severity at which accepted content is still
	// routed to the review queue. Must be below the reject thresholds to
	// have any effect.
	FlagThreshold int `json:"flag_threshold" yaml:"flag_threshold"`
	// MaliciousHosts are URL hosts that reject on sight.
	MaliciousHosts []string `json:"malicious_hosts" yaml:"malicious_hosts"`
}

// DefaultSettings returns the settings used until an admin stores their own.
func DefaultSettings() Settings {
	return Settings{
		DefaultThreshold: 5,
		FlagThreshold:    3,
	}
}

// Scorer assigns per-category severities to content. The production
// deployment plugs an external classifier in here; LexiconScorer is the
// built-in fallback.
type Scorer interface {
	Score(ctx context.Context, content string) ([]models.CategoryScore, error)
}

// Result is the full outcome of an engine check. Categories and Blocklist
// are recorded on the queue item when the content is flagged or rejected.
type Result struct {
	Decision   Decision
	Reason     string
	Message    string
	Categories []models.CategoryScore
	Blocklist  []models.BlocklistMatch
}

// Engine evaluates message content against blocklists, link heuristics
// and the category scorer, in that order. Settings may be swapped at
// runtime; checks see a consistent snapshot.
type Engine struct {
	mu       sync.RWMutex
	settings Settings
	scorer   Scorer
}

// NewEngine builds an engine with the given settings. A nil scorer falls
// back to the lexicon scorer.
func NewEngine(s Settings, scorer Scorer) *Engine {
	if scorer == nil {
		scorer = NewLexiconScorer()
	}
	return &Engine{settings: s, scorer: scorer}
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// SetSettings replaces the engine settings.
func (e *Engine) SetSettings(s Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	logger.Info("moderation_settings_updated",
		"blocklists", len(s.Blocklists), "flag_threshold", s.FlagThreshold)
}

var urlRe = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)

// Check runs the tiered evaluation. Blocklist hits and malicious links
// reject immediately; scorer output rejects at or above the category
// threshold and flags at or above the flag threshold.
func (e *Engine) Check(ctx context.Context, content string) Result {
	e.mu.RLock()
	s := e.settings
	e.mu.RUnlock()

	if matches := matchBlocklists(s.Blocklists, content); len(matches) > 0 {
		return Result{
			Decision:  DecisionReject,
			Reason:    ReasonKeywordMatch,
			Message:   "message contains a blocked term",
			Blocklist: matches,
		}
	}

	if host := firstMaliciousHost(s.MaliciousHosts, content); host != "" {
		return Result{
			Decision: DecisionReject,
			Reason:   ReasonMaliciousLink,
			Message:  "message links to a blocked destination: " + host,
		}
	}

	scores, err := e.scorer.Score(ctx, content)
	if err != nil {
		// Scoring is advisory; never block delivery on scorer failure.
		logger.Warn("scorer_failed", "error", err)
		return Result{Decision: DecisionAllow}
	}
	flagged := false
	for i := range scores {
		th, ok := s.Thresholds[scores[i].Category]
		if !ok {
			th = s.DefaultThreshold
		}
		if th <= 0 {
			th = DefaultSettings().DefaultThreshold
		}
		scores[i].Threshold = th
		if scores[i].Severity >= th {
			return Result{
				Decision:   DecisionReject,
				Reason:     ReasonAIViolation,
				Message:    "message violates the " + scores[i].Category + " policy",
				Categories: scores,
			}
		}
		if s.FlagThreshold > 0 && scores[i].Severity >= s.FlagThreshold {
			flagged = true
		}
	}
	if flagged {
		return Result{Decision: DecisionFlag, Categories: scores}
	}
	return Result{Decision: DecisionAllow, Categories: scores}
}

// matchBlocklists scans content for exact terms, case-insensitively, and
// returns every list/term pair that hits.
func matchBlocklists(lists []Blocklist, content string) []models.BlocklistMatch {
	lc := strings.ToLower(content)
	var out []models.BlocklistMatch
	for _, bl := range lists {
		for _, term := range bl.Terms {
			t := strings.ToLower(strings.TrimSpace(term))
			if t == "" {
				continue
			}
			if strings.Contains(lc, t) {
				out = append(out, models.BlocklistMatch{List: bl.Name, Term: term})
			}
		}
	}
	return out
}

// firstMaliciousHost returns the host of the first URL in content that is
// on the malicious list or addresses a raw IP, or "" when clean.
func firstMaliciousHost(malicious []string, content string) string {
	for _, raw := range urlRe.FindAllString(content, -1) {
		host := hostOf(raw)
		if host == "" {
			continue
		}
		if net.ParseIP(host) != nil {
			return host
		}
		for _, m := range malicious {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" {
				continue
			}
			if host == m || strings.HasSuffix(host, "."+m) {
				return host
			}
		}
	}
	return ""
}

func hostOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	for _, sep := range []byte{'/', '?', '#'} {
		if i := strings.IndexByte(rest, sep); i >= 0 {
			rest = rest[:i]
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		rest = rest[i+1:]
	}
	if h, _, err := net.SplitHostPort(rest); err == nil {
		rest = h
	}
	return strings.ToLower(rest)
}
