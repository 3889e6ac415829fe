package moderation

import (
	"context"
	"strings"
	"sync"

	"modchat/pkg/models"
)

// LexiconScorer is the built-in Scorer: a static term lexicon mapping
// words to category severities. It exists so the engine has deterministic
// scoring without an external classifier; deployments that have one plug
// it in via NewEngine.
type LexiconScorer struct {
	mu      sync.RWMutex
	lexicon map[string]models.CategoryScore
}

// NewLexiconScorer returns a scorer seeded with a small default lexicon.
func NewLexiconScorer() *LexiconScorer {
	s := &LexiconScorer{lexicon: map[string]models.CategoryScore{}}
	for term, cs := range defaultLexicon {
		s.lexicon[term] = cs
	}
	return s
}

var defaultLexicon = map[string]models.CategoryScore{
	"idiot":    {Category: "harassment", Severity: 2},
	"stupid":   {Category: "harassment", Severity: 2},
	"hate you": {Category: "harassment", Severity: 4},
	"kill":     {Category: "violence", Severity: 4},
	"hurt you": {Category: "violence", Severity: 6},
	"attack":   {Category: "violence", Severity: 2},
}

// SetTerm installs or overrides a lexicon entry.
func (s *LexiconScorer) SetTerm(term string, category string, severity int) {
	s.mu.Lock()
	s.lexicon[strings.ToLower(term)] = models.CategoryScore{Category: category, Severity: severity}
	s.mu.Unlock()
}

// Score reports, per category, the highest severity of any lexicon term
// found in the content. Categories with no hits are omitted.
func (s *LexiconScorer) Score(_ context.Context, content string) ([]models.CategoryScore, error) {
	lc := strings.ToLower(content)
	byCat := map[string]int{}
	var order []string
	s.mu.RLock()
	for term, cs := range s.lexicon {
		if !strings.Contains(lc, term) {
			continue
		}
		if cur, ok := byCat[cs.Category]; !ok {
			byCat[cs.Category] = cs.Severity
			order = append(order, cs.Category)
		} else if cs.Severity > cur {
			byCat[cs.Category] = cs.Severity
		}
	}
	s.mu.RUnlock()
	out := make([]models.CategoryScore, 0, len(order))
	for _, cat := range order {
		out = append(out, models.CategoryScore{Category: cat, Severity: byCat[cat]})
	}
	return out, nil
}
