package safety

import (
	"regexp"
	"strings"

	"github.com/wolfman30/health-chat-api/internal/conversation"
)

// Classification is the outcome of scanning one user message.
type Classification struct {
	Emergency    bool       `json:"emergency"`
	Categories   []Category `json:"categories,omitempty"`
	MatchedTerms []string   `json:"matched_terms,omitempty"`
	// Ambiguous marks severity language without a lexicon hit. It never sets
	// Emergency on its own but raises the risk floor.
	Ambiguous bool `json:"ambiguous,omitempty"`
	// CarriedForward is set when the categories came from an earlier emergency
	// turn that the user reports is still going on.
	CarriedForward bool `json:"carried_forward,omitempty"`
}

// HasCategory reports whether c was matched.
func (c Classification) HasCategory(cat Category) bool {
	for _, got := range c.Categories {
		if got == cat {
			return true
		}
	}
	return false
}

// SelfHarm is shorthand for the crisis-line branch.
func (c Classification) SelfHarm() bool {
	return c.HasCategory(CategorySelfHarm)
}

// CategoryNames returns the categories as plain strings for storage.
func (c Classification) CategoryNames() []string {
	out := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, string(cat))
	}
	return out
}

// Classifier matches user text against a Lexicon. It is safe for concurrent use.
type Classifier struct {
	lexicon *Lexicon
}

func NewClassifier(lexicon *Lexicon) *Classifier {
	if lexicon == nil {
		panic("safety: lexicon cannot be nil")
	}
	return &Classifier{lexicon: lexicon}
}

// Lexicon returns the rule set the classifier was built with.
func (c *Classifier) Lexicon() *Lexicon { return c.lexicon }

var persistenceSignal = regexp.MustCompile(`\b(?:still|worse|again|not\s+better|hasn't\s+stopped|keeps|continuing|same)\b`)

// Classify scans text for emergency signals. prior is the conversation so far,
// oldest first; it is only used to carry an ongoing emergency forward.
func (c *Classifier) Classify(text string, prior []conversation.Turn) Classification {
	norm := normalize(text)
	if norm == "" {
		return Classification{}
	}

	hits := make(map[Category]bool)
	var terms []string
	seenTerm := make(map[string]struct{})
	addTerm := func(term string) {
		if _, ok := seenTerm[term]; ok {
			return
		}
		seenTerm[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, cat := range Categories() {
		rules := c.lexicon.rules[cat]
		for _, phrase := range rules.phrases {
			if strings.Contains(norm, phrase) {
				hits[cat] = true
				addTerm(phrase)
			}
		}
		for _, p := range rules.patterns {
			if p.re.MatchString(norm) {
				hits[cat] = true
				addTerm(p.label)
			}
		}
	}

	result := Classification{}
	if len(hits) == 0 {
		if carried := carryForward(norm, prior); len(carried) > 0 {
			for _, cat := range carried {
				hits[cat] = true
			}
			result.CarriedForward = true
			addTerm("ongoing emergency from earlier message")
		}
	}

	for _, cat := range Categories() {
		if hits[cat] {
			result.Categories = append(result.Categories, cat)
		}
	}
	result.Emergency = len(result.Categories) > 0
	result.MatchedTerms = terms

	if !result.Emergency {
		for _, re := range c.lexicon.ambiguity {
			if re.MatchString(norm) {
				result.Ambiguous = true
				break
			}
		}
	}
	return result
}

func carryForward(norm string, prior []conversation.Turn) []Category {
	if !persistenceSignal.MatchString(norm) {
		return nil
	}
	for i := len(prior) - 1; i >= 0; i-- {
		turn := prior[i]
		if turn.Role != conversation.RoleUser {
			continue
		}
		if !turn.Emergency {
			return nil
		}
		var cats []Category
		for _, name := range turn.Categories {
			if cat := Category(name); validCategory(cat) {
				cats = append(cats, cat)
			}
		}
		if len(cats) == 0 {
			cats = []Category{CategoryOtherLifeThreatening}
		}
		return cats
	}
	return nil
}
