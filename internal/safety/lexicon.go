// Package safety holds the request-side emergency classifier and the
// response-side content policy.
package safety

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is an emergency category. Any match marks the turn as an emergency.
type Category string

const (
	CategorySelfHarm             Category = "self_harm"
	CategoryAnaphylaxis          Category = "anaphylaxis"
	CategoryCardiacRespiratory   Category = "cardiac_respiratory"
	CategoryUnconsciousTrauma    Category = "unconsciousness_trauma"
	CategoryPoisoningOverdose    Category = "poisoning_overdose"
	CategoryAcuteSeverePain      Category = "acute_severe_pain"
	CategoryOtherLifeThreatening Category = "other_life_threatening"
)

// Categories lists every category in reporting order.
func Categories() []Category {
	return []Category{
		CategorySelfHarm,
		CategoryAnaphylaxis,
		CategoryCardiacRespiratory,
		CategoryUnconsciousTrauma,
		CategoryPoisoningOverdose,
		CategoryAcuteSeverePain,
		CategoryOtherLifeThreatening,
	}
}

func validCategory(c Category) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// DefaultLexiconVersion identifies the built-in rule set in logs.
const DefaultLexiconVersion = "2026.10-en"

type lexiconPattern struct {
	re    *regexp.Regexp
	label string
}

type categoryRules struct {
	phrases  []string
	patterns []lexiconPattern
}

// Lexicon is the immutable emergency rule set: literal phrases and regex
// variants per category, plus the ambiguity signals. Build it once at start-up
// and share it.
type Lexicon struct {
	version   string
	rules     map[Category]categoryRules
	ambiguity []*regexp.Regexp
}

// Version reports which rule set is in use.
func (l *Lexicon) Version() string { return l.version }

// Phrases returns a copy of the literal phrases for c.
func (l *Lexicon) Phrases(c Category) []string {
	return append([]string(nil), l.rules[c].phrases...)
}

type rawPattern struct {
	pattern string
	label   string
}

type rawCategory struct {
	phrases  []string
	patterns []rawPattern
}

var defaultRules = map[Category]rawCategory{
	CategorySelfHarm: {
		phrases: []string{
			"suicidal thoughts", "suicidal thought", "suicidal", "suicide",
			"self-harm", "self harm", "hurt myself", "harm myself", "kill myself",
			"want to die", "end my life", "take my own life", "don't want to live",
			"better off dead",
		},
		patterns: []rawPattern{
			{`suicidal\s+thoughts?`, "suicidal thoughts"},
			{`self[\s-]+harm`, "self-harm"},
			{`(?:kill|hurt|cut|harm)\s+my\s?self`, "hurt myself"},
			{`(?:end|take)\s+my\s+(?:own\s+)?life`, "end my life"},
		},
	},
	CategoryAnaphylaxis: {
		phrases: []string{
			"anaphylaxis", "anaphylactic", "throat closing", "throat is closing",
			"throat swelling", "swollen tongue", "tongue swelling", "lips swelling",
			"can't swallow", "used my epipen",
		},
		patterns: []rawPattern{
			{`(?:throat|tongue|lips?|face)\s+(?:is\s+|are\s+|keeps\s+)?(?:swelling|swollen|closing)(?:\s+up)?`, "airway swelling"},
			{`swollen\s+(?:throat|tongue|lips?)`, "airway swelling"},
			{`allergic\s+reaction.*(?:breath|swell|throat)`, "allergic reaction with airway symptoms"},
			{`epi-?pen`, "epinephrine auto-injector"},
		},
	},
	CategoryCardiacRespiratory: {
		phrases: []string{
			"chest pain", "severe chest pain", "pressure in chest", "chest pressure",
			"pain in chest", "crushing chest", "chest tightness", "heart attack",
			"shortness of breath", "difficulty breathing", "trouble breathing",
			"can't breathe", "hard to breathe", "struggling to breathe", "gasping for air",
			"cold sweat", "cold sweats", "sweating and chest", "sweat and chest",
			"lips turning blue", "chest hurts", "left arm is numb",
		},
		patterns: []rawPattern{
			{`chest\s+pain`, "chest pain"},
			{`chest\s+(?:hurts|is\s+hurting|aches|is\s+aching)`, "chest pain"},
			{`(?:left\s+)?arm\s+(?:is\s+|feels\s+|went\s+|(?:keeps\s+)?going\s+)?numb`, "arm numbness"},
			{`pressure\s+in\s+(?:my\s+|the\s+)?chest`, "pressure in chest"},
			{`(?:tight|crushing|heavy)\s+(?:feeling\s+in\s+(?:my\s+)?)?chest`, "chest tightness"},
			{`shortness\s+of\s+breath`, "shortness of breath"},
			{`difficult(?:y|ies)\s+breathing`, "difficulty breathing"},
			{`trouble\s+breathing`, "trouble breathing"},
			{`can't\s+(?:catch\s+my\s+)?breath(?:e)?`, "trouble breathing"},
			{`(?:hard|difficult|struggling)\s+to\s+breathe`, "trouble breathing"},
			{`cold\s+sweats?`, "cold sweat(s)"},
			{`sweat(?:ing)?\s+.*chest|chest.*sweat`, "sweating + chest pain"},
			{`(?:lips|face|fingers)\s+(?:are\s+|is\s+)?(?:turning\s+)?blue`, "cyanosis"},
		},
	},
	CategoryUnconsciousTrauma: {
		phrases: []string{
			"fainting", "fainted", "passed out", "loss of consciousness", "unconscious",
			"unresponsive", "collapse", "collapsed", "won't wake up",
			"severe bleeding", "heavy bleeding", "bleeding heavily", "bleeding won't stop",
			"head injury", "car accident",
		},
		patterns: []rawPattern{
			{`passed\s+out`, "passed out"},
			{`loss\s+of\s+consciousness`, "loss of consciousness"},
			{`(?:won't|will\s+not|can't)\s+wake\s+(?:him|her|them)?\s*up`, "unresponsive"},
			{`severe\s+bleeding`, "severe bleeding"},
			{`bleeding\s+(?:that\s+)?(?:won't|will\s+not|doesn't|does\s+not|can't)\s+stop`, "uncontrolled bleeding"},
			{`(?:hit|struck|banged)\s+(?:my|his|her|their)\s+head.*(?:vomit|confus|drows|pass)`, "head injury"},
		},
	},
	CategoryPoisoningOverdose: {
		phrases: []string{
			"overdose", "overdosed", "poisoning", "poisoned", "swallowed bleach",
			"took too many pills",
		},
		patterns: []rawPattern{
			{`overdose(?:d)?`, "overdose"},
			{`poison(?:ed|ing)?`, "poisoning"},
			{`(?:took|swallowed|taken)\s+(?:too\s+many|a\s+bunch\s+of|a\s+whole\s+bottle\s+of|all\s+(?:my|the|of\s+my))\s+(?:pills|tablets|meds|medication|medicine)`, "took too many pills"},
			{`(?:drank|swallowed|ingested)\s+(?:some\s+)?(?:bleach|antifreeze|detergent|cleaning\s+product)`, "ingested chemical"},
		},
	},
	CategoryAcuteSeverePain: {
		phrases: []string{
			"worst headache of my life", "worst headache", "thunderclap headache",
			"severe abdominal pain", "unbearable pain", "excruciating pain",
		},
		patterns: []rawPattern{
			{`worst\s+(?:headache|pain)`, "worst pain"},
			{`(?:excruciating|unbearable)\s+(?:\w+\s+)?pain`, "severe pain"},
			{`severe\s+(?:abdominal|stomach|belly)\s+pain`, "severe abdominal pain"},
			{`thunderclap`, "thunderclap headache"},
		},
	},
	CategoryOtherLifeThreatening: {
		phrases: []string{
			"face droop", "drooping face", "arm weakness", "weakness in arm",
			"slurred speech", "stroke", "seizure", "coughing blood", "vomiting blood",
			"feel like dying",
		},
		patterns: []rawPattern{
			{`face\s+droop|droop(?:ing)?\s+face`, "face droop"},
			{`arm\s+weakness|weakness\s+in\s+(?:my\s+|one\s+)?arm`, "arm weakness"},
			{`slurred\s+speech`, "slurred speech"},
			{`coughing\s+(?:up\s+)?blood|vomiting\s+blood|throwing\s+up\s+blood`, "coughing/vomiting blood"},
			{`seiz(?:ure|ing)`, "seizure"},
			{`feel(?:s|ing)?\s+like\s+(?:i'm\s+|i\s+am\s+)?dying`, "feels like dying"},
			{`stiff\s+neck.*fever|fever.*stiff\s+neck`, "fever with stiff neck"},
		},
	},
}

var defaultAmbiguity = []string{
	`\bsevere\b`,
	`\bsudden(?:ly)?\b`,
	`\bworst\b`,
	`\bcan't\s+stop\b`,
	`\bgetting\s+worse\b`,
	`\bintense\b`,
	`\bscared\b`,
	`\bout\s+of\s+nowhere\b`,
}

// DefaultLexicon returns the built-in English rule set.
func DefaultLexicon() *Lexicon {
	lex, err := buildLexicon(DefaultLexiconVersion, defaultRules, defaultAmbiguity)
	if err != nil {
		panic(fmt.Sprintf("safety: default lexicon: %v", err))
	}
	return lex
}

func buildLexicon(version string, raw map[Category]rawCategory, ambiguity []string) (*Lexicon, error) {
	lex := &Lexicon{version: version, rules: make(map[Category]categoryRules, len(raw))}
	for cat, rc := range raw {
		rules := categoryRules{}
		seen := make(map[string]struct{}, len(rc.phrases))
		for _, phrase := range rc.phrases {
			p := normalize(phrase)
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			rules.phrases = append(rules.phrases, p)
		}
		for _, rp := range rc.patterns {
			re, err := regexp.Compile("(?i)" + rp.pattern)
			if err != nil {
				return nil, fmt.Errorf("safety: category %s pattern %q: %w", cat, rp.pattern, err)
			}
			label := rp.label
			if label == "" {
				label = rp.pattern
			}
			rules.patterns = append(rules.patterns, lexiconPattern{re: re, label: label})
		}
		lex.rules[cat] = rules
	}
	for _, pattern := range ambiguity {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("safety: ambiguity pattern %q: %w", pattern, err)
		}
		lex.ambiguity = append(lex.ambiguity, re)
	}
	return lex, nil
}

type lexiconFile struct {
	Version    string                      `yaml:"version"`
	Categories map[string]lexiconFileGroup `yaml:"categories"`
	Ambiguity  []string                    `yaml:"ambiguity"`
}

type lexiconFileGroup struct {
	Phrases  []string `yaml:"phrases"`
	Patterns []string `yaml:"patterns"`
}

// LoadLexicon extends the built-in rule set with the phrases and patterns in a
// YAML file. The file can only add rules; built-in phrases always stay active.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safety: read lexicon: %w", err)
	}
	return parseLexicon(data)
}

func parseLexicon(data []byte) (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("safety: parse lexicon: %w", err)
	}

	merged := make(map[Category]rawCategory, len(defaultRules))
	for cat, rc := range defaultRules {
		merged[cat] = rawCategory{
			phrases:  append([]string(nil), rc.phrases...),
			patterns: append([]rawPattern(nil), rc.patterns...),
		}
	}
	for name, group := range file.Categories {
		cat := Category(strings.TrimSpace(name))
		if !validCategory(cat) {
			return nil, fmt.Errorf("safety: unknown lexicon category %q", name)
		}
		rc := merged[cat]
		rc.phrases = append(rc.phrases, group.Phrases...)
		for _, p := range group.Patterns {
			rc.patterns = append(rc.patterns, rawPattern{pattern: p})
		}
		merged[cat] = rc
	}

	version := DefaultLexiconVersion
	if v := strings.TrimSpace(file.Version); v != "" {
		version = DefaultLexiconVersion + "+" + v
	}
	ambiguity := append(append([]string(nil), defaultAmbiguity...), file.Ambiguity...)
	return buildLexicon(version, merged, ambiguity)
}

var (
	curlyApostrophes = strings.NewReplacer("‘", "'", "’", "'", "“", `"`, "”", `"`)
	cannotForms      = regexp.MustCompile(`\bcan\s?not\b|\bcant\b`)
	dontForms        = regexp.MustCompile(`\bdont\b`)
	wontForms        = regexp.MustCompile(`\bwont\b`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// normalize lower-cases the text, straightens quotes, folds negation spellings
// and collapses whitespace. Phrases and input go through the same function.
func normalize(text string) string {
	t := strings.ToLower(curlyApostrophes.Replace(text))
	t = cannotForms.ReplaceAllString(t, "can't")
	t = dontForms.ReplaceAllString(t, "don't")
	t = wontForms.ReplaceAllString(t, "won't")
	t = whitespaceRun.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
