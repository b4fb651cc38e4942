package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/health-chat-api/internal/response"
)

// Violation is a prohibited-content tag.
type Violation string

const (
	ViolationDiagnosis        Violation = "diagnosis_stated"
	ViolationMedication       Violation = "medication_specific"
	ViolationDelayCare        Violation = "delay_care_advice"
	ViolationDosage           Violation = "personalized_dosage"
	ViolationDiscontinue      Violation = "discontinue_treatment_advice"
	ViolationPrognosis        Violation = "definitive_prognosis"
	ViolationSelfTreatEnabled Violation = "self-treat_enablement"
)

// Finding records one offending sentence.
type Finding struct {
	Section  response.SectionKey `json:"section"`
	Tag      Violation           `json:"tag,omitempty"`
	Reason   string              `json:"reason"`
	Sentence string              `json:"sentence"`
}

// AuditResult is the outcome of PolicyFilter.Audit. Rewritten is always safe to
// hand to the assembler.
type AuditResult struct {
	Violations []Violation
	Findings   []Finding
	Rewritten  response.Sections
	Blocked    bool
	// BlockReason names the rule or condition that forced the fallback.
	BlockReason string
}

// Clean reports whether the candidate passed without changes.
func (r AuditResult) Clean() bool {
	return len(r.Findings) == 0 && !r.Blocked
}

type policyRule struct {
	tag    Violation
	reason string
	re     *regexp.Regexp
	// conditional rules ignore matches introduced by "if", "when", "do" and similar.
	conditional bool
	block       bool
}

const drugNames = `ibuprofen|acetaminophen|paracetamol|tylenol|advil|motrin|aspirin|naproxen|aleve|` +
	`antibiotics?|amoxicillin|azithromycin|doxycycline|cipro(?:floxacin)?|prednisone|steroids?|` +
	`benadryl|diphenhydramine|loratadine|claritin|cetirizine|zyrtec|omeprazole|famotidine|` +
	`metformin|insulin|codeine|oxycodone|tramadol|hydrocodone|xanax|alprazolam|sertraline|zoloft|` +
	`dayquil|nyquil|sudafed|pseudoephedrine|dextromethorphan|guaifenesin|mucinex|imodium|loperamide`

const conditionWords = `\w+itis|\w+osis|\w+emia|\w+oma|\w+virus|infection|disease|disorder|syndrome|` +
	`cancer|flu|influenza|covid(?:-19)?|diabetes|asthma|pneumonia|migraine|allerg(?:y|ies)|strep|` +
	`cold|fracture|ulcer|hernia|stroke|heart\s+attack|anxiety|depression|reflux|gerd|concussion|` +
	`sprain|kidney\s+stones?|gallstones?|shingles|measles|mono|uti`

var policyRules = []policyRule{
	// Diagnosis statements
	{ViolationDiagnosis, "you_have_condition", regexp.MustCompile(`(?i)\byou\s+(?:most\s+likely\s+|likely\s+|probably\s+|definitely\s+|clearly\s+|certainly\s+|obviously\s+)?(?:have|'ve\s+got|have\s+got|are\s+suffering\s+from|are\s+experiencing)\s+(?:a\s+|an\s+)?(?:\w+\s+){0,2}?(?:case\s+of\s+)?(?:` + conditionWords + `)\b`), true, false},
	{ViolationDiagnosis, "you_are_condition", regexp.MustCompile(`(?i)\byou(?:'re|\s+are)\s+(?:probably\s+|likely\s+|definitely\s+)?(?:diabetic|asthmatic|anemic|pregnant|having\s+(?:a\s+)?(?:heart\s+attack|stroke|panic\s+attack|migraine))\b`), true, false},
	{ViolationDiagnosis, "diagnosis_is", regexp.MustCompile(`(?i)\b(?:your\s+diagnosis\s+is|i\s+(?:can\s+)?diagnose\s+(?:you|this|it)|(?:this|it|that)\s+is\s+(?:definitely|clearly|certainly|most\s+likely)\s+(?:a\s+|an\s+)?(?:` + conditionWords + `))\b`), false, false},
	{ViolationDiagnosis, "symptoms_indicate", regexp.MustCompile(`(?i)\byour\s+symptoms\s+(?:indicate|confirm|mean)\s+(?:that\s+you\s+have\s+)?(?:a\s+|an\s+)?(?:` + conditionWords + `)\b`), false, false},

	// Medication recommendations
	{ViolationMedication, "take_named_drug", regexp.MustCompile(`(?i)\b(?:take|try|use|start|get|buy)\s+(?:some\s+|an?\s+)?(?:over-the-counter\s+)?(?:` + drugNames + `)\b`), true, false},
	{ViolationMedication, "recommend_named_drug", regexp.MustCompile(`(?i)\b(?:i|we)\s+(?:would\s+|might\s+|strongly\s+)?(?:recommend|prescribe|suggest|advise)\s+(?:taking\s+|using\s+|that\s+you\s+take\s+)?(?:some\s+|an?\s+)?(?:` + drugNames + `)\b`), false, false},
	{ViolationMedication, "prescribe", regexp.MustCompile(`(?i)\bi(?:'ll|\s+will|\s+would|\s+can)?\s+prescribe\b`), false, false},

	// Dosing
	{ViolationDosage, "dose_amount", regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|milligrams?|mcg|micrograms?|ml|milliliters?|iu)\b`), false, false},
	{ViolationDosage, "dose_count", regexp.MustCompile(`(?i)\b(?:take|taking|use|using)\s+(?:\d+|one|two|three|four)\s+(?:tablets?|pills?|capsules?|doses?|puffs?|teaspoons?|tablespoons?)\b`), false, false},
	{ViolationDosage, "dose_change", regexp.MustCompile(`(?i)\b(?:increase|double|decrease|reduce|lower|raise|adjust)\s+(?:your\s+)?(?:dose|dosage)\b`), false, false},
	{ViolationDosage, "dose_interval", regexp.MustCompile(`(?i)\b(?:take|taking)\s+(?:it|them|one|this)\s+every\s+\d+(?:\s*-\s*\d+)?\s*hours?\b`), false, false},

	// Delaying or skipping care
	{ViolationDelayCare, "no_need_doctor", regexp.MustCompile(`(?i)\b(?:no\s+need|(?:you\s+)?(?:don't|do\s+not)\s+(?:need|have)\s+to)\s+(?:to\s+)?(?:see|visit|call|go\s+to|contact)\s+(?:a\s+|the\s+|your\s+|an?\s+)?(?:doctor|physician|clinician|er|emergency|hospital|911|urgent\s+care|gp|ambulance)`), false, true},
	{ViolationDelayCare, "avoid_er", regexp.MustCompile(`(?i)\b(?:avoid|skip|don't\s+go\s+to|do\s+not\s+go\s+to)\s+(?:the\s+)?(?:er|emergency\s+room|emergency\s+department|hospital|urgent\s+care|doctor)\b`), false, true},
	{ViolationDelayCare, "dont_call_911", regexp.MustCompile(`(?i)\b(?:don't|do\s+not)\s+(?:bother\s+)?call(?:ing)?\s+(?:911|emergency\s+services|an\s+ambulance)`), false, true},
	{ViolationDelayCare, "wait_before_care", regexp.MustCompile(`(?i)\b(?:wait|hold\s+off)\s+(?:a\s+(?:few|couple)\s+(?:of\s+)?(?:days|weeks)\s+)?before\s+(?:seeing|calling|going\s+to|contacting)\b`), false, true},
	{ViolationDelayCare, "instead_of_care", regexp.MustCompile(`(?i)\binstead\s+of\s+(?:seeing|calling|going\s+to|visiting)\s+(?:a\s+|the\s+|your\s+)?(?:doctor|er|emergency|hospital|911|clinician)`), false, true},

	// Stopping treatment
	{ViolationDiscontinue, "stop_medication", regexp.MustCompile(`(?i)\b(?:stop|quit|discontinue|skip|cease)\s+(?:taking\s+|using\s+)?(?:your|the|all(?:\s+of)?\s+(?:your\s+)?)\s*(?:medications?|meds|medicine|prescriptions?|treatment|pills|insulin|inhaler|antidepressants?|antibiotics?)\b`), false, true},
	{ViolationDiscontinue, "dont_need_medication", regexp.MustCompile(`(?i)\b(?:you\s+)?(?:don't|do\s+not)\s+need\s+(?:your|the|any)\s+(?:medications?|meds|medicine|treatment|prescriptions?)\b`), false, true},

	// Prognosis claims
	{ViolationPrognosis, "you_will_outcome", regexp.MustCompile(`(?i)\byou\s+will\s+(?:definitely\s+|certainly\s+|surely\s+)?(?:be\s+(?:fine|okay|ok|cured|alright)|recover|get\s+better|die|not\s+die|make\s+a\s+full\s+recovery)\b`), false, false},
	{ViolationPrognosis, "condition_will_resolve", regexp.MustCompile(`(?i)\byour\s+(?:condition|symptoms?|illness|infection|pain)\s+(?:will|is\s+going\s+to)\s+(?:definitely\s+|certainly\s+)?(?:go\s+away|clear\s+up|resolve|get\s+worse|be\s+fatal|disappear)\b`), false, false},
	{ViolationPrognosis, "nothing_serious", regexp.MustCompile(`(?i)\b(?:it's|it\s+is|this\s+is|that's|that\s+is)\s+(?:definitely\s+|certainly\s+)?nothing\s+(?:serious|to\s+worry\s+about)\b`), false, false},

	// Personalized treatment plans
	{ViolationSelfTreatEnabled, "treatment_plan", regexp.MustCompile(`(?i)\b(?:here's|here\s+is)\s+(?:a|your)\s+(?:personal(?:ized)?\s+)?(?:treatment\s+plan|plan\s+to\s+treat)|\byour\s+treatment\s+plan\b`), false, false},
	{ViolationSelfTreatEnabled, "without_doctor", regexp.MustCompile(`(?i)\b(?:treat|cure|fix|manage)\s+(?:this|it|yourself)\s+(?:at\s+home\s+)?(?:instead\s+of|without)\s+(?:a\s+|seeing\s+a\s+)?(?:doctor|prescription|medical\s+(?:help|attention|care))`), false, false},
	{ViolationSelfTreatEnabled, "obtain_rx", regexp.MustCompile(`(?i)\b(?:buy|order|get)\s+(?:\w+\s+)?(?:antibiotics|prescription\s+(?:drugs|medications?))\s+(?:online|without)`), false, false},
}

var conditionalLead = regexp.MustCompile(`(?i)(?:\bif|\bwhen|\bwhenever|\bwhether|\bunless|\bin\s+case|\bdo|\bdid|\bonce|\bwho|\bdo\s+you\s+think)\s*$`)

var pronounContraction = regexp.MustCompile(`(?i)\b(i|you|we|they|he|she|it)'(ve|re|ll|d|m)\b`)

var contractionExpansions = map[string]string{"ve": "have", "re": "are", "ll": "will", "d": "would", "m": "am"}

// foldContractions spells out pronoun contractions ("you've" -> "you have")
// so the rules only need the long form.
func foldContractions(text string) string {
	text = curlyApostrophes.Replace(text)
	return pronounContraction.ReplaceAllStringFunc(text, func(m string) string {
		parts := pronounContraction.FindStringSubmatch(m)
		return parts[1] + " " + contractionExpansions[strings.ToLower(parts[2])]
	})
}

// outputLeakRule flags replies that disclose internals. Blocking leaks replace
// the whole answer; the rest drop the sentence.
type outputLeakRule struct {
	re     *regexp.Regexp
	reason string
	block  bool
}

var outputLeakRules = []outputLeakRule{
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), "leak:system_prompt_disclosure", true},
	{regexp.MustCompile(`(?i)my instructions?\s+(are|say|tell|include|require)`), "leak:instructions_disclosure", true},
	{regexp.MustCompile(`(?i)(here are|these are|the following are)\s+(my )?(system )?(instructions|rules|guidelines|prompts)`), "leak:rules_listing", true},
	{regexp.MustCompile(`(?i)(powered by|built on|running on)\s+(Claude|GPT|OpenAI|Anthropic|Bedrock|AWS|Gemini|Nova)`), "leak:tech_stack", true},
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis|rediss|mysql)://\S+`), "leak:connection_string", true},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}\b`), "leak:ip_port", true},
	{regexp.MustCompile(`(?i)other (patient|user)'?s?\s+(name|phone|email|record|conversation)`), "leak:other_user_ref", true},
	{regexp.MustCompile(`(?i)\bi('m| am) (a|an) (AI|artificial intelligence|language model|LLM|chatbot)\b`), "leak:ai_identity", false},
}

// Generic replacements used when rewriting empties a section.
var sectionSubstitutes = map[response.SectionKey]string{
	response.KeySummary:            response.DefaultSummary,
	response.KeyGeneralInformation: response.DefaultGeneralInformation,
	response.KeyWhatYouCanDo: response.Bullets([]string{
		"Keep track of your symptoms and how they change.",
		"Ask a pharmacist or clinician before starting any new medicine.",
	}),
	response.KeyWhenToSeeDoctor: response.DefaultWhenToSeeDoctor,
	response.KeyDisclaimer:      response.DisclaimerText,
}

// PolicyFilter audits generated answers against the prohibited-content rules.
// It is stateless and safe for concurrent use.
type PolicyFilter struct {
	rules []policyRule
	leaks []outputLeakRule
}

func NewPolicyFilter() *PolicyFilter {
	return &PolicyFilter{rules: policyRules, leaks: outputLeakRules}
}

// Audit removes offending sentences, substitutes emptied sections and blocks
// the answer when a block-level rule fires or something survives rewriting.
// It never panics; an internal failure yields the blocked fallback.
func (f *PolicyFilter) Audit(candidate response.Sections) (result AuditResult) {
	defer func() {
		if r := recover(); r != nil {
			result = blockedResult(result, fmt.Sprintf("audit_panic: %v", r))
		}
	}()

	tags := make(map[Violation]bool)
	rewritten := make(response.Sections, 0, len(candidate))

	for _, sec := range candidate {
		kept, findings, block := f.rewriteSection(sec)
		for _, fd := range findings {
			if fd.Tag != "" {
				tags[fd.Tag] = true
			}
		}
		result.Findings = append(result.Findings, findings...)
		if block != "" && result.BlockReason == "" {
			result.BlockReason = block
		}
		if strings.TrimSpace(kept) == "" && strings.TrimSpace(sec.Content) != "" {
			if sub, ok := sectionSubstitutes[sec.Key]; ok {
				kept = sub
			}
		}
		if strings.TrimSpace(kept) == "" {
			continue
		}
		rewritten = append(rewritten, response.Section{Key: sec.Key, Title: sec.Title, Content: kept})
	}

	for _, tag := range orderedViolations() {
		if tags[tag] {
			result.Violations = append(result.Violations, tag)
		}
	}
	result.Rewritten = rewritten

	if result.BlockReason != "" {
		return blockedResult(result, result.BlockReason)
	}
	if residual := f.firstMatch(rewritten.Text()); residual != "" {
		return blockedResult(result, "residual:"+residual)
	}
	return result
}

// Scan returns the tags present in text without rewriting anything.
func (f *PolicyFilter) Scan(text string) []Violation {
	found := make(map[Violation]bool)
	for _, rule := range f.rules {
		if rule.matches(text) {
			found[rule.tag] = true
		}
	}
	var out []Violation
	for _, tag := range orderedViolations() {
		if found[tag] {
			out = append(out, tag)
		}
	}
	return out
}

// Permits reports whether text trips neither a policy rule nor an output
// leak rule.
func (f *PolicyFilter) Permits(text string) bool {
	return f.firstMatch(text) == ""
}

func (f *PolicyFilter) rewriteSection(sec response.Section) (string, []Finding, string) {
	var (
		findings []sentenceHit
		block    string
		lines    []string
	)
	for _, line := range strings.Split(sec.Content, "\n") {
		prefix, body := splitBullet(line)
		var kept strings.Builder
		for _, sentence := range splitSentences(body) {
			hits := f.sentenceFindings(sec.Key, sentence)
			if len(hits) == 0 {
				kept.WriteString(sentence)
				continue
			}
			findings = append(findings, hits...)
			for _, h := range hits {
				if h.block && block == "" {
					block = h.Reason
				}
			}
		}
		text := strings.TrimSpace(kept.String())
		if text == "" {
			if strings.TrimSpace(body) == "" {
				lines = append(lines, line)
			}
			continue
		}
		lines = append(lines, prefix+text)
	}

	out := make([]Finding, 0, len(findings))
	for _, fd := range findings {
		out = append(out, fd.Finding)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), out, block
}

type sentenceHit struct {
	Finding
	block bool
}

func (f *PolicyFilter) sentenceFindings(key response.SectionKey, sentence string) []sentenceHit {
	var hits []sentenceHit
	trimmed := strings.TrimSpace(sentence)
	for _, rule := range f.rules {
		if rule.matches(sentence) {
			hits = append(hits, sentenceHit{
				Finding: Finding{Section: key, Tag: rule.tag, Reason: rule.reason, Sentence: trimmed},
				block:   rule.block,
			})
		}
	}
	for _, leak := range f.leaks {
		if leak.re.MatchString(sentence) {
			hits = append(hits, sentenceHit{
				Finding: Finding{Section: key, Reason: leak.reason, Sentence: trimmed},
				block:   leak.block,
			})
		}
	}
	return hits
}

func (f *PolicyFilter) firstMatch(text string) string {
	for _, rule := range f.rules {
		if rule.matches(text) {
			return rule.reason
		}
	}
	for _, leak := range f.leaks {
		if leak.re.MatchString(text) {
			return leak.reason
		}
	}
	return ""
}

func (r policyRule) matches(text string) bool {
	text = foldContractions(text)
	locs := r.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return false
	}
	if !r.conditional {
		return true
	}
	for _, loc := range locs {
		if !conditionalLead.MatchString(text[:loc[0]]) {
			return true
		}
	}
	return false
}

func blockedResult(r AuditResult, reason string) AuditResult {
	r.Blocked = true
	r.BlockReason = reason
	r.Rewritten = FallbackSections()
	return r
}

// FallbackSections is the safe answer that replaces a blocked one.
func FallbackSections() response.Sections {
	return response.Assemble(response.FallbackContent(), false)
}

func orderedViolations() []Violation {
	return []Violation{
		ViolationDiagnosis,
		ViolationMedication,
		ViolationDelayCare,
		ViolationDosage,
		ViolationDiscontinue,
		ViolationPrognosis,
		ViolationSelfTreatEnabled,
	}
}

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	sentenceRe   = regexp.MustCompile(`[^.!?]*[.!?]+["')\]]*\s*|[^.!?]+$`)
)

func splitBullet(line string) (string, string) {
	if loc := bulletPrefix.FindStringIndex(line); loc != nil {
		return line[:loc[1]], line[loc[1]:]
	}
	return "", line
}

func splitSentences(text string) []string {
	if text == "" {
		return nil
	}
	return sentenceRe.FindAllString(text, -1)
}
