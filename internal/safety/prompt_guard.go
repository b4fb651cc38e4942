package safety

import (
	"regexp"
	"strings"
)

// PromptScan is the result of checking an inbound message for prompt injection.
type PromptScan struct {
	// Blocked messages are not sent to the model; the safe template answers them.
	Blocked bool
	// Score runs from 0 (clean) to 1 (certain injection).
	Score   float64
	Reasons []string
	// Sanitized is the text to send to the model when not blocked.
	Sanitized string
}

// Flagged reports whether the message crossed the sanitize threshold.
func (p PromptScan) Flagged() bool {
	return p.Score >= promptWarnThreshold
}

type promptPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

const (
	promptBlockThreshold = 0.7
	promptWarnThreshold  = 0.3
)

var promptPatterns = []promptPattern{
	// Overriding instructions
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "override:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)(disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "override:forget_instructions", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+(doctor|physician|pharmacist|unrestricted|unfiltered)`), "override:role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)new\s+role\s*:|new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "override:new_role", 0.9},
	{regexp.MustCompile(`(?i)(pretend|imagine|assume)\s+(that\s+)?(you\s+)?(are|have|were|don'?t\s+have)\s+(no\s+)?(rules?|restrictions?|limits?|guidelines?|filters?|safety)`), "override:pretend_no_rules", 0.9},
	{regexp.MustCompile(`(?i)(bypass|skip|turn\s+off|disable)\s+(your\s+|the\s+)?(safety|filters?|restrictions?|disclaimers?|content\s+policy)`), "override:bypass_safety", 0.8},
	{regexp.MustCompile(`(?i)(without|no)\s+(any\s+)?(disclaimers?|warnings?)\s*,?\s*(just\s+)?(tell|give|diagnose|prescribe)`), "override:drop_disclaimer", 0.5},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|unrestricted\s*mode|god\s*mode`), "override:jailbreak_keyword", 0.9},

	// Extraction
	{regexp.MustCompile(`(?i)(reveal|show|display|print|output|repeat|tell\s+me)\s+(your\s+)?(system\s+prompt|instructions?|initial\s+prompt|hidden\s+prompt|system\s+message)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)(show|give|tell|list)\s+(me\s+)?(other\s+)?(users?|patients?)('?s)?\s+(conversations?|messages?|records?|history)`), "exfiltration:other_users", 0.7},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|database|db)\s*(key|token|secret|password|credential)s?\b`), "exfiltration:credentials", 0.8},

	// Obfuscation
	{regexp.MustCompile(`(?i)base64\s*(encode|decode|:)|\\x[0-9a-fA-F]{2}`), "obfuscation:encoding", 0.5},
	{regexp.MustCompile(`!\[.*\]\(https?://`), "obfuscation:markdown_image", 0.4},
	{regexp.MustCompile(`(?i)<\s*(script|img|iframe|object|embed|link|style|svg|form)\b`), "obfuscation:html_injection", 0.6},

	// Fake conversation framing
	{specialTokens, "context:special_tokens", 0.9},
	{roleMarkers, "context:role_markers", 0.7},
	{regexp.MustCompile(`(?i)the\s+real\s+(instructions?|task|prompt)\s+(is|starts?|begins?)`), "context:real_instructions", 0.8},
}

var (
	specialTokens = regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`)
	roleMarkers   = regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`)
	htmlTags      = regexp.MustCompile(`(?i)<\s*(script|img|iframe|object|embed|link|style|svg|form)\b[^>]*>`)
	markdownImage = regexp.MustCompile(`!\[.*?\]\(https?://[^)]+\)`)
)

// ScanPrompt scores a user message for injection attempts. The highest weight
// wins and each extra signal adds 0.1.
func ScanPrompt(message string) PromptScan {
	if strings.TrimSpace(message) == "" {
		return PromptScan{Sanitized: message}
	}

	var (
		reasons []string
		maxW    float64
	)
	for _, p := range promptPatterns {
		if p.re.MatchString(message) {
			reasons = append(reasons, p.reason)
			if p.weight > maxW {
				maxW = p.weight
			}
		}
	}

	score := maxW
	if len(reasons) > 1 {
		score += float64(len(reasons)-1) * 0.1
	}
	if score > 1 {
		score = 1
	}

	scan := PromptScan{Score: score, Reasons: reasons, Sanitized: message}
	switch {
	case score >= promptBlockThreshold:
		scan.Blocked = true
		scan.Sanitized = ""
	case score >= promptWarnThreshold:
		scan.Sanitized = SanitizePrompt(message)
	}
	return scan
}

// SanitizePrompt strips injection markup and keeps the rest of the message.
func SanitizePrompt(message string) string {
	cleaned := specialTokens.ReplaceAllString(message, "")
	cleaned = roleMarkers.ReplaceAllString(cleaned, "")
	cleaned = htmlTags.ReplaceAllString(cleaned, "")
	cleaned = markdownImage.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
