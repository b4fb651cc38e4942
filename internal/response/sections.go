// Package response owns the fixed-section answer format returned to the chat UI.
package response

import "strings"

// SectionKey identifies one of the fixed answer sections.
type SectionKey string

const (
	KeyEmergencyWarning   SectionKey = "emergency_warning"
	KeySummary            SectionKey = "summary"
	KeyGeneralInformation SectionKey = "general_information"
	KeyWhatYouCanDo       SectionKey = "what_you_can_do"
	KeyWhenToSeeDoctor    SectionKey = "when_to_see_doctor"
	KeyDisclaimer         SectionKey = "disclaimer"
)

// Section is one titled block of the rendered answer.
type Section struct {
	Key     SectionKey `json:"key"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
}

// Sections is an ordered answer. Order is significant.
type Sections []Section

// Get returns the content of key and whether it is present.
func (s Sections) Get(key SectionKey) (string, bool) {
	for _, sec := range s {
		if sec.Key == key {
			return sec.Content, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (s Sections) Has(key SectionKey) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys lists the section keys in order.
func (s Sections) Keys() []SectionKey {
	keys := make([]SectionKey, 0, len(s))
	for _, sec := range s {
		keys = append(keys, sec.Key)
	}
	return keys
}

// Map flattens the sections into assembler input.
func (s Sections) Map() map[SectionKey]string {
	m := make(map[SectionKey]string, len(s))
	for _, sec := range s {
		m[sec.Key] = sec.Content
	}
	return m
}

// Text concatenates all section bodies; used for scanning.
func (s Sections) Text() string {
	parts := make([]string, 0, len(s))
	for _, sec := range s {
		parts = append(parts, sec.Content)
	}
	return strings.Join(parts, "\n")
}

// Title returns the literal heading for key.
func Title(key SectionKey) string {
	for _, def := range schema {
		if def.key == key {
			return def.title
		}
	}
	return ""
}

// KeyForTitle maps a heading back to its key, ignoring case.
func KeyForTitle(title string) (SectionKey, bool) {
	title = strings.TrimSpace(title)
	for _, def := range schema {
		if strings.EqualFold(def.title, title) {
			return def.key, true
		}
	}
	return "", false
}

// Bullets renders lines as a markdown list, skipping blanks.
func Bullets(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(line)
	}
	return b.String()
}
