package response

import (
	"regexp"
	"strings"
)

// sectionDef is one row of the fixed output schema: include decides presence,
// body decides content. Both see normalized input.
type sectionDef struct {
	key     SectionKey
	title   string
	include func(supplied string, emergency bool) bool
	body    func(supplied string, emergency bool) string
}

var schema = []sectionDef{
	{
		key:     KeyEmergencyWarning,
		title:   "Emergency warning",
		include: func(_ string, emergency bool) bool { return emergency },
		body:    func(string, bool) string { return EmergencyWarningText },
	},
	{
		key:     KeySummary,
		title:   "Summary",
		include: always,
		body: func(supplied string, emergency bool) string {
			return orDefault(supplied, emergency, DefaultSummary, EmergencySummary)
		},
	},
	{
		key:     KeyGeneralInformation,
		title:   "General information",
		include: always,
		body: func(supplied string, emergency bool) string {
			return orDefault(supplied, emergency, DefaultGeneralInformation, EmergencyGeneralInformation)
		},
	},
	{
		key:   KeyWhatYouCanDo,
		title: "What you can do",
		include: func(supplied string, emergency bool) bool {
			return !emergency && supplied != ""
		},
		body: func(supplied string, _ bool) string { return supplied },
	},
	{
		key:     KeyWhenToSeeDoctor,
		title:   "When to see a doctor",
		include: always,
		body: func(supplied string, emergency bool) string {
			return orDefault(supplied, emergency, DefaultWhenToSeeDoctor, EmergencyWhenToSeeDoctor)
		},
	},
	{
		key:     KeyDisclaimer,
		title:   "Disclaimer",
		include: always,
		body: func(supplied string, _ bool) string {
			if strings.Contains(supplied, DisclaimerText) {
				return supplied
			}
			return DisclaimerText
		},
	},
}

// Assemble builds the ordered answer from audited section content.
//
// The result always carries summary, general information, when to see a doctor
// and disclaimer. The emergency warning is first and canonical when emergency
// is set, and what-you-can-do is dropped for emergencies. Assemble is
// idempotent: Assemble(Assemble(c, e).Map(), e) equals Assemble(c, e).
func Assemble(content map[SectionKey]string, emergency bool) Sections {
	out := make(Sections, 0, len(schema))
	for _, def := range schema {
		supplied := normalizeContent(content[def.key])
		if !def.include(supplied, emergency) {
			continue
		}
		out = append(out, Section{
			Key:     def.key,
			Title:   def.title,
			Content: def.body(supplied, emergency),
		})
	}
	return out
}

func always(string, bool) bool { return true }

func orDefault(supplied string, emergency bool, normal, urgent string) string {
	if supplied != "" {
		return supplied
	}
	if emergency {
		return urgent
	}
	return normal
}

var (
	headingPrefix = regexp.MustCompile(`^\s*#+\s*`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// normalizeContent trims the body and strips markdown heading markers so a
// section can never open another section when rendered.
func normalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		if headingPrefix.MatchString(line) {
			line = headingPrefix.ReplaceAllString(line, "")
		}
		lines[i] = line
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
