package response

import (
	"strings"
)

// Render serializes sections as markdown, one "## Title" block each.
func Render(s Sections) string {
	var b strings.Builder
	for i, sec := range s {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(sec.Title)
		b.WriteString("\n\n")
		b.WriteString(sec.Content)
	}
	return b.String()
}

// Parse reads markdown produced by Render back into sections. Headings that
// are not part of the schema are kept as body text of the current section;
// text before the first known heading is dropped.
func Parse(markdown string) Sections {
	var (
		out     Sections
		current *Section
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		out = append(out, *current)
	}

	for _, line := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		if title, ok := strings.CutPrefix(line, "## "); ok {
			if key, known := KeyForTitle(title); known {
				flush()
				current = &Section{Key: key, Title: Title(key)}
				body = body[:0]
				continue
			}
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return out
}
