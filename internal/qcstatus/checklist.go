package qcstatus

import (
	"regexp"
	"strings"

	"github.com/a2-ai/ghqc/internal/model"
)

// atxHeaderRe matches an ATX-style header (1-6 leading #'s followed by a
// space), capturing the level and text.
var atxHeaderRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// setextUnderlineRe matches a setext underline ("===" for level 1, "---"
// for level 2).
var setextUnderlineRe = regexp.MustCompile(`^(=+|-+)\s*$`)

// checklistItemRe matches a checkbox list item: "- [ ]", "- [x]", "- [X]",
// with arbitrary leading whitespace.
var checklistItemRe = regexp.MustCompile(`^\s*-\s*\[([ xX])\]`)

// AnalyzeChecklists splits an issue body into sections by header (ATX `#`
// through `######`, with setext `===`/`---` forms rewritten to their ATX
// equivalent before splitting) and counts checkbox items per section.
// Content before the first level-1 header is ignored (the "## Metadata"
// section always precedes it). Sections with zero checklist items are
// omitted from the result.
func AnalyzeChecklists(body string) map[string]model.ChecklistSummary {
	lines := normalizeSetext(strings.Split(body, "\n"))
	sections := splitIntoSections(lines)

	out := make(map[string]model.ChecklistSummary)
	for header, text := range sections {
		summary := analyzeChecklistInText(text)
		if summary.Total > 0 {
			out[header] = summary
		}
	}
	return out
}

// normalizeSetext rewrites setext-style headers ("Title\n===" or
// "Title\n---") into their ATX equivalents ("# Title" / "## Title") so a
// single downstream pass handles both forms.
func normalizeSetext(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if i+1 < len(lines) && strings.TrimSpace(lines[i]) != "" && setextUnderlineRe.MatchString(lines[i+1]) && !atxHeaderRe.MatchString(lines[i]) {
			level := "# "
			if strings.HasPrefix(strings.TrimSpace(lines[i+1]), "-") {
				level = "## "
			}
			out = append(out, level+strings.TrimSpace(lines[i]))
			i++ // consume the underline line
			continue
		}
		out = append(out, lines[i])
	}
	return out
}

// splitIntoSections groups lines under their nearest preceding header,
// ignoring everything before the first level-1 ("# ") header.
func splitIntoSections(lines []string) map[string]string {
	sections := make(map[string]string)
	var currentHeader string
	var buf strings.Builder
	seenLevel1 := false

	flush := func() {
		if seenLevel1 && currentHeader != "" {
			text := strings.TrimSpace(buf.String())
			if text != "" {
				sections[currentHeader] = text
			}
		}
		buf.Reset()
	}

	for _, line := range lines {
		if m := atxHeaderRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			text := strings.TrimSpace(m[2])
			if level == 1 {
				seenLevel1 = true
			}
			if !seenLevel1 {
				continue
			}
			flush()
			currentHeader = text
			continue
		}
		if seenLevel1 {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()
	return sections
}

// analyzeChecklistInText counts checkbox items in text, case-insensitive
// on the "x" mark.
func analyzeChecklistInText(text string) model.ChecklistSummary {
	var summary model.ChecklistSummary
	for _, line := range strings.Split(text, "\n") {
		m := checklistItemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		summary.Total++
		if strings.EqualFold(m[1], "x") {
			summary.Completed++
		}
	}
	return summary
}
