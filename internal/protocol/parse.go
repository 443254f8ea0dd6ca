package protocol

import (
	"regexp"
	"strings"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

// HashCanonicalizer resolves a possibly-short hash against a candidate set
// (the file's own commit list, per the robust resolution of the local
// repository adapter) into a full hash. It returns ("", false) when the
// input cannot be resolved.
type HashCanonicalizer func(input string) (full string, ok bool)

// locateValue finds literal substring-located pattern in line and returns
// the next whitespace-delimited token after it, per §4.4's parsing rule.
func locateValue(line, pattern string) (string, bool) {
	idx := strings.Index(line, pattern)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[idx+len(pattern):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

var hexHashRe = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// CanonicalizeHash resolves raw (already trimmed of markdown link syntax)
// against the candidate set: a direct ≥20-char hex parse is accepted
// as-is; a shorter ≥7-char hex token is resolved as a unique prefix via
// canon. Anything else is a parse failure.
func CanonicalizeHash(raw string, canon HashCanonicalizer) (string, error) {
	raw = stripMarkdownLink(raw)
	if !hexHashRe.MatchString(raw) {
		return "", &ghqcerrors.ProtocolParseError{Kind: ghqcerrors.CommitNotParseable, Detail: raw}
	}
	if len(raw) >= 20 {
		return raw, nil
	}
	full, ok := canon(raw)
	if !ok {
		return "", &ghqcerrors.ProtocolParseError{Kind: ghqcerrors.CommitNotParseable, Detail: raw}
	}
	return full, nil
}

// stripMarkdownLink unwraps a "[text](url)" or "`text`" wrapper around a
// bare hash token, if present.
func stripMarkdownLink(s string) string {
	s = strings.Trim(s, "`")
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			return s[1:end]
		}
	}
	return s
}

// ParsedBranch extracts the branch name from a "git branch: " metadata
// line, unwrapping a markdown link around the name if present.
func ParsedBranch(body string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		if v, ok := locateValue(line, "git branch:"); ok {
			return stripMarkdownLink(v), true
		}
	}
	return "", false
}

// ParsedInitialCommit extracts the "initial qc commit: " metadata line's
// hash token, without canonicalization (the caller canonicalizes once it
// has a candidate set).
func ParsedInitialCommit(body string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		if v, ok := locateValue(line, "initial qc commit:"); ok {
			return v, true
		}
	}
	return "", false
}

// CommentMark is one status-bearing observation extracted from a comment
// by ParseComment, in the chronological position it was found.
type CommentMark struct {
	Kind           CommentMarkKind
	Hash           string // raw, not yet canonicalized
	UnapprovalRef  int    // set only for Unapproval marks (the referenced issue number)
}

// CommentMarkKind discriminates the four marks §4.5 step 5 collects.
type CommentMarkKind int

const (
	MarkNotification CommentMarkKind = iota
	MarkApproved
	MarkUnapproval
	MarkReviewed
)

// ParseComment extracts at most one CommentMark from a single comment
// body, classifying by its leading header. A comment that matches none of
// the four canonical headers yields (CommentMark{}, false) and is ignored
// by the reconstructor.
func ParseComment(body string) (CommentMark, bool) {
	trimmed := strings.TrimSpace(body)
	lines := strings.Split(body, "\n")

	findLine := func(pattern string) (string, bool) {
		for _, line := range lines {
			if v, ok := locateValue(line, pattern); ok {
				return v, true
			}
		}
		return "", false
	}

	switch {
	case strings.HasPrefix(trimmed, "# QC Notification"):
		if h, ok := findLine("current commit:"); ok {
			return CommentMark{Kind: MarkNotification, Hash: h}, true
		}
	case strings.HasPrefix(trimmed, "# QC Approved"):
		if h, ok := findLine("approved qc commit:"); ok {
			return CommentMark{Kind: MarkApproved, Hash: h}, true
		}
	case strings.HasPrefix(trimmed, "# QC Un-Approval"):
		n, _ := findLine("issue: #")
		ref := parseIssueNumber(n)
		return CommentMark{Kind: MarkUnapproval, UnapprovalRef: ref}, true
	case strings.HasPrefix(trimmed, "# QC Review"):
		if h, ok := findLine("comparing commit:"); ok {
			return CommentMark{Kind: MarkReviewed, Hash: h}, true
		}
	}
	return CommentMark{}, false
}

// issueNumberFromURL extracts the trailing "/issues/<N>" number from a
// platform issue URL, or 0 if the URL doesn't match that shape.
func issueNumberFromURL(url string) int {
	idx := strings.LastIndex(url, "/issues/")
	if idx < 0 {
		return 0
	}
	return parseIssueNumber(url[idx+len("/issues/"):])
}

func parseIssueNumber(s string) int {
	n := 0
	found := false
	for _, r := range s {
		if r < '0' || r > '9' {
			if found {
				break
			}
			continue
		}
		found = true
		n = n*10 + int(r-'0')
	}
	return n
}

// relevantFileItemRe matches a "- [name](url) — description" item under a
// Gating/Previous/Relevant QC subsection.
var relevantFileItemRe = regexp.MustCompile(`^-\s*\[([^\]]+)\]\(([^)]*)\)\s*(?:—|--|-)\s*(.*)$`)

// plainFileItemRe matches a "- **name** — justification" item under the
// Relevant Files subsection.
var plainFileItemRe = regexp.MustCompile(`^-\s*\*\*([^*]+)\*\*\s*(?:—|--|-)\s*(.*)$`)

// ParseRelevantFiles extracts the "## Relevant Files" section's four
// subsections from an issue body.
func ParseRelevantFiles(body string) RelevantFilesSection {
	var out RelevantFilesSection
	lines := strings.Split(body, "\n")

	inSection := false
	var current *[]RelevantFileEntry
	plain := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			inSection = strings.TrimSpace(trimmed[3:]) == "Relevant Files"
			current = nil
			continue
		}
		if !inSection {
			continue
		}
		if strings.HasPrefix(trimmed, "### ") {
			heading := strings.TrimSpace(trimmed[4:])
			plain = false
			switch heading {
			case "Gating QC":
				current = &out.GatingQC
			case "Previous QC":
				current = &out.PreviousQC
			case "Relevant QC":
				current = &out.RelevantQC
			case "Relevant Files":
				current = &out.Files
				plain = true
			default:
				current = nil
			}
			continue
		}
		if current == nil || trimmed == "" {
			continue
		}
		if plain {
			if m := plainFileItemRe.FindStringSubmatch(trimmed); m != nil {
				*current = append(*current, RelevantFileEntry{Kind: RelevantFilePlainFile, FileName: m[1], Justification: m[2]})
			}
			continue
		}
		if m := relevantFileItemRe.FindStringSubmatch(trimmed); m != nil {
			*current = append(*current, RelevantFileEntry{
				FileName:    m[1],
				IssueURL:    m[2],
				Description: m[3],
				IssueNumber: issueNumberFromURL(m[2]),
			})
		}
	}
	return out
}
