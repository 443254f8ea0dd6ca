// Package diffutil implements the §4.10 diff contract: given the bytes of
// a file at two commits, produce the fenced markdown block a Notification
// or Review comment embeds under "## File Difference". Spreadsheet
// extensions get a workbook-aware diff; everything else gets a text diff.
// Rendering full spreadsheet formats or a general-purpose text-diff UI is
// explicitly out of scope (§1) — only the contract shape is implemented.
package diffutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// NoDifferenceSentinel is returned verbatim when from_bytes and to_bytes
// are byte-identical, per §4.10/§8 property 8 ("workbook-diff
// conservation") and the equivalent text-diff case.
const NoDifferenceSentinel = "No differences."

var spreadsheetExts = map[string]bool{
	".xlsx": true, ".xlsm": true, ".xlsb": true, ".xls": true,
}

// Diff implements the §4.10 contract: (from_bytes, to_bytes, file) ->
// fenced diff block, or NoDifferenceSentinel for identical inputs.
func Diff(fromBytes, toBytes []byte, file string) (string, error) {
	if string(fromBytes) == string(toBytes) {
		return NoDifferenceSentinel, nil
	}
	if spreadsheetExts[strings.ToLower(filepath.Ext(file))] {
		block, err := WorkbookDiff(fromBytes, toBytes)
		if err != nil {
			return "", err
		}
		return block, nil
	}
	return TextDiff(string(fromBytes), string(toBytes)), nil
}

const contextLines = 3

// TextDiff produces a three-line-context hunk diff between from and to,
// using `@@ previous script: lines A-B @@` / `@@  current script: lines
// A-B @@` hunk headers (the double space before "current" lines up the
// two header lines for fixed-width rendering, matching the canonical
// corpus form).
func TextDiff(from, to string) string {
	if from == to {
		return NoDifferenceSentinel
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	ops := opsFromDiffs(diffs)
	hunks := groupHunks(ops, contextLines)

	var sb strings.Builder
	for i, h := range hunks {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeHunk(&sb, ops, h)
	}
	return sb.String()
}

// lineOp tags one line of either the old or new file (or both, for an
// unchanged line) with its diff kind.
type lineOp struct {
	kind byte // ' ', '-', '+'
	text string
	old  int  // 1-based line number in the old file; 0 if not present there
	new  int  // 1-based line number in the new file; 0 if not present there
}

func opsFromDiffs(diffs []diffmatchpatch.Diff) []lineOp {
	var ops []lineOp
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		lines := splitLines(d.Text)
		for _, l := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{kind: ' ', text: l, old: oldLine, new: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{kind: '-', text: l, old: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{kind: '+', text: l, new: newLine})
				newLine++
			}
		}
	}
	return ops
}

// splitLines splits s on "\n", dropping a single trailing empty element
// produced by a trailing newline (go-diff's line mode always terminates
// each line-chunk with "\n" except possibly the final one).
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// hunkRange is a half-open [start, end) index range into ops.
type hunkRange struct{ start, end int }

// groupHunks finds contiguous regions of ops within `context` lines of a
// change, merging adjacent/overlapping regions into single hunks.
func groupHunks(ops []lineOp, context int) []hunkRange {
	var changed []int
	for i, op := range ops {
		if op.kind != ' ' {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var hunks []hunkRange
	start := changed[0] - context
	end := changed[0] + context + 1
	if start < 0 {
		start = 0
	}
	if end > len(ops) {
		end = len(ops)
	}
	for _, idx := range changed[1:] {
		s := idx - context
		e := idx + context + 1
		if s < 0 {
			s = 0
		}
		if e > len(ops) {
			e = len(ops)
		}
		if s <= end {
			if e > end {
				end = e
			}
			continue
		}
		hunks = append(hunks, hunkRange{start, end})
		start, end = s, e
	}
	hunks = append(hunks, hunkRange{start, end})
	return hunks
}

func writeHunk(sb *strings.Builder, ops []lineOp, h hunkRange) {
	oldStart, oldEnd := lineBounds(ops[h.start:h.end], func(o lineOp) int { return o.old })
	newStart, newEnd := lineBounds(ops[h.start:h.end], func(o lineOp) int { return o.new })

	fmt.Fprintf(sb, "@@ previous script: lines %d-%d @@\n", oldStart, oldEnd)
	fmt.Fprintf(sb, "@@  current script: lines %d-%d @@\n", newStart, newEnd)
	for _, op := range ops[h.start:h.end] {
		sb.WriteByte(op.kind)
		sb.WriteString(op.text)
		sb.WriteString("\n")
	}
}

func lineBounds(ops []lineOp, get func(lineOp) int) (start, end int) {
	for _, op := range ops {
		n := get(op)
		if n == 0 {
			continue
		}
		if start == 0 || n < start {
			start = n
		}
		if n > end {
			end = n
		}
	}
	return start, end
}
