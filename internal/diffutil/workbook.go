package diffutil

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// sheet is one worksheet's row/cell values, in document order.
type sheet struct {
	name string
	rows [][]string
}

// workbook is the minimal OOXML structure §4.10's contract needs: an
// ordered list of sheets, each a grid of cell text values. This does not
// aim to be a general-purpose spreadsheet reader (deep fidelity is
// explicitly out of scope, §1) — only enough of xlsx's zip+XML shape to
// drive the row-level diff heuristic below.
type workbook struct {
	sheets []sheet
}

// WorkbookDiff implements the spreadsheet half of the §4.10 contract: a
// fenced `diff` block describing added/removed sheets and, per common
// sheet, row-level added/removed/modified/moved changes, keyed by a
// similarity heuristic over each row's first three non-empty cells
// (≥0.6 threshold).
func WorkbookDiff(fromBytes, toBytes []byte) (string, error) {
	from, err := readWorkbook(fromBytes)
	if err != nil {
		return "", errors.Wrap(err, "reading previous workbook")
	}
	to, err := readWorkbook(toBytes)
	if err != nil {
		return "", errors.Wrap(err, "reading current workbook")
	}

	var sb strings.Builder
	fromIdx := sheetIndex(from)
	toIdx := sheetIndex(to)

	for _, s := range from.sheets {
		if _, ok := toIdx[s.name]; !ok {
			fmt.Fprintf(&sb, "- sheet removed: %s\n", s.name)
		}
	}
	for _, s := range to.sheets {
		if _, ok := fromIdx[s.name]; !ok {
			fmt.Fprintf(&sb, "+ sheet added: %s\n", s.name)
		}
	}

	for _, s := range to.sheets {
		prev, ok := fromIdx[s.name]
		if !ok {
			continue
		}
		changes := diffSheet(prev.rows, s.rows)
		if len(changes) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## sheet %s\n", s.name)
		for _, c := range changes {
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}

	if sb.Len() == 0 {
		return NoDifferenceSentinel, nil
	}
	return sb.String(), nil
}

func sheetIndex(w workbook) map[string]sheet {
	out := make(map[string]sheet, len(w.sheets))
	for _, s := range w.sheets {
		out[s.name] = s
	}
	return out
}

// similarityThreshold is the §4.10 row-matching threshold.
const similarityThreshold = 0.6

// diffSheet matches rows between prev and cur by the similarity of their
// first three non-empty cells, reporting added/removed/modified/moved
// rows.
func diffSheet(prev, cur [][]string) []string {
	matchedPrev := make([]bool, len(prev))
	matchedCur := make([]bool, len(cur))
	var out []string

	// Exact-match pass first, by position, to avoid flagging untouched
	// rows as "moved" when nothing changed.
	for i := 0; i < len(prev) && i < len(cur); i++ {
		if rowKey(prev[i]) == rowKey(cur[i]) {
			matchedPrev[i] = true
			matchedCur[i] = true
		}
	}

	type candidate struct {
		i, j  int
		score float64
	}
	var candidates []candidate
	for i, p := range prev {
		if matchedPrev[i] {
			continue
		}
		for j, c := range cur {
			if matchedCur[j] {
				continue
			}
			score := similarity(rowKey(p), rowKey(c))
			if score >= similarityThreshold {
				candidates = append(candidates, candidate{i, j, score})
			}
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

	moved := map[int]int{}  // prev index -> cur index
	modified := map[int]int{}
	for _, c := range candidates {
		if matchedPrev[c.i] || matchedCur[c.j] {
			continue
		}
		matchedPrev[c.i] = true
		matchedCur[c.j] = true
		if c.i == c.j {
			modified[c.i] = c.j
		} else {
			moved[c.i] = c.j
		}
	}

	// Emit in a stable, readable order: removed, added, modified, moved.
	for i, p := range prev {
		if !matchedPrev[i] {
			out = append(out, fmt.Sprintf("- row %d removed: %s", i+1, rowKey(p)))
		}
	}
	for j, c := range cur {
		if !matchedCur[j] {
			out = append(out, fmt.Sprintf("+ row %d added: %s", j+1, rowKey(c)))
		}
	}
	for i, j := range modified {
		out = append(out, fmt.Sprintf("~ row %d modified: %s -> %s", i+1, rowKey(prev[i]), rowKey(cur[j])))
	}
	for i, j := range moved {
		out = append(out, fmt.Sprintf("~ row %d moved to row %d: %s", i+1, j+1, rowKey(prev[i])))
	}
	return out
}

// rowKey joins the first three non-empty cells of a row, the heuristic
// basis for similarity comparison.
func rowKey(row []string) string {
	var parts []string
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		parts = append(parts, cell)
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, " | ")
}

// similarity is a simple token-overlap ratio: the fraction of
// whitespace-delimited tokens shared between a and b relative to the
// larger token set, with rowKey's " | " cell separator dropped first so it
// does not count as a shared token. This is sufficient for the ≥0.6
// threshold the contract names; it does not aim to be a general
// string-similarity algorithm.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ta := strings.Fields(strings.ReplaceAll(a, " | ", " "))
	tb := strings.Fields(strings.ReplaceAll(b, " | ", " "))
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]int, len(ta))
	for _, t := range ta {
		set[t]++
	}
	shared := 0
	for _, t := range tb {
		if set[t] > 0 {
			set[t]--
			shared++
		}
	}
	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}
	return float64(shared) / float64(denom)
}

// --- minimal OOXML reading ---

type wbSheetRef struct {
	Name    string `xml:"name,attr"`
	SheetID string `xml:"sheetId,attr"`
	RID     string `xml:"id,attr"`
}

type wbXML struct {
	Sheets struct {
		Sheet []wbSheetRef `xml:"sheet"`
	} `xml:"sheets"`
}

type relXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type sstXML struct {
	SI []struct {
		T string   `xml:"t"`
		R []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type sheetDataXML struct {
	SheetData struct {
		Row []struct {
			R  string `xml:"r,attr"`
			C  []struct {
				R string `xml:"r,attr"`
				T string `xml:"t,attr"`
				V string `xml:"v"`
				Is struct {
					T string `xml:"t"`
				} `xml:"is"`
			} `xml:"c"`
		} `xml:"row"`
	} `xml:"sheetData"`
}

// readWorkbook parses the minimal subset of an OOXML zip needed to drive
// the row-level diff: workbook.xml for sheet order/names, the
// relationship file to map sheet -> worksheet part, sharedStrings.xml for
// string-table cells, and each worksheet's sheetData.
//
// Any zip carrying xl/workbook.xml is read this way, whatever its
// extension, so .xlsx and .xlsm both parse. Input that is not a zip, or a
// zip without xl/workbook.xml (legacy binary .xls, .xlsb), yields a
// workbook with no sheets and no error, so WorkbookDiff reports no
// difference for it.
func readWorkbook(data []byte) (workbook, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return workbook{}, nil // not a zip-based workbook; nothing to report
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	wbFile, ok := files["xl/workbook.xml"]
	if !ok {
		return workbook{}, nil
	}
	var wb wbXML
	if err := unmarshalZip(wbFile, &wb); err != nil {
		return workbook{}, errors.Wrap(err, "parsing workbook.xml")
	}

	var rels relXML
	if relFile, ok := files["xl/_rels/workbook.xml.rels"]; ok {
		if err := unmarshalZip(relFile, &rels); err != nil {
			return workbook{}, errors.Wrap(err, "parsing workbook rels")
		}
	}
	targetByRID := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		targetByRID[r.ID] = r.Target
	}

	shared := loadSharedStrings(files)

	out := workbook{}
	for i, s := range wb.Sheets.Sheet {
		target := targetByRID[s.RID]
		if target == "" {
			target = fmt.Sprintf("worksheets/sheet%d.xml", i+1)
		}
		path := "xl/" + strings.TrimPrefix(target, "/")
		sf, ok := files[path]
		if !ok {
			continue
		}
		rows, err := readSheetRows(sf, shared)
		if err != nil {
			return workbook{}, errors.Wrapf(err, "parsing sheet %s", s.Name)
		}
		out.sheets = append(out.sheets, sheet{name: s.Name, rows: rows})
	}
	return out, nil
}

func loadSharedStrings(files map[string]*zip.File) []string {
	f, ok := files["xl/sharedStrings.xml"]
	if !ok {
		return nil
	}
	var sst sstXML
	if err := unmarshalZip(f, &sst); err != nil {
		return nil
	}
	out := make([]string, len(sst.SI))
	for i, si := range sst.SI {
		if si.T != "" {
			out[i] = si.T
			continue
		}
		var parts []string
		for _, r := range si.R {
			parts = append(parts, r.T)
		}
		out[i] = strings.Join(parts, "")
	}
	return out
}

func readSheetRows(f *zip.File, shared []string) ([][]string, error) {
	var sd sheetDataXML
	if err := unmarshalZip(f, &sd); err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(sd.SheetData.Row))
	for _, row := range sd.SheetData.Row {
		var cells []string
		for _, c := range row.C {
			cells = append(cells, cellText(c.T, c.V, c.Is.T, shared))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func cellText(cellType, v, inlineText string, shared []string) string {
	switch cellType {
	case "s":
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return inlineText
	default:
		return v
	}
}

func unmarshalZip(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}
