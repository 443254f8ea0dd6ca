package diffutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildXLSX assembles a minimal single-sheet xlsx (inline strings, no
// shared-strings table) containing rows, each a slice of cell text values.
func buildXLSX(t *testing.T, sheetName string, rows [][]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	workbookXML := fmt.Sprintf(`<?xml version="1.0"?><workbook><sheets><sheet name="%s" sheetId="1" r:id="rId1"/></sheets></workbook>`, sheetName)
	writeZipFile(t, zw, "xl/workbook.xml", workbookXML)

	relsXML := `<?xml version="1.0"?><Relationships><Relationship Id="rId1" Target="worksheets/sheet1.xml"/></Relationships>`
	writeZipFile(t, zw, "xl/_rels/workbook.xml.rels", relsXML)

	var sheetBody bytes.Buffer
	sheetBody.WriteString(`<?xml version="1.0"?><worksheet><sheetData>`)
	for i, row := range rows {
		fmt.Fprintf(&sheetBody, `<row r="%d">`, i+1)
		for _, cell := range row {
			fmt.Fprintf(&sheetBody, `<c t="inlineStr"><is><t>%s</t></is></c>`, cell)
		}
		sheetBody.WriteString(`</row>`)
	}
	sheetBody.WriteString(`</sheetData></worksheet>`)
	writeZipFile(t, zw, "xl/worksheets/sheet1.xml", sheetBody.String())

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZipFile(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
}

func TestWorkbookDiff_IdenticalWorkbooksReturnSentinel(t *testing.T) {
	data := buildXLSX(t, "Sheet1", [][]string{{"a", "b"}, {"c", "d"}})
	got, err := WorkbookDiff(data, data)
	require.NoError(t, err)
	assert.Equal(t, NoDifferenceSentinel, got)
}

func TestWorkbookDiff_SheetAddedAndRemoved(t *testing.T) {
	from := buildXLSX(t, "Old", [][]string{{"x"}})
	to := buildXLSX(t, "New", [][]string{{"x"}})

	got, err := WorkbookDiff(from, to)
	require.NoError(t, err)
	assert.Contains(t, got, "- sheet removed: Old")
	assert.Contains(t, got, "+ sheet added: New")
}

func TestWorkbookDiff_RowAddedRemovedAndModified(t *testing.T) {
	from := buildXLSX(t, "Sheet1", [][]string{
		{"id1", "alpha", "v1"},
		{"id2", "beta", "v1"},
	})
	to := buildXLSX(t, "Sheet1", [][]string{
		{"id1", "alpha", "v2"},
		{"id3", "gamma", "v1"},
	})

	got, err := WorkbookDiff(from, to)
	require.NoError(t, err)
	assert.Contains(t, got, "## sheet Sheet1")
	assert.Contains(t, got, "modified")
	assert.Contains(t, got, "id1")
	assert.Contains(t, got, "- row 2 removed")
	assert.Contains(t, got, "+ row 2 added")
}

func TestWorkbookDiff_NonZipInputYieldsNoSheetsAndNoDifference(t *testing.T) {
	got, err := WorkbookDiff([]byte("not a zip"), []byte("also not a zip, different"))
	require.NoError(t, err)
	assert.Equal(t, NoDifferenceSentinel, got)
}
