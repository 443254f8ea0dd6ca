package archive

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2-ai/ghqc/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecordedAt_UsesEnvVarWhenSet(t *testing.T) {
	t.Setenv("GHQC_RECORD_DATE", "2026-01-15")
	got := RecordedAt(fixedClock(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 15, got.Day())
}

func TestRecordedAt_FallsBackToClockWhenUnset(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	got := RecordedAt(fixedClock(now))
	assert.Equal(t, now, got)
}

func TestBuild_StampsIDAndFiles(t *testing.T) {
	records := []FileRecord{{File: "analysis.R", Status: model.QCStatus{Kind: model.Approved}}}
	b := Build(7, records, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 7, b.Milestone)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, records, b.Files)
}

func TestWrite_ProducesPerFileDirectoriesManifestAndTar(t *testing.T) {
	root := t.TempDir()
	b := Build(3, []FileRecord{
		{
			File:             "nested/dir/analysis.R",
			Status:           model.QCStatus{Kind: model.Approved},
			ChecklistSummary: model.ChecklistSummary{Completed: 4, Total: 4},
			BlockingSummary:  "n/a",
		},
	}, fixedClock(time.Now()))

	dir, tarPath, err := Write(root, b)
	require.NoError(t, err)

	manifestData, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	var manifest struct {
		ID    string `json:"id"`
		Files []struct {
			File string `json:"file"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(manifestData, &manifest))
	assert.Equal(t, b.ID, manifest.ID)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, "nested/dir/analysis.R", manifest.Files[0].File)

	subdir := filepath.Join(dir, "nested__dir__analysis.R")
	assert.FileExists(t, filepath.Join(subdir, "status.json"))
	assert.FileExists(t, filepath.Join(subdir, "checklist.md"))

	assert.FileExists(t, tarPath)
	assertTarContains(t, tarPath, "manifest.json")
}

func assertTarContains(t *testing.T, tarPath, name string) {
	t.Helper()
	f, err := os.Open(tarPath)
	require.NoError(t, err)
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if filepath.Base(hdr.Name) == name {
			return
		}
	}
	t.Fatalf("tar %s does not contain %s", tarPath, name)
}
