// Package archive builds the milestone archive bundle supplemented from
// original_source/src/archive.rs (§12): a directory of one subdirectory
// per QC'd file holding its rendered status and checklist summary, and a
// uuid-named tarball of that directory. PDF/TAR *rendering* (Quarto/
// LibreOffice conversion) stays out of scope (§1) — this package only
// assembles the bundle's data.
package archive

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/a2-ai/ghqc/internal/model"
)

// recordDateEnvVar (§6) lets a caller pin the bundle's recorded-at
// timestamp for reproducible dated output, instead of always stamping the
// current time.
const recordDateEnvVar = "GHQC_RECORD_DATE"

// FileRecord is one QC'd file's recorded state in a milestone bundle.
type FileRecord struct {
	File             string
	Status           model.QCStatus
	ChecklistSummary model.ChecklistSummary
	BlockingSummary  string
}

// Bundle is a built milestone archive: a stable ID and the recorded state
// of every file in the milestone at RecordedAt.
type Bundle struct {
	ID         string
	Milestone  int
	RecordedAt time.Time
	Files      []FileRecord
}

// RecordedAt resolves the bundle timestamp: GHQC_RECORD_DATE (RFC3339, or
// a plain 2006-01-02 date) when set and parseable, else now().
func RecordedAt(now func() time.Time) time.Time {
	if raw := os.Getenv(recordDateEnvVar); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	if now == nil {
		now = time.Now
	}
	return now()
}

// Build assembles a Bundle from the given records, stamping a new random
// ID and RecordedAt().
func Build(milestone int, records []FileRecord, now func() time.Time) Bundle {
	return Bundle{
		ID:         uuid.New().String(),
		Milestone:  milestone,
		RecordedAt: RecordedAt(now),
		Files:      records,
	}
}

type fileRecordJSON struct {
	File            string  `json:"file"`
	Status          string  `json:"status"`
	ChecklistDone   int     `json:"checklist_completed"`
	ChecklistTotal  int     `json:"checklist_total"`
	ChecklistPct    float64 `json:"checklist_percent"`
	BlockingSummary string  `json:"blocking_summary"`
}

// Write assembles the bundle directory under root/<id>/ (one subdirectory
// per file, holding status.json and checklist.md) and a root/<id>.tar
// tarball of that directory. It returns the bundle directory path and the
// tarball path.
func Write(root string, b Bundle) (dir string, tarPath string, err error) {
	dir = filepath.Join(root, b.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "creating bundle directory")
	}

	manifest := make([]fileRecordJSON, 0, len(b.Files))
	for _, rec := range b.Files {
		subdir := filepath.Join(dir, sanitizeFileName(rec.File))
		if err := os.MkdirAll(subdir, 0o755); err != nil {
			return "", "", errors.Wrapf(err, "creating directory for %s", rec.File)
		}
		fr := fileRecordJSON{
			File:            rec.File,
			Status:          rec.Status.String(),
			ChecklistDone:   rec.ChecklistSummary.Completed,
			ChecklistTotal:  rec.ChecklistSummary.Total,
			ChecklistPct:    rec.ChecklistSummary.CompletionPercentage(),
			BlockingSummary: rec.BlockingSummary,
		}
		manifest = append(manifest, fr)

		data, err := json.MarshalIndent(fr, "", "  ")
		if err != nil {
			return "", "", err
		}
		if err := os.WriteFile(filepath.Join(subdir, "status.json"), data, 0o644); err != nil {
			return "", "", err
		}
		md := renderChecklistMarkdown(rec)
		if err := os.WriteFile(filepath.Join(subdir, "checklist.md"), []byte(md), 0o644); err != nil {
			return "", "", err
		}
	}

	manifestData, err := json.MarshalIndent(struct {
		ID         string           `json:"id"`
		Milestone  int              `json:"milestone"`
		RecordedAt time.Time        `json:"recorded_at"`
		Files      []fileRecordJSON `json:"files"`
	}{b.ID, b.Milestone, b.RecordedAt, manifest}, "", "  ")
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestData, 0o644); err != nil {
		return "", "", err
	}

	tarPath = dir + ".tar"
	if err := writeTar(dir, tarPath); err != nil {
		return "", "", errors.Wrap(err, "writing tarball")
	}
	return dir, tarPath, nil
}

func renderChecklistMarkdown(rec FileRecord) string {
	return fmt.Sprintf("# %s\n\nStatus: %s\n\nChecklist: %d/%d (%.1f%%)\n\nBlocking QCs: %s\n",
		rec.File, rec.Status.String(), rec.ChecklistSummary.Completed, rec.ChecklistSummary.Total,
		rec.ChecklistSummary.CompletionPercentage(), blankDash(rec.BlockingSummary))
}

func blankDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sanitizeFileName collapses path separators in a repo-relative file path
// into a single flat directory name, since the bundle nests one directory
// per file directly under the bundle root.
func sanitizeFileName(file string) string {
	return strings.ReplaceAll(file, string(filepath.Separator), "__")
}

func writeTar(srcDir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(filepath.Dir(srcDir), path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
}
