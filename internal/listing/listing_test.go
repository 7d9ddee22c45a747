package listing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"participant-gate/internal/models"
)

const publicData = `[
  {"sekolah": "SMA Negeri 2", "pdf_file": "sman2.pdf", "pendamping": ["Budi", "Sari"], "verification_codes": ["1234"]},
  {"sekolah": "SMA Negeri 1", "pdf_file": "sman1.pdf", "pendamping": ["Ani"]},
  {"sekolah": "SMA Negeri 2", "pdf_file": "sman2.pdf", "pendamping": ["Dewi"]},
  {"sekolah": "SMA Negeri 2", "pdf_file": "sman2_b.pdf", "pendamping": ["Eko"]}
]`

func TestGroup(t *testing.T) {
	t.Run("should sort schools and nest companions under their file", func(t *testing.T) {
		req := require.New(t)
		records := []models.SchoolRecord{
			{School: "B", PDFFile: "b.pdf", Companions: []string{"x", "y"}},
			{School: "A", PDFFile: "a.pdf", Companions: []string{"z"}},
			{School: "B", PDFFile: "b.pdf", Companions: []string{"w"}},
			{School: "", PDFFile: "orphan.pdf", Companions: []string{"q"}},
		}

		groups := Group(records)

		req.Equal([]SchoolGroup{
			{School: "A", Files: []FileGroup{{PDFFile: "a.pdf", Companions: []string{"z"}}}},
			{School: "B", Files: []FileGroup{{PDFFile: "b.pdf", Companions: []string{"x", "y", "w"}}}},
		}, groups)
	})

	t.Run("should return an empty list for no records", func(t *testing.T) {
		req := require.New(t)

		req.Empty(Group(nil))
	})
}

func TestLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("should prefer the public file and never expose codes", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		public := filepath.Join(dir, "data_sekolah_public.json")
		full := filepath.Join(dir, "data_sekolah.json")
		req.NoError(os.WriteFile(public, []byte(publicData), 0o600))
		req.NoError(os.WriteFile(full, []byte(`[{"sekolah":"Other","pdf_file":"o.pdf","pendamping":["O"]}]`), 0o600))

		groups, err := NewLoader([]string{public, full}, zap.NewNop()).Grouped(ctx)

		req.NoError(err)
		req.Len(groups, 2)
		req.Equal("SMA Negeri 1", groups[0].School)
		req.Equal("SMA Negeri 2", groups[1].School)
		req.Equal([]FileGroup{
			{PDFFile: "sman2.pdf", Companions: []string{"Budi", "Sari", "Dewi"}},
			{PDFFile: "sman2_b.pdf", Companions: []string{"Eko"}},
		}, groups[1].Files)
	})

	t.Run("should fall back to the second candidate", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		full := filepath.Join(dir, "data_sekolah.json")
		req.NoError(os.WriteFile(full, []byte(`[{"sekolah":"Other","pdf_file":"o.pdf","pendamping":["O"]}]`), 0o600))

		records, err := NewLoader([]string{filepath.Join(dir, "data_sekolah_public.json"), full}, zap.NewNop()).Records(ctx)

		req.NoError(err)
		req.Len(records, 1)
		req.Equal("Other", records[0].School)
	})

	t.Run("should yield nothing when no file exists or the file is malformed", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		broken := filepath.Join(dir, "broken.json")
		req.NoError(os.WriteFile(broken, []byte("[{"), 0o600))

		records, err := NewLoader([]string{filepath.Join(dir, "absent.json")}, zap.NewNop()).Records(ctx)
		req.NoError(err)
		req.Empty(records)

		records, err = NewLoader([]string{broken}, zap.NewNop()).Records(ctx)
		req.NoError(err)
		req.Empty(records)
	})
}
