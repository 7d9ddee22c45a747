package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckFileName(t *testing.T) {
	t.Run("should accept plain pdf base names", func(t *testing.T) {
		req := require.New(t)
		for _, name := range []string{"a.pdf", "SMA_Negeri-1.pdf", "school.2025.pdf", "a..b.pdf", "..pdf"} {
			req.NoError(CheckFileName(name), name)
		}
	})

	t.Run("should reject traversal, absolute paths and other extensions", func(t *testing.T) {
		req := require.New(t)
		for _, name := range []string{
			"",
			"../a.pdf",
			"..\\a.pdf",
			"/etc/a.pdf",
			"dir/a.pdf",
			"a.pdf\x00.txt",
			"a.txt",
			"a.PDF",
			"a .pdf",
			".pdf",
			"..",
			"a..b.pdf/..",
		} {
			req.ErrorIs(CheckFileName(name), ErrUnsafeName, name)
		}
	})
}

func TestRootResolve(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "pdf")
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "folder.pdf"), 0o755))

	r := NewRoot(root)

	t.Run("should resolve a file inside the root", func(t *testing.T) {
		req := require.New(t)

		path, err := r.Resolve("a.pdf")

		req.NoError(err)
		req.Equal("a.pdf", filepath.Base(path))
	})

	t.Run("should only use the base name of the bound file", func(t *testing.T) {
		req := require.New(t)

		path, err := r.Resolve("../outside/a.pdf")

		req.NoError(err)
		req.Equal("a.pdf", filepath.Base(path))
	})

	t.Run("should report a missing file as not found", func(t *testing.T) {
		_, err := r.Resolve("missing.pdf")

		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should report a directory as not found", func(t *testing.T) {
		_, err := r.Resolve("folder.pdf")

		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should flag a symlink leaving the root", func(t *testing.T) {
		req := require.New(t)
		link := filepath.Join(root, "link.pdf")
		if err := os.Symlink(filepath.Join(outside, "secret.pdf"), link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		_, err := r.Resolve("link.pdf")

		req.ErrorIs(err, ErrOutsideRoot)
	})

	t.Run("should report a missing root as not found", func(t *testing.T) {
		_, err := NewRoot(filepath.Join(dir, "nope")).Resolve("a.pdf")

		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWithin(t *testing.T) {
	req := require.New(t)
	root := filepath.FromSlash("/srv/pdf")

	req.True(Within(root, filepath.FromSlash("/srv/pdf/a.pdf")))
	req.False(Within(root, filepath.FromSlash("/srv/pdf_evil/a.pdf")))
	req.False(Within(root, filepath.FromSlash("/srv/a.pdf")))
	req.False(Within(root, root))
}
