package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"participant-gate/internal/config"
	"participant-gate/internal/handler"
)

func newMemoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	base := t.TempDir()
	cfg.Gate.PDFDir = filepath.Join(base, "pdf_files")
	cfg.Gate.DataDir = filepath.Join(base, "secure_data")
	cfg.Gate.SchoolDataFiles = []string{filepath.Join(base, "data_sekolah.json")}
	require.NoError(t, os.Mkdir(cfg.Gate.PDFDir, 0o755))
	return cfg
}

func TestFactory(t *testing.T) {
	t.Run("should build an in-memory gate without external backends", func(t *testing.T) {
		req := require.New(t)
		f, err := New(newMemoryConfig(t), zap.NewNop())
		req.NoError(err)
		t.Cleanup(func() { _ = f.Close() })

		req.Nil(f.redisClient)
		req.Nil(f.scyllaClient)
		req.NotNil(f.memoryTracker)
		req.Len(f.Workers(), 2)
		req.NoError(f.Ready(context.Background()))

		router := handler.NewRouter(f.GateHandler(), f.Config().Server, f.Ready, zap.NewNop())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		req.Equal(http.StatusOK, rec.Code)
	})

	t.Run("should report a missing PDF directory as not ready", func(t *testing.T) {
		req := require.New(t)
		cfg := newMemoryConfig(t)
		req.NoError(os.Remove(cfg.Gate.PDFDir))
		f, err := New(cfg, zap.NewNop())
		req.NoError(err)
		t.Cleanup(func() { _ = f.Close() })

		err = f.Ready(context.Background())

		req.ErrorContains(err, "pdf_dir")
	})

	t.Run("should stop background workers on cancel", func(t *testing.T) {
		req := require.New(t)
		f, err := New(newMemoryConfig(t), zap.NewNop())
		req.NoError(err)
		t.Cleanup(func() { _ = f.Close() })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		for _, run := range f.Workers() {
			req.NoError(run(ctx))
		}
	})
}
