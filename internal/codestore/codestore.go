// Package codestore loads the verification codes that unlock each PDF.
package codestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"participant-gate/internal/models"
	"participant-gate/internal/util"
)

// Source yields the current code entries. A missing source yields no
// entries rather than an error.
type Source interface {
	Load(ctx context.Context) ([]models.Entry, error)
}

// Lookup returns the entry for file, matched by exact name.
func Lookup(entries []models.Entry, file string) (models.Entry, bool) {
	for _, e := range entries {
		if e.PDFFile == file {
			return e, true
		}
	}
	return models.Entry{}, false
}

// FileSource reads a JSON array of entries from disk on every Load, so
// edits to the file apply without a restart.
type FileSource struct {
	path   string
	logger *zap.Logger
}

func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

type rawEntry struct {
	PDFFile string            `json:"pdf_file"`
	Codes   []json.RawMessage `json:"verification_codes"`
}

func (s *FileSource) Load(_ context.Context) ([]models.Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		s.logger.Warn("Verification code file unreadable", util.String("path", s.path), util.ErrorField(err))
		return nil, nil
	}

	var raw []rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("Verification code file malformed", util.String("path", s.path), util.ErrorField(err))
		return nil, nil
	}

	entries := make([]models.Entry, 0, len(raw))
	for _, r := range raw {
		if r.PDFFile == "" {
			continue
		}
		entries = append(entries, models.Entry{PDFFile: r.PDFFile, Codes: codeStrings(r.Codes)})
	}
	return entries, nil
}

// codeStrings keeps string codes as written and numeric codes as their
// literal text; anything else is dropped.
func codeStrings(raw []json.RawMessage) []string {
	codes := make([]string, 0, len(raw))
	for _, r := range raw {
		if string(r) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			codes = append(codes, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(r, &n); err == nil {
			codes = append(codes, strings.TrimSpace(string(r)))
		}
	}
	return codes
}

// Write stores entries at path as indented JSON.
func Write(path string, entries []models.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode verification codes: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write verification codes: %w", err)
	}
	return nil
}
