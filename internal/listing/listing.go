// Package listing serves the public participant list grouped by school.
// Verification codes never leave this package.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"participant-gate/internal/models"
	"participant-gate/internal/util"
)

type FileGroup struct {
	PDFFile    string   `json:"pdf_file"`
	Companions []string `json:"companions"`
}

type SchoolGroup struct {
	School string      `json:"school"`
	Files  []FileGroup `json:"files"`
}

type Loader struct {
	candidates []string
	logger     *zap.Logger
}

// NewLoader reads the first of candidates that exists.
func NewLoader(candidates []string, logger *zap.Logger) *Loader {
	return &Loader{candidates: candidates, logger: logger}
}

// Records returns the school records from the first existing candidate
// file. A missing or malformed file yields no records.
func (l *Loader) Records(_ context.Context) ([]models.SchoolRecord, error) {
	path, ok := lo.Find(l.candidates, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
	if !ok {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("School data unreadable", util.String("path", path), util.ErrorField(err))
		}
		return nil, nil
	}

	var records []models.SchoolRecord
	if err := json.Unmarshal(data, &records); err != nil {
		l.logger.Warn("School data malformed", util.String("path", path), util.ErrorField(err))
		return nil, nil
	}
	return records, nil
}

func (l *Loader) Grouped(ctx context.Context) ([]SchoolGroup, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return nil, err
	}
	return Group(records), nil
}

// Group nests records by school and then by PDF file. Schools are sorted
// by name; files and companions keep their input order.
func Group(records []models.SchoolRecord) []SchoolGroup {
	records = lo.Filter(records, func(r models.SchoolRecord, _ int) bool {
		return r.School != ""
	})
	bySchool := lo.GroupBy(records, func(r models.SchoolRecord) string {
		return r.School
	})

	schools := lo.Keys(bySchool)
	sort.Strings(schools)

	return lo.Map(schools, func(school string, _ int) SchoolGroup {
		rows := bySchool[school]
		files := lo.Uniq(lo.Map(rows, func(r models.SchoolRecord, _ int) string {
			return r.PDFFile
		}))
		return SchoolGroup{
			School: school,
			Files: lo.Map(files, func(file string, _ int) FileGroup {
				return FileGroup{
					PDFFile: file,
					Companions: lo.FlatMap(rows, func(r models.SchoolRecord, _ int) []string {
						if r.PDFFile != file {
							return nil
						}
						return lo.Compact(r.Companions)
					}),
				}
			}),
		}
	})
}
