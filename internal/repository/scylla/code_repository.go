package scylla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"participant-gate/internal/models"
	"participant-gate/internal/util"
)

// CodeRepository reads verification codes from the verification_codes
// table:
//
//	CREATE TABLE verification_codes (
//	    pdf_file   text PRIMARY KEY,
//	    codes      list<text>,
//	    updated_at timestamp
//	);
const (
	listCodesStmt  = `SELECT pdf_file, codes FROM verification_codes`
	upsertCodeStmt = `INSERT INTO verification_codes (pdf_file, codes, updated_at) VALUES (?, ?, ?)`
)

type CodeRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewCodeRepository(client *ScyllaClient, logger *zap.Logger) *CodeRepository {
	return &CodeRepository{client: client, logger: logger}
}

// Load returns every entry in the table. An empty table yields no entries.
func (r *CodeRepository) Load(ctx context.Context) ([]models.Entry, error) {
	iter := r.client.Query(listCodesStmt).WithContext(ctx).Iter()

	var entries []models.Entry
	var entry models.Entry
	for iter.Scan(&entry.PDFFile, &entry.Codes) {
		entries = append(entries, entry)
		entry = models.Entry{}
	}
	if err := iter.Close(); err != nil {
		r.logger.Error("Failed to list verification codes", util.ErrorField(err))
		return nil, fmt.Errorf("failed to list verification codes: %w", err)
	}
	return entries, nil
}

// Upsert replaces the codes for one file.
func (r *CodeRepository) Upsert(ctx context.Context, entry models.Entry) error {
	query := r.client.Query(upsertCodeStmt, entry.PDFFile, entry.Codes, time.Now().UTC())
	if err := r.client.ExecuteWithRetry(ctx, query, 2); err != nil {
		r.logger.Error("Failed to upsert verification codes",
			util.String("pdf_file", entry.PDFFile),
			util.ErrorField(err))
		return fmt.Errorf("failed to upsert verification codes: %w", err)
	}
	return nil
}
