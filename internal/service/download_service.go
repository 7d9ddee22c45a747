package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"participant-gate/internal/events"
	"participant-gate/internal/models"
	"participant-gate/internal/pathsafe"
	"participant-gate/internal/token"
	"participant-gate/internal/util"
)

const pdfContentType = "application/pdf"

// Download is an open PDF ready to stream. The caller closes File.
type Download struct {
	File        *os.File
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

type DownloadService struct {
	issuer *token.Issuer
	root   *pathsafe.Root
	events events.Emitter
	clock  util.Clock
	logger *zap.Logger
}

func NewDownloadService(issuer *token.Issuer, root *pathsafe.Root, emitter events.Emitter, clock util.Clock, logger *zap.Logger) *DownloadService {
	return &DownloadService{
		issuer: issuer,
		root:   root,
		events: emitter,
		clock:  clock.OrNow(),
		logger: logger,
	}
}

// Redeem exchanges a token for its file. The token is consumed before any
// file access, so a token yields at most one download even when the
// file turns out to be unavailable.
func (s *DownloadService) Redeem(ctx context.Context, tokenID, clientID string) (*Download, error) {
	tok, err := s.issuer.Take(ctx, tokenID)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, token.ErrTokenCorrupted) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}
	if tok.Expired(s.clock()) {
		return nil, ErrExpired
	}

	path, err := s.root.Resolve(tok.File)
	if err != nil {
		switch {
		case errors.Is(err, pathsafe.ErrOutsideRoot):
			s.events.Emit(ctx, models.EventPathViolation, clientID, tok.File, err.Error())
			return nil, ErrPathViolation
		case errors.Is(err, pathsafe.ErrNotFound):
			s.events.Emit(ctx, models.EventFileMissing, clientID, tok.File, err.Error())
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("failed to resolve %s: %w", tok.File, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.events.Emit(ctx, models.EventFileMissing, clientID, tok.File, err.Error())
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", tok.File, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", tok.File, err)
	}

	s.checkContent(ctx, f, tok.File, clientID)

	s.logger.Info("Download token redeemed",
		util.String("client_id", clientID),
		util.String("file", tok.File),
		util.Int64("size", info.Size()),
	)

	return &Download{
		File:        f,
		Name:        filepath.Base(tok.File),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: pdfContentType,
	}, nil
}

// checkContent reports files whose bytes are not a PDF. They are still
// served with the PDF content type.
func (s *DownloadService) checkContent(ctx context.Context, f *os.File, file, clientID string) {
	head := make([]byte, 3072)
	n, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Warn("Failed to sniff download content", util.String("file", file), util.ErrorField(err))
		return
	}
	detected := mimetype.Detect(head[:n])
	if !detected.Is(pdfContentType) {
		s.events.Emit(ctx, models.EventContentMismatch, clientID, file, "detected "+detected.String())
	}
}
