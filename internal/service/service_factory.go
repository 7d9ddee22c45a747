package service

import (
	"go.uber.org/zap"

	"participant-gate/internal/codestore"
	"participant-gate/internal/events"
	"participant-gate/internal/pathsafe"
	"participant-gate/internal/ratelimit"
	"participant-gate/internal/token"
	"participant-gate/internal/util"
)

// ServiceFactory wires the gate services over shared stores.
type ServiceFactory struct {
	codes   codestore.Source
	tracker ratelimit.Tracker
	issuer  *token.Issuer
	root    *pathsafe.Root
	events  events.Emitter
	clock   util.Clock
	logger  *zap.Logger

	verificationService *VerificationService
	downloadService     *DownloadService
}

func NewServiceFactory(
	codes codestore.Source,
	tracker ratelimit.Tracker,
	issuer *token.Issuer,
	root *pathsafe.Root,
	emitter events.Emitter,
	clock util.Clock,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		codes:   codes,
		tracker: tracker,
		issuer:  issuer,
		root:    root,
		events:  emitter,
		clock:   clock,
		logger:  logger,
	}
}

// VerificationService returns the verification service instance (singleton)
func (f *ServiceFactory) VerificationService() *VerificationService {
	if f.verificationService == nil {
		f.verificationService = NewVerificationService(
			f.codes,
			f.tracker,
			f.issuer,
			f.root,
			f.events,
			f.logger.Named("verify"),
		)
	}
	return f.verificationService
}

// DownloadService returns the download service instance (singleton)
func (f *ServiceFactory) DownloadService() *DownloadService {
	if f.downloadService == nil {
		f.downloadService = NewDownloadService(
			f.issuer,
			f.root,
			f.events,
			f.clock,
			f.logger.Named("download"),
		)
	}
	return f.downloadService
}
