package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"participant-gate/internal/codestore"
	"participant-gate/internal/events"
	"participant-gate/internal/models"
	"participant-gate/internal/pathsafe"
	"participant-gate/internal/ratelimit"
	"participant-gate/internal/token"
	"participant-gate/internal/util"
)

type Outcome int

const (
	Verified Outcome = iota
	Denied
	Locked
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Denied:
		return "denied"
	case Locked:
		return "locked"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

type VerifyResult struct {
	Outcome           Outcome
	Message           string
	RemainingAttempts int
	RetryAfter        time.Duration
}

// Grant is a successful verification exchanged for a download token.
type Grant struct {
	Token     string
	File      string
	ExpiresAt time.Time
	Message   string
}

const verifiedMessage = "Verification successful."

// VerificationService checks codes against the code source, enforcing the
// per-client attempt limit, and issues download tokens.
type VerificationService struct {
	codes    codestore.Source
	tracker  ratelimit.Tracker
	issuer   *token.Issuer
	root     *pathsafe.Root
	events   events.Emitter
	validate *validator.Validate
	logger   *zap.Logger
}

func NewVerificationService(
	codes codestore.Source,
	tracker ratelimit.Tracker,
	issuer *token.Issuer,
	root *pathsafe.Root,
	emitter events.Emitter,
	logger *zap.Logger,
) *VerificationService {
	return &VerificationService{
		codes:    codes,
		tracker:  tracker,
		issuer:   issuer,
		root:     root,
		events:   emitter,
		validate: newValidator(),
		logger:   logger,
	}
}

// Verify checks code for file on behalf of clientID. Malformed input is
// reported as Invalid and never counts as an attempt. The returned error is
// reserved for backend failures.
func (s *VerificationService) Verify(ctx context.Context, file, code, clientID string) (VerifyResult, error) {
	req := VerifyRequest{PDFFile: file, Code: code}
	if err := s.validate.Struct(req); err != nil {
		return VerifyResult{Outcome: Invalid, Message: invalidInputMessage(err)}, nil
	}

	state, err := s.tracker.Check(ctx, clientID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to check attempt state: %w", err)
	}
	if state.Status == ratelimit.Locked {
		return lockedResult(state), nil
	}

	entries, err := s.codes.Load(ctx)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to load verification codes: %w", err)
	}
	entry, _ := codestore.Lookup(entries, file)
	matched := entry.Accepts(code)

	state, err = s.tracker.Record(ctx, clientID, matched)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	switch state.Status {
	case ratelimit.Locked:
		if state.Triggered {
			s.events.Emit(ctx, models.EventLockoutTriggered, clientID, file, "")
		}
		return lockedResult(state), nil
	case ratelimit.Denied:
		return VerifyResult{
			Outcome:           Denied,
			Message:           fmt.Sprintf("Invalid verification code. Attempts remaining: %d", state.Remaining),
			RemainingAttempts: state.Remaining,
		}, nil
	}

	if !matched {
		// A tracker that allows a failed attempt still must not verify it.
		return VerifyResult{Outcome: Denied, Message: "Invalid verification code."}, nil
	}
	return VerifyResult{Outcome: Verified, Message: verifiedMessage, RemainingAttempts: state.Remaining}, nil
}

// Authorize verifies the code, confirms the file is servable and issues a
// download token for it.
func (s *VerificationService) Authorize(ctx context.Context, file, code, clientID string) (*Grant, error) {
	result, err := s.Verify(ctx, file, code, clientID)
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case Invalid:
		return nil, &VerifyError{Kind: ErrInputInvalid, Message: result.Message}
	case Locked:
		return nil, &VerifyError{Kind: ErrLocked, Message: result.Message, RetryAfter: result.RetryAfter}
	case Denied:
		return nil, &VerifyError{Kind: ErrDenied, Message: result.Message, Remaining: result.RemainingAttempts}
	}

	if _, err := s.root.Resolve(file); err != nil {
		switch {
		case errors.Is(err, pathsafe.ErrOutsideRoot):
			s.events.Emit(ctx, models.EventPathViolation, clientID, file, err.Error())
			return nil, &VerifyError{Kind: ErrPathViolation, Message: "Access not permitted."}
		case errors.Is(err, pathsafe.ErrNotFound):
			s.events.Emit(ctx, models.EventFileMissing, clientID, file, err.Error())
			return nil, &VerifyError{Kind: ErrNotFound, Message: "File not found."}
		default:
			return nil, fmt.Errorf("failed to resolve %s: %w", file, err)
		}
	}

	tok, err := s.issuer.Issue(ctx, file)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Download token issued",
		util.String("client_id", clientID),
		util.String("file", file),
		util.Time("expires_at", tok.ExpiresAt),
	)

	return &Grant{
		Token:     tok.ID,
		File:      file,
		ExpiresAt: tok.ExpiresAt,
		Message:   verifiedMessage,
	}, nil
}

func lockedResult(state ratelimit.LockState) VerifyResult {
	msg := fmt.Sprintf("Too many attempts. Please try again in %d minute(s).", minutesCeil(state.RetryAfter))
	if state.Triggered {
		msg = fmt.Sprintf("Too many failed attempts. Verification is locked for %d minute(s).", minutesCeil(state.RetryAfter))
	}
	return VerifyResult{Outcome: Locked, Message: msg, RetryAfter: state.RetryAfter}
}

func minutesCeil(d time.Duration) int {
	return int(math.Ceil(d.Seconds() / 60))
}
