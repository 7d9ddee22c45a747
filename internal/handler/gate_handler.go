package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"participant-gate/internal/listing"
	"participant-gate/internal/service"
	"participant-gate/internal/util"
)

const (
	unknownClient   = "unknown"
	maxVerifyBody   = 4 << 10
	internalFailure = "Internal server error."
)

// Response is the JSON envelope for every non-download endpoint.
type Response struct {
	Success           bool        `json:"success"`
	Token             string      `json:"token,omitempty"`
	Data              interface{} `json:"data,omitempty"`
	Error             string      `json:"error,omitempty"`
	Message           string      `json:"message,omitempty"`
	RemainingAttempts *int        `json:"remaining_attempts,omitempty"`
	RetryAfter        int         `json:"retry_after,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(message string) Response {
	return Response{
		Success: false,
		Error:   message,
	}
}

type GateHandler struct {
	verification *service.VerificationService
	download     *service.DownloadService
	listing      *listing.Loader
	logger       *zap.Logger
}

func NewGateHandler(verification *service.VerificationService, download *service.DownloadService, loader *listing.Loader, logger *zap.Logger) *GateHandler {
	return &GateHandler{
		verification: verification,
		download:     download,
		listing:      loader,
		logger:       logger,
	}
}

// RegisterRoutes mounts the versioned API.
func (h *GateHandler) RegisterRoutes(router chi.Router, apiTimeout time.Duration) {
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Post("/verify", h.Verify)
		r.Get("/schools", h.Schools)
	})
	router.Get("/download", h.Download)
}

// RegisterLegacyRoutes mounts the single-page routes: POST / with
// action=verify and GET /?download=1&token=...
func (h *GateHandler) RegisterLegacyRoutes(router chi.Router) {
	router.Post("/", h.LegacyAction)
	router.Get("/", h.LegacyPage)
}

// Verify checks a code and returns a download token.
func (h *GateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	clientID := ClientID(r)

	req, err := decodeVerifyRequest(w, r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body.")
		return
	}

	grant, err := h.verification.Authorize(ctx, req.PDFFile, req.Code, clientID)
	if err != nil {
		h.respondVerifyError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Token:   grant.Token,
		Message: grant.Message,
	})
	h.logger.Info("Verification succeeded",
		util.String("client_id", clientID),
		util.String("file", grant.File),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Download streams the PDF bound to the token in ?token=.
func (h *GateHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := ClientID(r)

	dl, err := h.download.Redeem(ctx, r.URL.Query().Get("token"), clientID)
	if err != nil {
		status, message := downloadFailure(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Download failed", util.String("client_id", clientID), util.ErrorField(err))
		} else {
			h.logger.Warn("Download refused",
				util.String("client_id", clientID),
				util.Int("status_code", status),
				util.ErrorField(err),
			)
		}
		respondWithText(w, status, message)
		return
	}
	defer dl.File.Close()

	header := w.Header()
	header.Set("Content-Type", dl.ContentType)
	header.Set("Content-Disposition", contentDisposition(dl.Name))
	header.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	header.Set("Cache-Control", "no-cache, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, dl.File)
	if err != nil {
		h.logger.Warn("Download interrupted",
			util.String("client_id", clientID),
			util.String("file", dl.Name),
			util.Int64("written", written),
			util.ErrorField(err),
		)
	}
}

// Schools returns the participant listing grouped by school.
func (h *GateHandler) Schools(w http.ResponseWriter, r *http.Request) {
	groups, err := h.listing.Grouped(r.Context())
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, internalFailure)
		return
	}
	if groups == nil {
		groups = []listing.SchoolGroup{}
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(groups, ""))
}

// LegacyAction dispatches the single-page form post. The body cap applies
// before the action field is parsed.
func (h *GateHandler) LegacyAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVerifyBody)
	if err := r.ParseForm(); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body.")
		return
	}
	if r.FormValue("action") != "verify" {
		h.respondWithJSON(w, http.StatusBadRequest, errorResponse("Unknown action."))
		return
	}
	h.Verify(w, r)
}

func (h *GateHandler) LegacyPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("download") && q.Has("token") {
		h.Download(w, r)
		return
	}
	h.Schools(w, r)
}

// ClientID identifies the caller for attempt tracking. Requests without a
// usable address share the "unknown" bucket.
func ClientID(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if ip := net.ParseIP(r.RemoteAddr); ip != nil {
		return ip.String()
	}
	return unknownClient
}

func decodeVerifyRequest(w http.ResponseWriter, r *http.Request) (service.VerifyRequest, error) {
	var req service.VerifyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxVerifyBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("decode json body: %w", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("parse form: %w", err)
	}
	req.PDFFile = r.PostFormValue("pdf_file")
	req.Code = r.PostFormValue("code")
	return req, nil
}

func (h *GateHandler) respondVerifyError(w http.ResponseWriter, err error) {
	var verr *service.VerifyError
	if !errors.As(err, &verr) {
		h.respondWithError(w, http.StatusInternalServerError, err, internalFailure)
		return
	}

	status := getStatusCode(err)
	resp := errorResponse(verr.Message)
	switch {
	case errors.Is(err, service.ErrDenied):
		remaining := verr.Remaining
		resp.RemainingAttempts = &remaining
	case errors.Is(err, service.ErrLocked):
		seconds := int((verr.RetryAfter + time.Second - 1) / time.Second)
		resp.RetryAfter = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	h.respondWithJSON(w, status, resp)
}

func contentDisposition(name string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	return `attachment; filename="` + safe + `"`
}

func downloadFailure(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		return getStatusCode(err), "Invalid or already used token."
	case errors.Is(err, service.ErrExpired):
		return getStatusCode(err), "Token has expired."
	case errors.Is(err, service.ErrNotFound):
		return getStatusCode(err), "File not found."
	case errors.Is(err, service.ErrPathViolation):
		return getStatusCode(err), "Access not permitted."
	default:
		return http.StatusInternalServerError, "Download failed."
	}
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *GateHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError logs err and sends message to the client.
func (h *GateHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(message))
}

func respondWithText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, message)
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrLocked):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrPathViolation):
		return http.StatusForbidden
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
