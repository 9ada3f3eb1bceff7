// Package handler exposes contact reconciliation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"linkid/internal/contact/models"
	"linkid/pkg/platform/httputil"
	"linkid/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/contact-mocks.go -package=mocks Service

// Service is the reconciliation surface the handler depends on.
type Service interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.Identity, error)
	ListContacts(ctx context.Context) ([]*models.Contact, error)
}

// Handler serves the contact endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a contact Handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the contact routes. Extra middleware applies to
// POST /identify only, which is where rate limiting is attached.
func (h *Handler) Register(r chi.Router, identifyMiddleware ...func(http.Handler) http.Handler) {
	r.With(identifyMiddleware...).Post("/identify", h.HandleIdentify)
	r.Get("/contacts", h.HandleListContacts)
}

// HandleIdentify reconciles the posted email/phone pair.
func (h *Handler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IdentifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := h.service.Identify(ctx, req.ToModel())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to identify contact",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identify request served",
		"request_id", requestID,
		"primary_contact_id", identity.PrimaryContactID,
		"secondary_count", len(identity.SecondaryContactIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(identity))
}

// HandleListContacts returns every stored record, newest first.
func (h *Handler) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	contacts, err := h.service.ListContacts(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list contacts",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromContacts(contacts))
}
