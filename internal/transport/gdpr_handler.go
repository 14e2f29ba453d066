package transport

import (
	"errors"
	"fmt"
	"net/http"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DataRequestRequest represents the submit payload for a data request
type DataRequestRequest struct {
	Type   string `json:"type" validate:"required,oneof=export delete rectification portability"`
	Reason string `json:"reason" validate:"max=2000"`
}

// RejectRequest represents the admin rejection payload
type RejectRequest struct {
	Notes string `json:"notes" validate:"required,max=2000"`
}

// GDPRHandler handles HTTP requests for data-lifecycle operations
type GDPRHandler struct {
	gdprService service.GDPRService
	logger      *zap.Logger
}

// NewGDPRHandler creates a new GDPRHandler
func NewGDPRHandler(gdprService service.GDPRService, logger *zap.Logger) *GDPRHandler {
	return &GDPRHandler{
		gdprService: gdprService,
		logger:      logger,
	}
}

// RegisterRoutes registers all data request routes
func (h *GDPRHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/v1/data-requests", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Submit)
		r.Get("/", h.ListMine)
		r.Get("/{id}/download", h.Download)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(domain.ActionGDPRManage, h.logger))
			r.Get("/admin", h.ListAll)
			r.Post("/{id}/reject", h.Reject)
		})
	})
}

// Submit handles a user filing a new data request
func (h *GDPRHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DataRequestRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.gdprService.Submit(r.Context(), userID, domain.DataRequestType(req.Type), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateDataRequest):
			middleware.RespondWithError(w, http.StatusConflict, "an open request of this type already exists")
		case errors.Is(err, service.ErrInvalidRequestType):
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid request type")
		default:
			h.logger.Error("Failed to submit data request", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to submit request")
		}
		return
	}

	h.logger.Info("Data request submitted",
		zap.String("request_id", request.ID.String()),
		zap.String("type", string(request.Type)),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, request)
}

// ListMine handles listing the caller's data requests
func (h *GDPRHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.gdprService.ListMine(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list data requests", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, requests)
}

// ListAll handles the admin view of data requests
func (h *GDPRHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	var status *domain.DataRequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.DataRequestStatus(raw)
		status = &s
	}

	requests, err := h.gdprService.ListAll(r.Context(), status)
	if err != nil {
		h.logger.Error("Failed to list data requests", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, requests)
}

// Download serves a completed export file to its owner
func (h *GDPRHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	data, filename, err := h.gdprService.Download(r.Context(), userID, requestID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDataRequestNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "data request not found")
		case errors.Is(err, service.ErrExportNotAvailable):
			// Lapsed or not-yet-ready exports are unreachable, same as unknown ones
			middleware.RespondWithError(w, http.StatusNotFound, "export is not available")
		default:
			h.logger.Error("Failed to serve export", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to serve export")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Reject handles an admin rejecting a data request with notes
func (h *GDPRHandler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var req RejectRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gdprService.Reject(r.Context(), requestID, req.Notes); err != nil {
		if errors.Is(err, repository.ErrDataRequestNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "data request not found")
			return
		}
		h.logger.Error("Failed to reject data request", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to reject request")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "request rejected"})
}
