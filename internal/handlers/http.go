package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/civicgrid/complaint-service/internal/cache"
	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
	"github.com/civicgrid/complaint-service/internal/engine"
)

// maxNotificationPageSize caps the notification polling page size.
const maxNotificationPageSize = 500

// EscalationService is the engine surface the HTTP layer needs.
type EscalationService interface {
	ManualEscalate(ctx context.Context, complaintID, targetAuthorityID, reason, actorID string) error
	GetEscalationStats(ctx context.Context) (*database.EscalationStats, error)
	GetSLAComplianceReport(ctx context.Context) (*database.SLAComplianceReport, error)
	Running() bool
}

// ComplaintReader is the complaint lookup surface for public tracking.
type ComplaintReader interface {
	GetByTrackingCode(ctx context.Context, code string) (*database.Complaint, error)
}

// HistoryReader lists a complaint's status history.
type HistoryReader interface {
	ListForComplaint(ctx context.Context, complaintID string) ([]*database.StatusHistoryEntry, error)
}

// NotificationStore is the notification surface for polling clients.
type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*database.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// HTTPHandler exposes the service's HTTP API
type HTTPHandler struct {
	cfg           *config.Config
	logger        *slog.Logger
	escalation    EscalationService
	complaints    ComplaintReader
	history       HistoryReader
	notifications NotificationStore
	trackingCache *cache.TrackingCache
}

// NewHTTPHandler creates a new HTTP handler. trackingCache may be nil when
// Redis is disabled; tracking lookups then always hit the database.
func NewHTTPHandler(
	cfg *config.Config,
	logger *slog.Logger,
	escalation EscalationService,
	complaints ComplaintReader,
	history HistoryReader,
	notifications NotificationStore,
	trackingCache *cache.TrackingCache,
) *HTTPHandler {
	return &HTTPHandler{
		cfg:           cfg,
		logger:        logger,
		escalation:    escalation,
		complaints:    complaints,
		history:       history,
		notifications: notifications,
		trackingCache: trackingCache,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/complaints/{id}/escalate", h.ManualEscalate).Methods("POST")
	api.HandleFunc("/escalations/stats", h.GetEscalationStats).Methods("GET")
	api.HandleFunc("/reports/sla-compliance", h.GetSLAComplianceReport).Methods("GET")
	api.HandleFunc("/track/{code}", h.TrackComplaint).Methods("GET")
	api.HandleFunc("/users/{id}/notifications", h.ListNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("POST")
}

// HealthCheck reports service health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"engine_running": h.escalation.Running(),
	})
}

// ManualEscalateRequest is the body of the manual escalation endpoint.
type ManualEscalateRequest struct {
	TargetAuthorityID string `json:"target_authority_id"`
	Reason            string `json:"reason"`
	ActorID           string `json:"actor_id"`
}

// ManualEscalate escalates one complaint on behalf of an administrator.
func (h *HTTPHandler) ManualEscalate(w http.ResponseWriter, r *http.Request) {
	complaintID := mux.Vars(r)["id"]

	var req ManualEscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.escalation.ManualEscalate(r.Context(), complaintID, req.TargetAuthorityID, req.Reason, req.ActorID)
	if err != nil {
		h.logger.Error("Manual escalation failed",
			"complaint_id", complaintID,
			"actor_id", req.ActorID,
			"error", err)
		switch {
		case errors.Is(err, engine.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, engine.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "escalation failed")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"complaint_id": complaintID,
		"status":       database.StatusEscalated,
	})
}

// GetEscalationStats returns escalation dashboard statistics
func (h *HTTPHandler) GetEscalationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.escalation.GetEscalationStats(r.Context())
	if err != nil {
		h.logger.Error("Failed to get escalation stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get escalation stats")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// GetSLAComplianceReport returns the trailing-window SLA compliance report
func (h *HTTPHandler) GetSLAComplianceReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.escalation.GetSLAComplianceReport(r.Context())
	if err != nil {
		h.logger.Error("Failed to build SLA compliance report", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to build SLA compliance report")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// TrackResponse is the public tracking view of a complaint.
type TrackResponse struct {
	TrackingCode string                         `json:"tracking_code"`
	Status       string                         `json:"status"`
	Severity     string                         `json:"severity"`
	CategoryName string                         `json:"category_name"`
	History      []*database.StatusHistoryEntry `json:"history,omitempty"`
}

// TrackComplaint serves the unauthenticated tracking-code lookup. The status
// summary is cached in Redis; history is only fetched on a cache miss.
func (h *HTTPHandler) TrackComplaint(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	if h.trackingCache != nil {
		cached, err := h.trackingCache.Get(r.Context(), code)
		if err != nil {
			h.logger.Warn("Tracking cache read failed", "error", err)
		} else if cached != nil {
			h.writeJSON(w, http.StatusOK, TrackResponse{
				TrackingCode: cached.TrackingCode,
				Status:       cached.Status,
				Severity:     cached.Severity,
				CategoryName: cached.CategoryName,
			})
			return
		}
	}

	complaint, err := h.complaints.GetByTrackingCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "unknown tracking code")
			return
		}
		h.logger.Error("Tracking lookup failed", "tracking_code", code, "error", err)
		h.writeError(w, http.StatusInternalServerError, "tracking lookup failed")
		return
	}

	history, err := h.history.ListForComplaint(r.Context(), complaint.ID)
	if err != nil {
		h.logger.Warn("Failed to load status history", "complaint_id", complaint.ID, "error", err)
	}

	if h.trackingCache != nil {
		if err := h.trackingCache.Set(r.Context(), &cache.TrackingStatus{
			TrackingCode: complaint.TrackingCode,
			Status:       complaint.Status,
			Severity:     complaint.Severity,
			CategoryName: complaint.CategoryName,
			UpdatedAt:    complaint.UpdatedAt,
		}); err != nil {
			h.logger.Warn("Tracking cache write failed", "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, TrackResponse{
		TrackingCode: complaint.TrackingCode,
		Status:       complaint.Status,
		Severity:     complaint.Severity,
		CategoryName: complaint.CategoryName,
		History:      history,
	})
}

// ListNotifications returns a user's notifications; clients poll this.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	unreadOnly := r.URL.Query().Get("unread") == "true"

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	if limit > maxNotificationPageSize {
		limit = maxNotificationPageSize
	}

	notifications, err := h.notifications.ListForUser(r.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkNotificationRead flips a notification's read flag
func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.notifications.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.Error("Failed to mark notification read", "notification_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
