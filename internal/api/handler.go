// Package api exposes the notification engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/dispatch"
	"github.com/tharindu-dm/herald/internal/preference"
	"github.com/tharindu-dm/herald/internal/template"
)

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	dispatcher  *dispatch.Orchestrator
	preferences *preference.Service
	templates   *template.Service
}

// NewHandler creates a new API handler
func NewHandler(
	logger *zap.Logger,
	dispatcher *dispatch.Orchestrator,
	preferences *preference.Service,
	templates *template.Service,
) *Handler {
	return &Handler{
		logger:      logger,
		dispatcher:  dispatcher,
		preferences: preferences,
		templates:   templates,
	}
}

// Routes mounts every endpoint under /v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.CreateNotification)
		r.Post("/batch", h.CreateBatch)
		r.Get("/", h.ListNotifications)
		r.Get("/unread/count", h.UnreadCount)
		r.Get("/{id}", h.GetNotification)
		r.Patch("/{id}/read", h.MarkAsRead)
		r.Delete("/{id}", h.DeleteNotification)
	})

	r.Route("/preferences", func(r chi.Router) {
		r.Get("/", h.ListPreferences)
		r.Put("/", h.UpsertPreference)
		r.Post("/initialize", h.InitializePreferences)
		r.Get("/{type}", h.GetPreference)
		r.Patch("/{type}", h.UpdatePreference)
		r.Delete("/{type}", h.DeletePreference)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Post("/", h.CreateTemplate)
		r.Get("/", h.ListTemplates)
		r.Get("/{key}", h.GetTemplate)
		r.Patch("/{key}", h.UpdateTemplate)
		r.Delete("/{key}", h.DeleteTemplate)
	})
}

// CreateNotification handles POST /v1/notifications
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	created, err := h.dispatcher.Create(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to create notification")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"notifications": created,
		"count":         len(created),
	})
}

// CreateBatch handles POST /v1/notifications/batch
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	created, err := h.dispatcher.CreateBatch(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to create batch")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"requested": len(req.UserIDs),
		"created":   created,
	})
}

// ListNotifications handles GET /v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	var status *db.NotificationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := db.NotificationStatus(raw)
		status = &s
	}
	var channel *db.Channel
	if raw := r.URL.Query().Get("channel"); raw != "" {
		c := db.Channel(raw)
		if !c.Valid() {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel", "channel must be email, push, or in_app")
			return
		}
		channel = &c
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	notifications, err := h.dispatcher.List(r.Context(), userID, status, channel, limit, offset)
	if err != nil {
		h.writeDomainError(w, err, "Failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []*db.Notification{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// GetNotification handles GET /v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	n, attempts, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get notification")
		return
	}
	if attempts == nil {
		attempts = []*db.DeliveryAttempt{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"notification":      n,
		"delivery_attempts": attempts,
	})
}

// MarkAsRead handles PATCH /v1/notifications/{id}/read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	n, err := h.dispatcher.MarkAsRead(r.Context(), id, userID)
	if err != nil {
		h.writeDomainError(w, err, "Failed to mark notification read")
		return
	}

	h.writeJSON(w, http.StatusOK, n)
}

// UnreadCount handles GET /v1/notifications/unread/count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	count, err := h.dispatcher.UnreadCount(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "Failed to count unread notifications")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

// DeleteNotification handles DELETE /v1/notifications/{id}
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.Delete(r.Context(), id, userID); err != nil {
		h.writeDomainError(w, err, "Failed to delete notification")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListPreferences handles GET /v1/preferences
func (h *Handler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	prefs, err := h.preferences.List(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "Failed to list preferences")
		return
	}
	if prefs == nil {
		prefs = []*db.UserNotificationPreference{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

// GetPreference handles GET /v1/preferences/{type}
func (h *Handler) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	t, ok := h.typeParam(w, r)
	if !ok {
		return
	}

	pref, err := h.preferences.Get(r.Context(), userID, t)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get preference")
		return
	}

	h.writeJSON(w, http.StatusOK, pref)
}

// UpsertPreference handles PUT /v1/preferences
func (h *Handler) UpsertPreference(w http.ResponseWriter, r *http.Request) {
	var req preference.UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	pref, err := h.preferences.Upsert(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to save preference")
		return
	}

	h.writeJSON(w, http.StatusOK, pref)
}

// UpdatePreference handles PATCH /v1/preferences/{type}
func (h *Handler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	t, ok := h.typeParam(w, r)
	if !ok {
		return
	}

	var req preference.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	pref, err := h.preferences.Update(r.Context(), userID, t, req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to update preference")
		return
	}

	h.writeJSON(w, http.StatusOK, pref)
}

// DeletePreference handles DELETE /v1/preferences/{type}
func (h *Handler) DeletePreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}
	t, ok := h.typeParam(w, r)
	if !ok {
		return
	}

	if err := h.preferences.Delete(r.Context(), userID, t); err != nil {
		h.writeDomainError(w, err, "Failed to delete preference")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InitializePreferences handles POST /v1/preferences/initialize
func (h *Handler) InitializePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	prefs, err := h.preferences.InitializeDefaults(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "Failed to initialize preferences")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"preferences": prefs})
}

// CreateTemplate handles POST /v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req template.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	tmpl, err := h.templates.Create(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to create template")
		return
	}

	h.writeJSON(w, http.StatusCreated, tmpl)
}

// ListTemplates handles GET /v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	var channel *db.Channel
	if raw := r.URL.Query().Get("channel"); raw != "" {
		c := db.Channel(raw)
		if !c.Valid() {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel", "channel must be email, push, or in_app")
			return
		}
		channel = &c
	}

	templates, err := h.templates.List(r.Context(), channel)
	if err != nil {
		h.writeDomainError(w, err, "Failed to list templates")
		return
	}
	if templates == nil {
		templates = []*db.NotificationTemplate{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// GetTemplate handles GET /v1/templates/{key}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.templates.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to get template")
		return
	}

	h.writeJSON(w, http.StatusOK, tmpl)
}

// UpdateTemplate handles PATCH /v1/templates/{key}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req template.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	tmpl, err := h.templates.Update(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to update template")
		return
	}

	h.writeJSON(w, http.StatusOK, tmpl)
}

// DeleteTemplate handles DELETE /v1/templates/{key}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.writeDomainError(w, err, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a positive integer")
		return 0, false
	}
	return userID, true
}

func (h *Handler) typeParam(w http.ResponseWriter, r *http.Request) (db.NotificationType, bool) {
	t := db.NotificationType(chi.URLParam(r, "type"))
	if !t.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification type", "unknown notification type")
		return "", false
	}
	return t, true
}

// writeDomainError maps service-layer errors onto HTTP statuses:
// not-found is 404, validation and content problems are 400, everything
// else is a 500 with the detail kept out of the response body.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, title string) {
	var validationErr *db.ValidationError
	var contentErr *template.ContentError

	switch {
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Resource not found", "")
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, "invalid_request", title, validationErr.Reason)
	case errors.As(err, &contentErr):
		h.writeError(w, http.StatusBadRequest, "invalid_template", title, contentErr.Reason)
	default:
		h.logger.Error(title, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", title, "")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
