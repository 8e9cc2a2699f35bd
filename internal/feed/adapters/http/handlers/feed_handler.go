// Package handlers provides the local HTTP API over the feed.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/feedpulse/feedpulse/internal/feed/app/service"
	"github.com/feedpulse/feedpulse/internal/platform/logger"
	"github.com/feedpulse/feedpulse/pkg/api"
)

// FeedHandler exposes the merged feed and its mutations over HTTP.
type FeedHandler struct {
	service *service.FeedService
	logger  logger.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(svc *service.FeedService, log logger.Logger) *FeedHandler {
	return &FeedHandler{
		service: svc,
		logger:  log,
	}
}

// RegisterRoutes registers feed routes
func (h *FeedHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/feed", h.GetFeed).Methods("GET")
	router.HandleFunc("/feed/unread-count", h.GetUnreadCount).Methods("GET")
	router.HandleFunc("/feed/refresh", h.Refresh).Methods("POST")
	router.HandleFunc("/feed/load-more", h.LoadMore).Methods("POST")
	router.HandleFunc("/feed/read-all", h.MarkAllRead).Methods("POST")
	router.HandleFunc("/feed/read", h.MarkManyRead).Methods("POST")
	router.HandleFunc("/feed/{id}/read", h.MarkRead).Methods("POST")
	router.HandleFunc("/feed/{id}", h.Delete).Methods("DELETE")
}

// GetFeed returns the current merged collection snapshot
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	items := h.service.Items()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":       items,
		"unreadCount": h.service.UnreadCount(),
		"hasMore":     h.service.HasMore(),
		"streamState": h.service.StreamState(),
	})
}

// GetUnreadCount returns the derived unread count
func (h *FeedHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]int{
		"unreadCount": h.service.UnreadCount(),
	})
}

// Refresh re-fetches the loaded pages from the backend
func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.respondUpstreamError(w, "refresh failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"count": len(h.service.Items())})
}

// LoadMore fetches the next page from the backend
func (h *FeedHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LoadMore(r.Context()); err != nil {
		h.respondUpstreamError(w, "load more failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(h.service.Items()),
		"hasMore": h.service.HasMore(),
	})
}

// MarkRead marks one notification read
func (h *FeedHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.MarkAsRead(r.Context(), id); err != nil {
		h.respondUpstreamError(w, "mark read failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{
		"unreadCount": h.service.UnreadCount(),
	})
}

// MarkManyRead marks the given notifications read
func (h *FeedHandler) MarkManyRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		h.respondError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}

	if err := h.service.MarkMultipleAsRead(r.Context(), req.IDs); err != nil {
		h.respondUpstreamError(w, "mark read failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{
		"unreadCount": h.service.UnreadCount(),
	})
}

// MarkAllRead marks every notification read
func (h *FeedHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAllAsRead(r.Context()); err != nil {
		h.respondUpstreamError(w, "mark all read failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"unreadCount": 0})
}

// Delete removes one notification
func (h *FeedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondUpstreamError(w, "delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondUpstreamError maps a backend failure onto the local response. A
// structured backend rejection passes through with its own status semantics;
// anything else is a bad gateway.
func (h *FeedHandler) respondUpstreamError(w http.ResponseWriter, msg string, err error) {
	var apiErr *api.ErrorResponse
	if errors.As(err, &apiErr) {
		h.logger.Warn(msg, "code", apiErr.Code, "error", err)
		h.respondError(w, http.StatusBadGateway, apiErr.Error())
		return
	}
	h.logger.Error(msg, "error", err)
	h.respondError(w, http.StatusBadGateway, msg)
}

func (h *FeedHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *FeedHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
