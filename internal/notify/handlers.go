// internal/notify/handlers.go

package notify

import (
    "encoding/json"
    "net/http"
    "strconv"

    "github.com/gorilla/mux"

    "github.com/lumera-app/match-service/internal/common/utils"
)

// Handler exposes the notification feed over HTTP.
type Handler struct {
    service *Service
}

// NewHandler creates the handler.
func NewHandler(service *Service) *Handler {
    return &Handler{service: service}
}

// List handles GET /api/v1/notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
    userID, ok := r.Context().Value("userID").(int64)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
    offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

    notifications, err := h.service.List(r.Context(), userID, limit, offset)
    if err != nil {
        utils.ErrorResponse(w, "Failed to load notifications", http.StatusInternalServerError)
        return
    }
    utils.SuccessResponse(w, notifications, http.StatusOK)
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
    userID, ok := r.Context().Value("userID").(int64)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid notification id", http.StatusBadRequest)
        return
    }

    if err := h.service.MarkRead(r.Context(), userID, id); err != nil {
        utils.ErrorResponse(w, "Failed to mark notification read", http.StatusInternalServerError)
        return
    }
    utils.MessageResponse(w, "Notification marked read", http.StatusOK)
}

// RegisterPushToken handles POST /api/v1/notifications/push-tokens
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
    userID, ok := r.Context().Value("userID").(int64)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    var req RegisterPushTokenRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    if err := h.service.RegisterPushToken(r.Context(), userID, req.Platform, req.Token); err != nil {
        utils.ErrorResponse(w, "Failed to register push token", http.StatusInternalServerError)
        return
    }
    utils.MessageResponse(w, "Push token registered", http.StatusCreated)
}
