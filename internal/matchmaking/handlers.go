// internal/matchmaking/handlers.go
// HTTP handlers for the match API

package matchmaking

import (
    "encoding/json"
    "errors"
    "net/http"

    "github.com/gorilla/mux"

    "github.com/lumera-app/match-service/internal/common/utils"
)

// Handler exposes the match service over HTTP.
type Handler struct {
    service Service
}

// NewHandler creates the handler.
func NewHandler(service Service) *Handler {
    return &Handler{service: service}
}

func userIDFrom(r *http.Request) (int64, bool) {
    id, ok := r.Context().Value("userID").(int64)
    return id, ok
}

// writeError maps pipeline error kinds to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
    switch {
    case errors.Is(err, ErrValidation):
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
    case errors.Is(err, ErrNotFound):
        utils.ErrorResponse(w, "Not found", http.StatusNotFound)
    case errors.Is(err, ErrAlreadyLocked):
        utils.ErrorResponse(w, "You already have a pending match — respond to it first", http.StatusConflict)
    case errors.Is(err, ErrAlreadyPending):
        utils.ErrorResponse(w, "A pending match already exists", http.StatusConflict)
    case errors.Is(err, ErrAttemptNotActive):
        utils.ErrorResponse(w, "This match is no longer active", http.StatusConflict)
    case errors.Is(err, ErrUserBlockedByPolicy):
        utils.ErrorResponse(w, "Matchmaking is not available for your account", http.StatusForbidden)
    case errors.Is(err, ErrDependencyTimeout), errors.Is(err, ErrDependencyUnavailable):
        utils.ErrorResponse(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
    default:
        utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
    }
}

// JoinQueue handles POST /api/v1/match/queue
func (h *Handler) JoinQueue(w http.ResponseWriter, r *http.Request) {
    userID, ok := userIDFrom(r)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    var req JoinQueueRequest
    if r.ContentLength > 0 {
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
            return
        }
    }

    status, err := h.service.JoinQueue(r.Context(), userID, req.Filters)
    if err != nil {
        writeError(w, err)
        return
    }
    utils.SuccessResponse(w, status, http.StatusOK)
}

// LeaveQueue handles DELETE /api/v1/match/queue
func (h *Handler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
    userID, ok := userIDFrom(r)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    if err := h.service.LeaveQueue(r.Context(), userID); err != nil {
        writeError(w, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// GetQueueStatus handles GET /api/v1/match/queue
func (h *Handler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
    userID, ok := userIDFrom(r)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    status, err := h.service.GetQueueStatus(r.Context(), userID)
    if err != nil {
        writeError(w, err)
        return
    }
    utils.SuccessResponse(w, status, http.StatusOK)
}

// GetPendingMatches handles GET /api/v1/match/pending
func (h *Handler) GetPendingMatches(w http.ResponseWriter, r *http.Request) {
    userID, ok := userIDFrom(r)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    views, err := h.service.GetPendingMatches(r.Context(), userID)
    if err != nil {
        writeError(w, err)
        return
    }
    utils.SuccessResponse(w, views, http.StatusOK)
}

// AcceptMatch handles POST /api/v1/match/attempts/{id}/accept
func (h *Handler) AcceptMatch(w http.ResponseWriter, r *http.Request) {
    userID, ok := userIDFrom(r)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    view, err := h.service.AcceptMatch(r.Context(), userID, mux.Vars(r)["id"])
    if err != nil {
        writeError(w, err)
        return
    }
    utils.SuccessResponse(w, view, http.StatusOK)
}

// DeclineMatch handles POST /api/v1/match/attempts/{id}/decline
func (h *Handler) DeclineMatch(w http.ResponseWriter, r *http.Request) {
    userID, ok := userIDFrom(r)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    view, err := h.service.DeclineMatch(r.Context(), userID, mux.Vars(r)["id"])
    if err != nil {
        writeError(w, err)
        return
    }
    utils.SuccessResponse(w, view, http.StatusOK)
}

// CancelMatch handles POST /api/v1/match/attempts/{id}/cancel (admin only)
func (h *Handler) CancelMatch(w http.ResponseWriter, r *http.Request) {
    var req CancelMatchRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    view, err := h.service.CancelMatch(r.Context(), mux.Vars(r)["id"], req.Reason)
    if err != nil {
        writeError(w, err)
        return
    }
    utils.SuccessResponse(w, view, http.StatusOK)
}
