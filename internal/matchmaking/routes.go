// internal/matchmaking/routes.go

package matchmaking

import (
    "net/http"

    "github.com/gorilla/mux"

    "github.com/lumera-app/match-service/internal/common/utils"
)

// RegisterRoutes mounts the match API under /api/v1/match.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler, adminToken string) {
    match := router.PathPrefix("/api/v1/match").Subrouter()
    match.Use(authMiddleware)

    match.HandleFunc("/queue", handler.JoinQueue).Methods("POST")
    match.HandleFunc("/queue", handler.LeaveQueue).Methods("DELETE")
    match.HandleFunc("/queue", handler.GetQueueStatus).Methods("GET")
    match.HandleFunc("/pending", handler.GetPendingMatches).Methods("GET")
    match.HandleFunc("/attempts/{id}/accept", handler.AcceptMatch).Methods("POST")
    match.HandleFunc("/attempts/{id}/decline", handler.DeclineMatch).Methods("POST")
    match.Handle("/attempts/{id}/cancel",
        requireAdmin(adminToken, http.HandlerFunc(handler.CancelMatch))).Methods("POST")
}

// requireAdmin gates administrative operations behind a shared token.
func requireAdmin(adminToken string, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if adminToken == "" || r.Header.Get("X-Admin-Token") != adminToken {
            utils.ErrorResponse(w, "Admin access required", http.StatusForbidden)
            return
        }
        next.ServeHTTP(w, r)
    })
}
