// internal/notify/routes.go

package notify

import (
    "net/http"

    "github.com/gorilla/mux"
)

// RegisterRoutes mounts the notification feed and the WebSocket endpoint.
func RegisterRoutes(router *mux.Router, handler *Handler, hub *Hub, authMiddleware func(http.Handler) http.Handler) {
    api := router.PathPrefix("/api/v1/notifications").Subrouter()
    api.Use(authMiddleware)

    api.HandleFunc("", handler.List).Methods("GET")
    api.HandleFunc("/{id}/read", handler.MarkRead).Methods("POST")
    api.HandleFunc("/push-tokens", handler.RegisterPushToken).Methods("POST")

    router.Handle("/ws", authMiddleware(http.HandlerFunc(hub.HandleWS))).Methods("GET")
}
