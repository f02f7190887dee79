package api

import (
	"net/http"

	"syncspace/internal/auth"
	"syncspace/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, authenticator *auth.Authenticator) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	// Authenticated API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequireAuth(authenticator))

	// Workspace endpoints
	api.HandleFunc("/workspaces", h.CreateWorkspace).Methods("POST")
	api.HandleFunc("/workspaces/{id}", h.GetWorkspace).Methods("GET")
	api.HandleFunc("/workspaces/{id}/members", h.AddWorkspaceMember).Methods("POST")

	// Document endpoints. Content changes go over the realtime channel only,
	// where the version check lives; PUT here touches metadata.
	api.HandleFunc("/documents", h.CreateDocument).Methods("POST")
	api.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}", h.UpdateDocument).Methods("PUT")
	api.HandleFunc("/documents/{id}", h.DeleteDocument).Methods("DELETE")
	api.HandleFunc("/documents/{id}/history", h.GetDocumentHistory).Methods("GET")

	// Presence snapshot
	api.HandleFunc("/presence", h.GetPresence).Methods("GET")

	// Health check endpoint (no auth)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket route; the handler does its own handshake authentication.
	r.HandleFunc("/ws", h.HandleWebSocket)

	return r
}
