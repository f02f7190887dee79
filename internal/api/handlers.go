package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"syncspace/internal/middleware"
	"syncspace/internal/models"
	"syncspace/internal/repository"
	"syncspace/internal/services/realtime"

	"github.com/gorilla/mux"
)

// Handler handles the REST surface. The realtime protocol carries the live
// editing traffic; these endpoints cover entity lifecycle, history, and the
// presence snapshot a client wants before its socket is up.
type Handler struct {
	docRepo   *repository.DocumentRepositoryImpl
	wsRepo    *repository.WorkspaceRepositoryImpl
	changes   *repository.ChangeRepositoryImpl
	realtime  *realtime.Service
	wsHandler *realtime.WebSocketHandler
}

func NewHandler(
	docRepo *repository.DocumentRepositoryImpl,
	wsRepo *repository.WorkspaceRepositoryImpl,
	changes *repository.ChangeRepositoryImpl,
	rt *realtime.Service,
	wsHandler *realtime.WebSocketHandler,
) *Handler {
	return &Handler{
		docRepo:   docRepo,
		wsRepo:    wsRepo,
		changes:   changes,
		realtime:  rt,
		wsHandler: wsHandler,
	}
}

// Workspace handlers

func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req models.WorkspaceCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if identity := middleware.GetIdentity(r.Context()); identity != nil {
		req.OwnerID = identity.UserID
	}

	created, err := h.wsRepo.Create(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ws, err := h.wsRepo.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) AddWorkspaceMember(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.wsRepo.AddMember(r.Context(), id, req.UserID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ws)
}

// Document handlers

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req models.DocumentCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	created, err := h.docRepo.Create(r.Context(), identity.UserID, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		http.Error(w, "workspace_id is required", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.docRepo.ListByWorkspace(r.Context(), workspaceID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.docRepo.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.DocumentUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := h.docRepo.Update(r.Context(), id, &req)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.docRepo.Delete(r.Context(), id); err != nil {
		writeRepoError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetDocumentHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	records, err := h.changes.ListByDocument(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// Presence handler

func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online": h.realtime.OnlineUsers(),
	})
}

// WebSocket entry point

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
