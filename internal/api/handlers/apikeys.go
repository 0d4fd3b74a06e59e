package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

// APIKeyHandler serves API key management. All routes require the operator.
type APIKeyHandler struct {
	store *store.Store
}

// NewAPIKeyHandler creates the API key handler.
func NewAPIKeyHandler(st *store.Store) *APIKeyHandler {
	return &APIKeyHandler{store: st}
}

// Routes mounts the API key routes on the given router.
func (h *APIKeyHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
}

// List handles GET /api/keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{"items": keys})
}

// Create handles POST /api/keys. The clear-text key appears once, in this
// response; only its digest is stored.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	clear, digest, err := models.GenerateAPIKey()
	if err != nil {
		WriteError(w, err)
		return
	}

	key := &models.APIKey{
		ID:        uuid.NewString(),
		Name:      req.Name,
		KeyHash:   digest,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		WriteError(w, err)
		return
	}

	WriteJSONCreated(w, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"key":        clear,
		"created_at": key.CreatedAt,
	})
}

// Delete handles DELETE /api/keys/{id}.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAPIKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}
