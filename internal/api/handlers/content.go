package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teledrop/teledrop/internal/api/httprange"
	"github.com/teledrop/teledrop/internal/api/middleware"
	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/internal/metrics"
	"github.com/teledrop/teledrop/pkg/drop"
	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

// maxFieldBytes caps a single multipart metadata field. The file part is the
// only unbounded part of an upload.
const maxFieldBytes = 16 << 10

// ContentHandler serves the /api/content surface: uploads, previews,
// downloads and owner mutations.
type ContentHandler struct {
	drops *drop.Service
}

// NewContentHandler creates the content handler.
func NewContentHandler(drops *drop.Service) *ContentHandler {
	return &ContentHandler{drops: drops}
}

// Routes mounts the content routes on the given router.
func (h *ContentHandler) Routes(r chi.Router) {
	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/keycheck/{slug}", h.KeyCheck)
	r.Get("/{slug}/preview", h.Preview)
	r.Get("/{slug}", h.Download)
	r.Patch("/{slug}/detail", h.UpdateDetail)
	r.Patch("/{slug}/permission", h.UpdatePermission)
	r.Patch("/{slug}/favorite", h.UpdateFavorite)
	r.Patch("/{slug}/password", h.SetPassword)
	r.Patch("/{slug}/reset", h.RemovePassword)
	r.Delete("/{slug}", h.Delete)
}

// Upload handles POST /api/content/.
//
// The request is streaming multipart: metadata fields must precede the file
// part, because the file bytes flow straight into the blob store and the
// reader never rewinds. A request with parts after the file is rejected
// rather than having those fields silently ignored.
func (h *ContentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	if !caller.Authenticated {
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeDenied).Inc()
		Unauthorized(w, "AuthRequired")
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		BadRequest(w, "multipart body required")
		return
	}

	in := drop.CreateInput{OwnerID: caller.Identity}
	var filePart *multipart.Part

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			BadRequest(w, "malformed multipart body")
			return
		}

		if part.FormName() == "file" {
			filePart = part
			in.FileName = part.FileName()
			in.MediaType = part.Header.Get("Content-Type")
			break
		}

		value, err := readField(part)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		switch part.FormName() {
		case "slug":
			in.Slug = value
		case "title":
			in.Title = value
		case "description":
			in.Description = value
		case "password":
			in.Passphrase = value
		case "private":
			in.Private = parseBool(value)
		case "favorite":
			in.Favorite = parseBool(value)
		}
	}

	if filePart == nil {
		BadRequest(w, "file field is required")
		return
	}
	defer filePart.Close()

	snapshot, err := h.drops.Create(r.Context(), in, &uploadBody{part: filePart, parts: mr})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(errOutcome(err)).Inc()
		WriteError(w, err)
		return
	}

	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.UploadBytes.Observe(float64(snapshot.FileSize))
	WriteJSONCreated(w, snapshot)
}

// Preview handles GET /api/content/{slug}/preview.
func (h *ContentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())
	password := r.URL.Query().Get("password")

	snapshot, err := h.drops.Get(r.Context(), slug, caller, password)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// Download handles GET /api/content/{slug}, honoring single-range Range
// headers and the as_attachment disposition flag.
func (h *ContentHandler) Download(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())
	query := r.URL.Query()

	content, err := h.drops.Download(r.Context(), slug, caller, query.Get("password"))
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(errOutcome(err), "full").Inc()
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", content.Snapshot.MediaType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition",
		contentDisposition(content.Snapshot.FileName, parseBool(query.Get("as_attachment"))))

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		h.serveFull(w, r, content)
		return
	}

	rng, err := httprange.Parse(rangeHeader, content.Size)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(metrics.OutcomeError, "range").Inc()
		w.Header().Set("Content-Range", httprange.Unsatisfiable(content.Size))
		WriteProblem(w, http.StatusRequestedRangeNotSatisfiable,
			"Range Not Satisfiable", "requested range cannot be satisfied")
		return
	}
	h.serveRange(w, r, content, rng)
}

func (h *ContentHandler) serveFull(w http.ResponseWriter, r *http.Request, content *drop.Content) {
	rc, err := content.Open(r.Context())
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(metrics.OutcomeError, "full").Inc()
		WriteError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(content.Size, 10))
	w.WriteHeader(http.StatusOK)
	h.stream(w, rc, content.Snapshot.Slug)
	metrics.DownloadsTotal.WithLabelValues(metrics.OutcomeOK, "full").Inc()
}

func (h *ContentHandler) serveRange(w http.ResponseWriter, r *http.Request, content *drop.Content, rng httprange.Range) {
	rc, err := content.OpenRange(r.Context(), rng.Start, rng.End)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(metrics.OutcomeError, "range").Inc()
		WriteError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Range", rng.ContentRange(content.Size))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	h.stream(w, rc, content.Snapshot.Slug)
	metrics.DownloadsTotal.WithLabelValues(metrics.OutcomeOK, "range").Inc()
}

// stream copies blob bytes to the client in fixed chunks. Once the status
// line is out the response cannot change, so a mid-stream failure is only
// logged; the client sees a short body.
func (h *ContentHandler) stream(w http.ResponseWriter, rc io.Reader, slug string) {
	buf := make([]byte, h.drops.ChunkSize())
	if _, err := io.CopyBuffer(w, rc, buf); err != nil {
		logger.Warn("download stream interrupted", "slug", slug, "error", err)
	}
}

// List handles GET /api/content/. Owner-only.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	query := r.URL.Query()

	opts := store.ListOptions{
		SortBy:     store.SortKey(query.Get("sort")),
		Descending: query.Get("order") == "desc",
	}
	opts.Page, _ = strconv.Atoi(query.Get("page"))
	opts.PerPage, _ = strconv.Atoi(query.Get("per_page"))

	snapshots, total, err := h.drops.List(r.Context(), caller, opts)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSONOK(w, map[string]any{
		"items": snapshots,
		"total": total,
	})
}

// KeyCheck handles GET /api/content/keycheck/{slug}: the upload form's
// slug-availability probe. Always 200; absence of the slug is not an error.
func (h *ContentHandler) KeyCheck(w http.ResponseWriter, r *http.Request) {
	exists, err := h.drops.KeyCheck(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, map[string]bool{"exists": exists})
}

// UpdateDetail handles PATCH /api/content/{slug}/detail.
func (h *ContentHandler) UpdateDetail(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())

	var upd drop.DetailUpdate
	if isJSONRequest(r) {
		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid JSON body")
			return
		}
		upd.Title = req.Title
		upd.Description = req.Description
	} else {
		if err := r.ParseForm(); err != nil {
			BadRequest(w, "invalid form body")
			return
		}
		if r.PostForm.Has("title") {
			v := r.PostForm.Get("title")
			upd.Title = &v
		}
		if r.PostForm.Has("description") {
			v := r.PostForm.Get("description")
			upd.Description = &v
		}
	}

	snapshot, err := h.drops.UpdateDetail(r.Context(), slug, caller, upd)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// UpdatePermission handles PATCH /api/content/{slug}/permission.
func (h *ContentHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())

	value, ok := formBool(r, "private")
	if !ok {
		BadRequest(w, "private field is required")
		return
	}

	snapshot, err := h.drops.UpdatePermission(r.Context(), slug, caller, value)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// UpdateFavorite handles PATCH /api/content/{slug}/favorite.
func (h *ContentHandler) UpdateFavorite(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())

	value, ok := formBool(r, "favorite")
	if !ok {
		BadRequest(w, "favorite field is required")
		return
	}

	snapshot, err := h.drops.UpdateFavorite(r.Context(), slug, caller, value)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// SetPassword handles PATCH /api/content/{slug}/password.
func (h *ContentHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		BadRequest(w, "invalid form body")
		return
	}
	newPassword := r.PostForm.Get("new_password")

	snapshot, err := h.drops.SetPassword(r.Context(), slug, caller, newPassword)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// RemovePassword handles PATCH /api/content/{slug}/reset.
func (h *ContentHandler) RemovePassword(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())

	snapshot, err := h.drops.RemovePassword(r.Context(), slug, caller)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// Delete handles DELETE /api/content/{slug}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	caller := middleware.CallerFromContext(r.Context())

	if err := h.drops.Delete(r.Context(), slug, caller); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}

// uploadBody streams the file part and, on its EOF, verifies no further
// multipart parts follow. Metadata placed after the file part would otherwise
// be dropped without the client noticing; failing the read instead aborts the
// create before anything is committed.
type uploadBody struct {
	part  *multipart.Part
	parts *multipart.Reader
}

func (b *uploadBody) Read(p []byte) (int, error) {
	n, err := b.part.Read(p)
	if errors.Is(err, io.EOF) {
		if _, next := b.parts.NextPart(); !errors.Is(next, io.EOF) {
			return n, fmt.Errorf("%w: metadata fields must precede the file part",
				models.ErrValidation)
		}
	}
	return n, err
}

// readField reads a bounded multipart metadata field.
func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read field %q", part.FormName())
	}
	if len(data) > maxFieldBytes {
		return "", fmt.Errorf("field %q too large", part.FormName())
	}
	return string(data), nil
}

// parseBool is the lenient form-value bool: "1", "true", "on", "yes" are
// true, everything else false.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// formBool extracts a required bool field from JSON or form body.
func formBool(r *http.Request, name string) (bool, bool) {
	if isJSONRequest(r) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return false, false
		}
		switch v := body[name].(type) {
		case bool:
			return v, true
		case string:
			return parseBool(v), true
		}
		return false, false
	}

	if err := r.ParseForm(); err != nil {
		return false, false
	}
	if !r.PostForm.Has(name) {
		return false, false
	}
	return parseBool(r.PostForm.Get(name)), true
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// contentDisposition renders the download disposition with both the plain
// and the RFC 5987 encoded filename so non-ASCII names survive every client.
func contentDisposition(name string, attachment bool) string {
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("%s; filename=%q; filename*=UTF-8''%s",
		disposition, fallback, url.PathEscape(name))
}

// errOutcome classifies an error for the outcome counters.
func errOutcome(err error) string {
	switch {
	case errors.Is(err, models.ErrAuthRequired),
		errors.Is(err, models.ErrForbidden),
		errors.Is(err, models.ErrPasswordRequired),
		errors.Is(err, models.ErrPasswordInvalid):
		return metrics.OutcomeDenied
	default:
		return metrics.OutcomeError
	}
}
