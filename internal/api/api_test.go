package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/internal/metrics"
	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/blob/local"
	"github.com/teledrop/teledrop/pkg/config"
	"github.com/teledrop/teledrop/pkg/drop"
	"github.com/teledrop/teledrop/pkg/store"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "hunter2"
)

type testAPI struct {
	router http.Handler
	auth   *auth.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := local.New(t.TempDir())
	require.NoError(t, err)

	verifier := access.NewVerifier(access.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
	drops := drop.NewService(st, blobs, verifier, drop.Options{
		ReservedSlugs: config.DefaultReservedSlugs,
	})

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authService := auth.NewService(jwtService, st, "operator", string(hash))

	router := NewRouter(RouterConfig{
		Store:  st,
		Drops:  drops,
		Auth:   authService,
		Cookie: "teledrop_token",
	})

	return &testAPI{router: router, auth: authService}
}

func (a *testAPI) token(t *testing.T) string {
	t.Helper()
	pair, err := a.auth.Login("operator", testPassword)
	require.NoError(t, err)
	return pair.AccessToken
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// multipartUpload builds a streaming-friendly upload body: metadata fields
// first, file part last.
func multipartUpload(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (a *testAPI) upload(t *testing.T, fields map[string]string, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fields, fileName, content)
	req := httptest.NewRequest(http.MethodPost, "/api/content/", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+a.token(t))
	return a.do(req)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadPreviewDownload(t *testing.T) {
	a := newTestAPI(t)

	rec := a.upload(t, map[string]string{"slug": "greet"}, "hello.txt", "hello\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON(t, rec)
	assert.Equal(t, "greet", created["slug"])
	assert.Equal(t, float64(6), created["file_size"])
	assert.Equal(t, false, created["has_passphrase"])

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/greet/preview", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeJSON(t, rec)
	assert.Equal(t, "greet", preview["slug"])
	assert.Equal(t, float64(6), preview["file_size"])

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/greet", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello\n", rec.Body.String())
	assert.Equal(t, "6", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "hello.txt")

	// as_attachment flips the disposition.
	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/greet?as_attachment=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestRangeDownload(t *testing.T) {
	a := newTestAPI(t)
	rec := a.upload(t, map[string]string{"slug": "greet"}, "hello.txt", "hello\n")
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/content/greet", nil)
	req.Header.Set("Range", "bytes=1-3")
	rec = a.do(req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 1-3/6", rec.Header().Get("Content-Range"))
	assert.Equal(t, "ell", rec.Body.String())

	// Open-ended and suffix forms.
	req = httptest.NewRequest(http.MethodGet, "/api/content/greet", nil)
	req.Header.Set("Range", "bytes=4-")
	rec = a.do(req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "o\n", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/content/greet", nil)
	req.Header.Set("Range", "bytes=-2")
	rec = a.do(req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "o\n", rec.Body.String())

	// Malformed and out-of-bounds ranges answer 416 with the star form.
	for _, header := range []string{"bytes=bogus", "bytes=6-", "bytes=0-2,4-5"} {
		req = httptest.NewRequest(http.MethodGet, "/api/content/greet", nil)
		req.Header.Set("Range", header)
		rec = a.do(req)
		require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code, "header %q", header)
		assert.Equal(t, "bytes */6", rec.Header().Get("Content-Range"))
	}
}

func TestPasswordProtectedAccess(t *testing.T) {
	a := newTestAPI(t)
	rec := a.upload(t, map[string]string{"slug": "sec1", "password": "open"}, "f", "x")
	require.Equal(t, http.StatusCreated, rec.Code)

	// The counters are process-global, so assert on deltas.
	requiredBefore := testutil.ToFloat64(metrics.AccessDenials.WithLabelValues("password_required"))
	invalidBefore := testutil.ToFloat64(metrics.AccessDenials.WithLabelValues("password_invalid"))

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/sec1/preview", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "PasswordRequired")

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/sec1/preview?password=shut", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "PasswordInvalid")

	// Each denial shows up in the access metrics.
	assert.Equal(t, requiredBefore+1,
		testutil.ToFloat64(metrics.AccessDenials.WithLabelValues("password_required")))
	assert.Equal(t, invalidBefore+1,
		testutil.ToFloat64(metrics.AccessDenials.WithLabelValues("password_invalid")))

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/sec1/preview?password=open", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Owner bypass: authenticated owner needs no password.
	req := httptest.NewRequest(http.MethodGet, "/api/content/sec1/preview", nil)
	req.Header.Set("Authorization", "Bearer "+a.token(t))
	rec = a.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrivateDrop(t *testing.T) {
	a := newTestAPI(t)
	rec := a.upload(t, map[string]string{"slug": "priv1", "private": "true"}, "f", "x")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/priv1/preview", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuthRequired")

	req := httptest.NewRequest(http.MethodGet, "/api/content/priv1/preview", nil)
	req.Header.Set("Authorization", "Bearer "+a.token(t))
	rec = a.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadRequiresAuth(t *testing.T) {
	a := newTestAPI(t)

	body, contentType := multipartUpload(t, nil, "f", "x")
	req := httptest.NewRequest(http.MethodPost, "/api/content/", body)
	req.Header.Set("Content-Type", contentType)
	rec := a.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadTrailingFieldsRejected(t *testing.T) {
	a := newTestAPI(t)

	// Metadata placed after the file part never reaches the create path;
	// accepting the upload anyway would silently drop the protection the
	// client asked for, so the whole request is refused.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "f")
	require.NoError(t, err)
	_, err = io.WriteString(part, "x")
	require.NoError(t, err)
	require.NoError(t, w.WriteField("password", "secret"))
	require.NoError(t, w.WriteField("private", "true"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/content/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token(t))
	rec := a.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "precede the file part")

	// Nothing was committed.
	listReq := httptest.NewRequest(http.MethodGet, "/api/content/", nil)
	listReq.Header.Set("Authorization", "Bearer "+a.token(t))
	rec = a.do(listReq)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeJSON(t, rec)["total"])
}

func TestSlugConflict(t *testing.T) {
	a := newTestAPI(t)

	rec := a.upload(t, map[string]string{"slug": "dup1"}, "f", "first")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.upload(t, map[string]string{"slug": "dup1"}, "f", "second")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "SlugTaken")
}

func TestReservedSlugRejected(t *testing.T) {
	a := newTestAPI(t)
	rec := a.upload(t, map[string]string{"slug": "health"}, "f", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationsAndDelete(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	rec := a.upload(t, map[string]string{"slug": "edit"}, "f", "x")
	require.Equal(t, http.StatusCreated, rec.Code)

	patch := func(path, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)
		return a.do(req)
	}

	rec = patch("/api/content/edit/detail", "application/json", `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "renamed", decodeJSON(t, rec)["title"])

	rec = patch("/api/content/edit/permission", "application/x-www-form-urlencoded", "private=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec)["private"])

	rec = patch("/api/content/edit/favorite", "application/x-www-form-urlencoded", "favorite=on")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec)["favorite"])

	rec = patch("/api/content/edit/password", "application/x-www-form-urlencoded", "new_password=open")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec)["has_passphrase"])

	rec = patch("/api/content/edit/reset", "application/x-www-form-urlencoded", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["has_passphrase"])

	// Anonymous mutation attempts are refused.
	req := httptest.NewRequest(http.MethodPatch, "/api/content/edit/permission",
		strings.NewReader("private=false"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = a.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/content/edit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = a.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Repeat delete is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/content/edit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = a.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	a.upload(t, map[string]string{"slug": "one1", "title": "b"}, "f", "x")
	a.upload(t, map[string]string{"slug": "two2", "title": "a"}, "f", "xy")

	req := httptest.NewRequest(http.MethodGet, "/api/content/?sort=title&order=asc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := a.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, float64(2), body["total"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "two2", items[0].(map[string]any)["slug"])

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeyCheck(t *testing.T) {
	a := newTestAPI(t)
	a.upload(t, map[string]string{"slug": "used"}, "f", "x")

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/content/keycheck/used", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec)["exists"])

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/content/keycheck/free", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["exists"])
}

func TestAuthEndpoints(t *testing.T) {
	a := newTestAPI(t)

	badReq := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"operator","password":"wrong"}`))
	badReq.Header.Set("Content-Type", "application/json")
	rec := a.do(badReq)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"operator","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = a.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeJSON(t, rec)
	assert.NotEmpty(t, login["access_token"])
	assert.NotEmpty(t, login["refresh_token"])

	// The session cookie is set for browser clients.
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "teledrop_token", cookies[0].Name)

	// Refresh rotates the pair.
	body, _ := json.Marshal(map[string]string{"refresh_token": login["refresh_token"].(string)})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = a.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Cookie authenticates follow-up requests.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "teledrop_token", Value: login["access_token"].(string)})
	rec = a.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeJSON(t, rec)
	assert.Equal(t, "operator", me["identity"])
	assert.Equal(t, true, me["authenticated"])

	// Anonymous identity check.
	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["authenticated"])
}

func TestAPIKeyFlow(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	// Key management requires the operator.
	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/keys/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/keys/",
		strings.NewReader(`{"name":"ci"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = a.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON(t, rec)
	clear := created["key"].(string)
	assert.True(t, strings.HasPrefix(clear, "td_"))

	// The key authenticates an upload.
	body, contentType := multipartUpload(t, map[string]string{"slug": "bykey"}, "f", "x")
	upload := httptest.NewRequest(http.MethodPost, "/api/content/", body)
	upload.Header.Set("Content-Type", contentType)
	upload.Header.Set("X-API-Key", clear)
	rec = a.do(upload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// A bad key is refused outright.
	body, contentType = multipartUpload(t, nil, "f", "x")
	upload = httptest.NewRequest(http.MethodPost, "/api/content/", body)
	upload.Header.Set("Content-Type", contentType)
	upload.Header.Set("X-API-Key", "td_bogus")
	rec = a.do(upload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/keys/%s", created["id"]), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = a.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeJSON(t, rec)["status"])

	rec = a.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
