package rest

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publicDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "img", "tours"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img", "tours", "tour-1-cover.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overview.html"), []byte("<h1>Tours</h1>"), 0o644))
	return dir
}

func TestServeStatic(t *testing.T) {
	app := newTestApp(t, RestAppOptions{}, &Endpoint{
		Name: "tours", Method: MethodGET, Path: "/api/v1/tours", Public: true, Handler: okHandler,
	})
	require.NoError(t, app.ServeStatic(StaticConfig{Directory: publicDir(t), MaxAge: 24 * time.Hour}))

	rec := doRequest(app, http.MethodGet, "/img/tours/tour-1-cover.jpg", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = doRequest(app, http.MethodGet, "/overview.html", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = doRequest(app, http.MethodGet, "/img/tours/missing.jpg", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Can't find /img/tours/missing.jpg on this server!", decodeBody(t, rec)["message"])

	assert.Equal(t, http.StatusOK, doRequest(app, http.MethodGet, "/api/v1/tours", "", nil).Code, "API routes win over files")
}

func TestServeStaticRejectsBadDirectories(t *testing.T) {
	app := NewRestApp(RestAppOptions{})

	assert.Error(t, app.ServeStatic(StaticConfig{}))
	assert.Error(t, app.ServeStatic(StaticConfig{Directory: filepath.Join(t.TempDir(), "missing")}))

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, app.ServeStatic(StaticConfig{Directory: file}))
}
