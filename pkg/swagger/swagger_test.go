package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, mux http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestEmbeddedSpec(t *testing.T) {
	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(Spec, &doc))
	assert.Regexp(t, `^3\.`, doc.OpenAPI)

	for _, p := range []string{
		"/heatnet.v1.HeatingService/BuildNetwork",
		"/heatnet.v1.HeatingService/Solve",
		"/heatnet.v1.HeatingService/GetRun",
		"/heatnet.v1.HeatingService/ListRuns",
		"/heatnet.v1.HeatingService/DeleteRun",
		"/v1/runs/{id}/report",
	} {
		assert.Contains(t, doc.Paths, p)
	}
}

func TestPage(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux, Options{})

	for _, path := range []string{"/swagger/", "/swagger/index.html"} {
		t.Run(path, func(t *testing.T) {
			w := get(t, mux, path)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), "openapi.json")
			assert.Contains(t, w.Body.String(), "Heatnet API")
		})
	}
}

func TestDocument(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux, Options{})

	w := get(t, mux, "/swagger/openapi.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, Spec, w.Body.Bytes())

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = get(t, mux, "/swagger/openapi.json", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestETag_DependsOnContent(t *testing.T) {
	a := New(Options{Document: []byte(`{"openapi":"3.0.0"}`)})
	b := New(Options{Document: []byte(`{"openapi":"3.0.0"}`)})
	c := New(Options{Document: []byte(`{}`)})

	assert.Equal(t, a.etag, b.etag)
	assert.NotEqual(t, a.etag, c.etag)
}

func TestCustomOptions(t *testing.T) {
	mux := http.NewServeMux()
	d := Mount(mux, Options{Title: "Custom API", Prefix: "/api-docs", Expand: "none", Document: []byte(`{}`)})
	assert.Equal(t, "/api-docs/openapi.json", d.DocumentPath())

	w := get(t, mux, "/api-docs/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Custom API")
	assert.Contains(t, w.Body.String(), `docExpansion: "none"`)

	w = get(t, mux, "/api-docs/openapi.json")
	assert.Equal(t, "{}", w.Body.String())
}

func TestUnknownPath(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux, Options{})

	assert.Equal(t, http.StatusNotFound, get(t, mux, "/swagger/nonexistent").Code)
	assert.Equal(t, http.StatusMethodNotAllowed,
		func() int {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/swagger/openapi.json", nil))
			return w.Code
		}())
}
