// Package swagger serves the embedded OpenAPI document and a Swagger UI page.
package swagger

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"html/template"
	"net/http"

	"heatnet/pkg/logger"
)

// Spec OpenAPI-описание heating-svc.
//
//go:embed openapi.json
var Spec []byte

// Options параметры страницы документации. Нулевые поля заполняются
// значениями по умолчанию.
type Options struct {
	Title string
	// Prefix корень маршрутов, без завершающего слэша
	Prefix string
	// Expand режим раскрытия операций: list, full или none
	Expand string
	// Document заменяет встроенное описание
	Document []byte
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Heatnet API"
	}
	if o.Prefix == "" {
		o.Prefix = "/swagger"
	}
	if o.Expand == "" {
		o.Expand = "list"
	}
	if len(o.Document) == 0 {
		o.Document = Spec
	}
	return o
}

// Docs отдаёт страницу и документ
type Docs struct {
	opts Options
	etag string
}

// New создаёт Docs
func New(opts Options) *Docs {
	opts = opts.withDefaults()
	sum := sha256.Sum256(opts.Document)
	return &Docs{
		opts: opts,
		etag: `"` + hex.EncodeToString(sum[:8]) + `"`,
	}
}

// DocumentPath адрес JSON-документа
func (d *Docs) DocumentPath() string {
	return d.opts.Prefix + "/openapi.json"
}

// Mount регистрирует GET-маршруты страницы и документа
func (d *Docs) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET "+d.opts.Prefix+"/{$}", d.page)
	mux.HandleFunc("GET "+d.opts.Prefix+"/index.html", d.page)
	mux.HandleFunc("GET "+d.DocumentPath(), d.document)
}

// Mount монтирует документацию с параметрами opts
func Mount(mux *http.ServeMux, opts Options) *Docs {
	d := New(opts)
	d.Mount(mux)
	return d
}

func (d *Docs) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	err := page.Execute(w, map[string]string{
		"Title":    d.opts.Title,
		"Document": d.DocumentPath(),
		"Expand":   d.opts.Expand,
	})
	if err != nil {
		logger.Log.Error("Failed to render swagger page", "error", err)
	}
}

func (d *Docs) document(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("ETag", d.etag)
	h.Set("Access-Control-Allow-Origin", "*")

	if r.Header.Get("If-None-Match") == d.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "max-age=3600")
	if _, err := w.Write(d.opts.Document); err != nil {
		logger.Log.Debug("Swagger document write aborted", "error", err)
	}
}

var page = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
<div id="api"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: "{{.Document}}", dom_id: "#api", docExpansion: "{{.Expand}}", validatorUrl: null});
</script>
</body>
</html>`))
