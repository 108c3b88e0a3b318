// Package assets serves the embedded API documentation.
// The Markdown reference is rendered to HTML once with goldmark and served
// alongside the OpenAPI document and its stylesheet.
package assets

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed docs
var docsFS embed.FS

var pageTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.Base}}style.css">
</head>
<body>
{{.Content}}
<p><a href="{{.SpecURL}}">OpenAPI document</a></p>
</body>
</html>
`))

var (
	renderOnce sync.Once
	renderedMD []byte
	renderErr  error
)

func init() {
	_ = mime.AddExtensionType(".md", "text/markdown; charset=utf-8")
}

// mimeFromExt returns the MIME type for a file extension, falling back to
// the standard library database and then application/octet-stream.
func mimeFromExt(ext string) string {
	switch ext {
	case ".css":
		return "text/css; charset=utf-8"
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// renderMarkdown converts the embedded API reference to an HTML fragment.
func renderMarkdown() ([]byte, error) {
	renderOnce.Do(func() {
		src, err := docsFS.ReadFile("docs/api.md")
		if err != nil {
			renderErr = err
			return
		}
		md := goldmark.New(goldmark.WithExtensions(extension.Table))
		var buf bytes.Buffer
		if err := md.Convert(src, &buf); err != nil {
			renderErr = err
			return
		}
		renderedMD = buf.Bytes()
	})
	return renderedMD, renderErr
}

// APIDocHTML renders the full documentation page. base is the URL prefix the
// page is served under (with trailing slash), specURL the OpenAPI location.
func APIDocHTML(base, specURL string) ([]byte, error) {
	content, err := renderMarkdown()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	err = pageTemplate.Execute(&out, struct {
		Title   string
		Base    string
		SpecURL string
		Content template.HTML
	}{
		Title:   "Inkwell API",
		Base:    base,
		SpecURL: specURL,
		Content: template.HTML(content), //nolint:gosec // rendered from embedded trusted Markdown
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// APIDocJSON returns the OpenAPI document describing the HTTP endpoints.
func APIDocJSON() []byte {
	data, err := docsFS.ReadFile("docs/openapi.json")
	if err != nil {
		panic("assets: openapi.json missing from embed: " + err.Error())
	}
	return data
}

// SpecHandler serves APIDocJSON.
func SpecHandler() http.Handler {
	data := APIDocJSON()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	})
}

// DocsHandler serves the rendered page at the mount root and the embedded
// files beneath it. Paths are relative to base (strip the prefix before calling).
func DocsHandler(base, specURL string) http.Handler {
	sub, err := fs.Sub(docsFS, "docs")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || name == "index.html" {
			page, err := APIDocHTML(base, specURL)
			if err != nil {
				http.Error(w, "documentation unavailable", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			_, _ = w.Write(page)
			return
		}

		if ext := strings.ToLower(path.Ext(name)); ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}
