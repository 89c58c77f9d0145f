// Package web serves the embedded chat page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/ashureev/smartstar/internal/api"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// reservedPrefixes are owned by the JSON and WebSocket surfaces. A miss under
// them is an API error, never the page.
var reservedPrefixes = []string{"/api/", "/ws/"}

type pageHandler struct {
	files  fs.FS
	static http.Handler
}

// SPAHandler serves the chat page and its assets. Paths that name no asset
// get the page itself so client-side navigation survives a reload.
func SPAHandler() http.Handler {
	files, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: embedded dist missing: " + err.Error())
	}
	return &pageHandler{files: files, static: http.FileServer(http.FS(files))}
}

func (h *pageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isReserved(r.URL.Path) {
		api.Error(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		api.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if name := strings.TrimPrefix(r.URL.Path, "/"); name != "" && h.isAsset(name) {
		h.static.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, h.files, indexFile)
}

func (h *pageHandler) isAsset(name string) bool {
	info, err := fs.Stat(h.files, name)
	return err == nil && !info.IsDir()
}

func isReserved(path string) bool {
	for _, prefix := range reservedPrefixes {
		if path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
