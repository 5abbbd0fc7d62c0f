package router

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// staticHandler serves files rooted at basePath, guarding against
// path-traversal and falling back to index.html for directories and,
// when spa is set, for any unresolved path.
type staticHandler struct {
	basePath string
	spa      bool
}

func newStaticHandler(basePath string, spa bool) http.Handler {
	return &staticHandler{basePath: filepath.Clean(basePath), spa: spa}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requested := filepath.Join(h.basePath, filepath.Clean("/"+r.URL.Path))
	if !isWithinBase(h.basePath, requested) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(requested)
	switch {
	case err == nil && info.IsDir():
		requested = filepath.Join(requested, "index.html")
	case os.IsNotExist(err) && h.spa:
		requested = filepath.Join(h.basePath, "index.html")
	case os.IsNotExist(err):
		http.NotFound(w, r)
		return
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data, err := os.ReadFile(requested)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(requested))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// isWithinBase reports whether target, once cleaned, stays within base.
// Guards against "../" escapes in the request path.
func isWithinBase(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
