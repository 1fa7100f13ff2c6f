package webui

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"srdash/webui/static"
)

// StaticAssetHandler serves the embedded dashboard assets.
type StaticAssetHandler struct {
	fs          fs.FS
	prefix      string
	indexFile   string
	enableCache bool
	cacheMaxAge int
}

// StaticAssetConfig configures a StaticAssetHandler.
type StaticAssetConfig struct {
	// Prefix is the URL path the assets are mounted under (default: /static)
	Prefix    string
	IndexFile string
	// EnableCache sends a public Cache-Control header; dev mode turns it off.
	EnableCache bool
	CacheMaxAge int
}

// DefaultStaticAssetConfig returns the production configuration.
func DefaultStaticAssetConfig() StaticAssetConfig {
	return StaticAssetConfig{
		Prefix:      "/static",
		IndexFile:   "index.html",
		EnableCache: true,
		CacheMaxAge: 3600,
	}
}

// NewStaticAssetHandler serves the embedded filesystem.
func NewStaticAssetHandler(config StaticAssetConfig) *StaticAssetHandler {
	return NewStaticAssetHandlerWithFS(static.GetFS(), config)
}

// NewStaticAssetHandlerWithFS serves fsys instead of the embedded assets.
func NewStaticAssetHandlerWithFS(fsys fs.FS, config StaticAssetConfig) *StaticAssetHandler {
	if config.Prefix == "" {
		config.Prefix = "/static"
	}
	if config.IndexFile == "" {
		config.IndexFile = "index.html"
	}
	if config.CacheMaxAge == 0 {
		config.CacheMaxAge = 3600
	}
	return &StaticAssetHandler{
		fs:          fsys,
		prefix:      config.Prefix,
		indexFile:   config.IndexFile,
		enableCache: config.EnableCache,
		cacheMaxAge: config.CacheMaxAge,
	}
}

// ServeHTTP serves one asset relative to the prefix.
func (h *StaticAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, h.prefix)
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		name = h.indexFile
	}
	h.serveFile(w, r, name)
}

func (h *StaticAssetHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	data, err := fs.ReadFile(h.fs, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", detectContentType(name))
	if h.enableCache {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(h.cacheMaxAge))
	} else {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(data)
	}
}

// RegisterRoutes mounts the assets under the prefix.
func (h *StaticAssetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(h.prefix+"/", h)
}

// ServeDashboard serves the index page at any path.
func (h *StaticAssetHandler) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveFile(w, r, h.indexFile)
	}
}

func detectContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
