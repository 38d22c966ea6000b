// Package server is the thin HTTP glue over the engine, cache and
// scanner. Handlers parse parameters, delegate and encode JSON; no file
// or image logic lives here.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xpzchen/image-manager/internal/cache"
	"github.com/xpzchen/image-manager/internal/config"
	"github.com/xpzchen/image-manager/internal/lifecycle"
	"github.com/xpzchen/image-manager/internal/scan"
)

// renditionMaxAge lets the browser cache thumbnails for a year; cache keys
// embed the source mtime, so a changed file gets a new URL anyway.
const renditionMaxAge = "public, max-age=31536000"

type Server struct {
	cfg     config.Config
	engine  *lifecycle.Engine
	cache   *cache.Cache
	scanner *scan.Scanner

	thumbSize   cache.Size
	previewSize cache.Size
}

func New(cfg config.Config, engine *lifecycle.Engine, rc *cache.Cache, sc *scan.Scanner) *Server {
	return &Server{
		cfg:         cfg,
		engine:      engine,
		cache:       rc,
		scanner:     sc,
		thumbSize:   cache.Size{Width: cfg.Cache.ThumbnailWidth, Height: cfg.Cache.ThumbnailHeight},
		previewSize: cache.Size{Width: cfg.Cache.PreviewWidth, Height: cfg.Cache.PreviewHeight},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/images", s.handleImages)
	mux.HandleFunc("GET /api/aesthetic", s.handleAesthetic)
	mux.HandleFunc("GET /api/thumbnail", s.handleThumbnail)
	mux.HandleFunc("GET /api/preview", s.handlePreview)
	mux.HandleFunc("GET /api/original", s.handleOriginal)
	mux.HandleFunc("POST /api/organize", s.handleOrganize)
	mux.HandleFunc("POST /api/revert", s.handleRevert)
	mux.HandleFunc("POST /api/mark", s.handleMark)
	mux.HandleFunc("POST /api/delete", s.handleDelete)
	mux.HandleFunc("POST /api/restore", s.handleRestore)
	mux.HandleFunc("GET /api/marked", s.handleMarked)
	mux.HandleFunc("GET /api/trash", s.handleTrash)
	mux.HandleFunc("POST /api/clear-cache", s.handleClearCache)
	mux.HandleFunc("GET /api/dirs", s.handleDirs)
	return mux
}

// ListenAndServe blocks serving the API on the configured address.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("serving API", "addr", s.cfg.Server.Addr)
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	showRaw := r.URL.Query().Get("show_raw") == "true"

	images, err := s.scanner.ListImages(r.Context(), folder, showRaw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if images == nil {
		images = []scan.Image{}
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleAesthetic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := scan.Options{
		Shuffle:     q.Get("shuffle") != "false",
		Author:      q.Get("author"),
		Work:        q.Get("work"),
		ConvertHEIC: q.Get("convert_heic") == "true",
	}

	items, err := s.scanner.Items(r.Context(), q.Get("folder"), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []scan.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}

// serveRendition answers thumbnail and preview requests. Decode failures
// already degraded to a cached placeholder inside Render; only a cache
// write failure reaches the error branch.
func (s *Server) serveRendition(w http.ResponseWriter, r *http.Request, size cache.Size) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	entry, err := s.cache.Render(r.Context(), path, size)
	if err != nil {
		slog.Error("rendition unavailable", "path", path, "error", err)
		http.Error(w, "rendition unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", renditionMaxAge)
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, entry)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	s.serveRendition(w, r, s.thumbSize)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.serveRendition(w, r, s.previewSize)
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleOrganize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Folder string `json:"folder"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	moved, err := s.engine.Organize(req.Folder)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"moved_count": moved,
		"message":     fmt.Sprintf("organized %d files", moved),
	})
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Folder string `json:"folder"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reverted, err := s.engine.Revert(req.Folder)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"reverted_count": reverted,
		"message":        fmt.Sprintf("reverted %d files", reverted),
	})
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
		Folder   string `json:"folder"`
		Mark     *bool  `json:"mark"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mark := req.Mark == nil || *req.Mark
	var (
		count  int
		err    error
		action = "marked"
	)
	if mark {
		count, err = s.engine.Mark(req.Filename, req.Folder)
	} else {
		count, err = s.engine.Unmark(req.Filename, req.Folder)
		action = "unmarked"
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   count,
		"message": fmt.Sprintf("%s %d related files", action, count),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename  string `json:"filename"`
		Folder    string `json:"folder"`
		Permanent bool   `json:"permanent"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := s.engine.Delete(req.Filename, req.Folder, req.Permanent)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	action := "moved to trash"
	if req.Permanent {
		action = "permanently deleted"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(deleted),
		"message": fmt.Sprintf("%s %d related files", action, len(deleted)),
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
		Folder   string `json:"folder"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.engine.Restore(req.Filename, req.Folder)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "no matching file in trash",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "file restored",
	})
}

func (s *Server) handleMarked(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.MarkedNames(r.URL.Query().Get("folder"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.TrashEntries(r.URL.Query().Get("folder"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []lifecycle.TrashEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"items": entries,
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.Clear()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("cache cleared, %d renditions removed", removed),
	})
}

// handleDirs lists browsable subdirectories. Dot- and underscore-prefixed
// entries (including the reserved areas) are hidden.
func (s *Server) handleDirs(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"current": "",
			"dirs":    []string{string(filepath.Separator)},
			"is_root": true,
		})
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		http.Error(w, "path does not exist", http.StatusNotFound)
		return
	}

	var dirs []string
	if filepath.Dir(abs) != abs {
		dirs = append(dirs, "..")
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		dirs = append(dirs, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current": abs,
		"dirs":    dirs,
		"is_root": false,
	})
}
