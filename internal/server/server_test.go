package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xpzchen/image-manager/internal/cache"
	"github.com/xpzchen/image-manager/internal/config"
	"github.com/xpzchen/image-manager/internal/journal"
	"github.com/xpzchen/image-manager/internal/lifecycle"
	"github.com/xpzchen/image-manager/internal/scan"
)

type solidDecoder struct{}

func (solidDecoder) Decode(context.Context, string) (image.Image, error) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img, nil
}

type noopNormalizer struct{}

func (noopNormalizer) Normalize(_ context.Context, path string) (string, error) {
	return path, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Cache.Dir = t.TempDir()

	rc, err := cache.New(cfg.Cache, solidDecoder{})
	if err != nil {
		t.Fatal(err)
	}
	engine := lifecycle.New(cfg.Core, journal.NewFileStore())
	scanner := scan.New(cfg, noopNormalizer{})
	return New(cfg, engine, rc, scanner).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestOrganizeEndpoint(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "a.jpg"), "x")

	rec := doJSON(t, h, http.MethodPost, "/api/organize", map[string]string{"folder": folder})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success    bool   `json:"success"`
		MovedCount int    `json:"moved_count"`
		Message    string `json:"message"`
	}
	decodeResponse(t, rec, &resp)
	if !resp.Success || resp.MovedCount != 1 {
		t.Errorf("organize response = %+v", resp)
	}
	if _, err := os.Stat(filepath.Join(folder, "JPG", "a.jpg")); err != nil {
		t.Error("file not organized")
	}
}

func TestImagesEndpoint(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "a.jpg"), "x")
	writeFile(t, filepath.Join(folder, "a.cr2"), "y")

	rec := doJSON(t, h, http.MethodGet, "/api/images?folder="+folder, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var images []scan.Image
	decodeResponse(t, rec, &images)
	if len(images) != 1 || !images[0].HasRaw {
		t.Errorf("images = %+v, want one paired entry", images)
	}
}

func TestAestheticEndpoint(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "alice", "seaside", "a.jpg"), "x")

	rec := doJSON(t, h, http.MethodGet, "/api/aesthetic?folder="+folder+"&shuffle=false", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count int         `json:"count"`
		Items []scan.Item `json:"items"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Count != 1 || resp.Items[0].Category != "archived" {
		t.Errorf("aesthetic response = %+v", resp)
	}
}

func TestThumbnailEndpoint(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	src := filepath.Join(folder, "pic.jpg")
	writeFile(t, src, "not real pixels, decoder is faked")

	rec := doJSON(t, h, http.MethodGet, "/api/thumbnail?path="+src, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=31536000" {
		t.Errorf("Cache-Control = %q", got)
	}
	body := rec.Body.Bytes()
	if len(body) < 2 || body[0] != 0xff || body[1] != 0xd8 {
		t.Error("response is not a JPEG")
	}
}

func TestThumbnailMissingPath(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/thumbnail", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMarkAndMarkedEndpoints(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "keep.jpg"), "x")

	rec := doJSON(t, h, http.MethodPost, "/api/mark", map[string]any{
		"filename": "keep.jpg",
		"folder":   folder,
	})
	var resp struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	decodeResponse(t, rec, &resp)
	if !resp.Success || resp.Count != 1 {
		t.Errorf("mark response = %+v", resp)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/marked?folder="+folder, nil)
	var names []string
	decodeResponse(t, rec, &names)
	if len(names) != 1 || names[0] != "keep.jpg" {
		t.Errorf("marked = %v", names)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/mark", map[string]any{
		"filename": "keep.jpg",
		"folder":   folder,
		"mark":     false,
	})
	decodeResponse(t, rec, &resp)
	if !resp.Success || resp.Count != 1 {
		t.Errorf("unmark response = %+v", resp)
	}
}

func TestDeleteTrashRestoreEndpoints(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "photo.jpg"), "x")

	rec := doJSON(t, h, http.MethodPost, "/api/delete", map[string]any{
		"filename": "photo.jpg",
		"folder":   folder,
	})
	var del struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	decodeResponse(t, rec, &del)
	if !del.Success || del.Count != 1 {
		t.Fatalf("delete response = %+v", del)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/trash?folder="+folder, nil)
	var trash struct {
		Count int                    `json:"count"`
		Items []lifecycle.TrashEntry `json:"items"`
	}
	decodeResponse(t, rec, &trash)
	if trash.Count != 1 || trash.Items[0].OriginalName != "photo.jpg" {
		t.Fatalf("trash response = %+v", trash)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/restore", map[string]any{
		"filename": "photo.jpg",
		"folder":   folder,
	})
	var res struct {
		Success bool `json:"success"`
	}
	decodeResponse(t, rec, &res)
	if !res.Success {
		t.Fatalf("restore response = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(folder, "photo.jpg")); err != nil {
		t.Error("file not restored")
	}
}

func TestRestoreNoMatch(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/api/restore", map[string]any{
		"filename": "absent.jpg",
		"folder":   t.TempDir(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with success=false", rec.Code)
	}
	var resp struct {
		Success bool `json:"success"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Success {
		t.Error("restore of absent file reported success")
	}
}

func TestClearCacheEndpoint(t *testing.T) {
	h := newTestHandler(t)
	folder := t.TempDir()
	src := filepath.Join(folder, "pic.jpg")
	writeFile(t, src, "x")

	// populate the cache through the thumbnail route first
	doJSON(t, h, http.MethodGet, "/api/thumbnail?path="+src, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/clear-cache", nil)
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeResponse(t, rec, &resp)
	if !resp.Success || !strings.Contains(resp.Message, "1 renditions") {
		t.Errorf("clear-cache response = %+v", resp)
	}
}

func TestDirsHidesReservedEntries(t *testing.T) {
	h := newTestHandler(t)
	root := t.TempDir()
	for _, d := range []string{"visible", "_trash", ".hidden"} {
		if err := os.Mkdir(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/api/dirs?path="+root, nil)
	var resp struct {
		Current string   `json:"current"`
		Dirs    []string `json:"dirs"`
		IsRoot  bool     `json:"is_root"`
	}
	decodeResponse(t, rec, &resp)
	if resp.IsRoot {
		t.Error("non-root path reported as root")
	}
	want := []string{"..", "visible"}
	if len(resp.Dirs) != 2 || resp.Dirs[0] != want[0] || resp.Dirs[1] != want[1] {
		t.Errorf("dirs = %v, want %v", resp.Dirs, want)
	}
}

func TestDirsMissingPath(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/dirs?path="+filepath.Join(t.TempDir(), "nope"), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
