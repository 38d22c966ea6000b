package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMarkAndUnmarkRelatedFiles(t *testing.T) {
	e := newTestEngine(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "sunset.jpg"), "jpg")
	writeFile(t, filepath.Join(folder, "RAW", "sunset.cr2"), "raw")
	writeFile(t, filepath.Join(folder, "beach.jpg"), "unrelated")

	count, err := e.Mark("sunset.jpg", folder)
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("Mark() count = %d, want 2", count)
	}
	marked := filepath.Join(folder, "_marked_images")
	if got := mustRead(t, filepath.Join(marked, "JPG", "sunset.jpg")); got != "jpg" {
		t.Errorf("marked JPG copy = %q", got)
	}
	if got := mustRead(t, filepath.Join(marked, "CR2", "sunset.cr2")); got != "raw" {
		t.Errorf("marked CR2 copy = %q", got)
	}
	// originals stay in place: marking copies, never moves
	if _, err := os.Stat(filepath.Join(folder, "sunset.jpg")); err != nil {
		t.Error("original moved by Mark")
	}

	count, err = e.Unmark("sunset.jpg", folder)
	if err != nil {
		t.Fatalf("Unmark() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Unmark() count = %d, want 2", count)
	}
	if _, err := os.Stat(filepath.Join(marked, "JPG")); !os.IsNotExist(err) {
		t.Error("empty JPG subfolder left in marked area")
	}
	if _, err := os.Stat(filepath.Join(marked, "CR2")); !os.IsNotExist(err) {
		t.Error("empty CR2 subfolder left in marked area")
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "x.png"), "one")

	if _, err := e.Mark("x.png", folder); err != nil {
		t.Fatal(err)
	}
	// mutate the original; a second mark must not overwrite the copy
	writeFile(t, filepath.Join(folder, "x.png"), "two")
	count, err := e.Mark("x.png", folder)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Mark() count = %d, want 1", count)
	}
	copyPath := filepath.Join(folder, "_marked_images", "PNG", "x.png")
	if got := mustRead(t, copyPath); got != "one" {
		t.Errorf("existing marked copy overwritten: %q", got)
	}
}

func TestMarkIgnoresReservedAreas(t *testing.T) {
	e := newTestEngine(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "y.jpg"), "live")
	writeFile(t, filepath.Join(folder, "_trash", "y.jpg"), "trashed")
	writeFile(t, filepath.Join(folder, "_marked_images", "JPG", "y.jpg"), "copy")

	count, err := e.Mark("y.jpg", folder)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Mark() count = %d, want 1 (reserved areas excluded)", count)
	}
}

func TestMarkedNames(t *testing.T) {
	e := newTestEngine(t)
	folder := t.TempDir()
	writeFile(t, filepath.Join(folder, "a.jpg"), "a")
	writeFile(t, filepath.Join(folder, "b.png"), "b")

	if _, err := e.Mark("a.jpg", folder); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Mark("b.png", folder); err != nil {
		t.Fatal(err)
	}

	names, err := e.MarkedNames(folder)
	if err != nil {
		t.Fatalf("MarkedNames() error = %v", err)
	}
	if len(names) != 2 || names[0] != "a.jpg" || names[1] != "b.png" {
		t.Errorf("MarkedNames() = %v, want [a.jpg b.png]", names)
	}

	empty, err := e.MarkedNames(t.TempDir())
	if err != nil || empty != nil {
		t.Errorf("MarkedNames() on unmarked folder = %v, %v", empty, err)
	}
}
