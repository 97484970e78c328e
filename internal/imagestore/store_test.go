package imagestore

import (
	"os"
	"path/filepath"
	"testing"

	"KoordeDHT/internal/domain"
)

func writeManifest(t *testing.T, dir string, names []string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.txt")
	content := ""
	for _, n := range names {
		content += n + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadFiltersByRange(t *testing.T) {
	dir := t.TempDir()
	names := []string{"a.tga", "b.tga", "c.tga", "d.tga"}
	manifest := writeManifest(t, dir, names)

	s := New(manifest, dir)

	// find one name definitely in range and one definitely out, using the
	// real derivation so the test tracks the implementation under test.
	var inRange, outOfRange string
	for _, n := range names {
		id := domain.DeriveImageID(n)
		if domain.InRange(id, 0, 128) {
			inRange = n
		} else {
			outOfRange = n
		}
	}
	if inRange == "" || outOfRange == "" {
		t.Skip("fixture names did not split across the test range; adjust names")
	}

	if err := s.Load(0, 128); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := s.Query(inRange); got != Hit {
		t.Fatalf("Query(%q) = %v, want Hit", inRange, got)
	}
	if got := s.Query(outOfRange); got != Miss {
		t.Fatalf("Query(%q) = %v, want Miss", outOfRange, got)
	}
}

func TestQueryUnknownNameIsMiss(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, nil)
	s := New(manifest, dir)
	if err := s.Load(0, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Query("nonexistent.tga"); got != Miss {
		t.Fatalf("Query on empty store = %v, want Miss", got)
	}
}

func TestCacheThenQueryHits(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, nil)
	s := New(manifest, dir)
	if err := s.Load(0, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Cache("new.tga")
	if got := s.Query("new.tga"); got != Hit {
		t.Fatalf("Query after Cache = %v, want Hit", got)
	}
}

func TestCacheRespectsCap(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, nil)
	s := New(manifest, dir)
	if err := s.Load(0, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := 0; i < MaxRecords; i++ {
		s.Cache(filepath.Join("img", string(rune('a'+i%26)), "x"))
	}
	if s.Len() != MaxRecords {
		t.Fatalf("Len() = %d, want %d", s.Len(), MaxRecords)
	}
	s.Cache("overflow.tga")
	if s.Len() != MaxRecords {
		t.Fatalf("Cache exceeded MaxRecords: Len() = %d", s.Len())
	}
}
