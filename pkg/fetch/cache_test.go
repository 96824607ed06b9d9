package fetch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const constitutionURL = "https://www.planalto.gov.br/ccivil_03/constituicao/constituicao.htm"

func TestDiskCacheRoundTrip(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}

	page := &Page{
		StatusCode:  200,
		ContentType: "text/html; charset=iso-8859-1",
		Body:        []byte("<p>T\xcdTULO I</p>"),
		FetchedAt:   time.Now(),
	}
	if err := cache.Set(constitutionURL, page); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := cache.Get(constitutionURL)
	if !ok {
		t.Fatal("Get() missed a stored page")
	}
	if string(got.Body) != string(page.Body) || got.ContentType != page.ContentType {
		t.Errorf("Get() = %+v", got)
	}
	if got.URL != constitutionURL {
		t.Errorf("URL = %q, want the cache key", got.URL)
	}
	if _, ok := cache.Get("https://example.com/other"); ok {
		t.Error("Get() hit for an uncached URL")
	}
}

func TestDiskCacheExpiry(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir(), -time.Second)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	if err := cache.Set(constitutionURL, &Page{Body: []byte("x")}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok := cache.Get(constitutionURL); ok {
		t.Error("Get() returned an expired entry")
	}
	if _, err := os.Stat(cache.pathFor(constitutionURL)); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestDiskCacheIgnoresForeignAndCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewDiskCache(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}

	if err := os.WriteFile(cache.pathFor(constitutionURL), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	if _, ok := cache.Get(constitutionURL); ok {
		t.Error("Get() returned a corrupt entry")
	}

	if err := cache.Set("https://example.com/a", &Page{Body: []byte("a")}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := os.Rename(cache.pathFor("https://example.com/a"), cache.pathFor(constitutionURL)); err != nil {
		t.Fatalf("renaming entry: %v", err)
	}
	if _, ok := cache.Get(constitutionURL); ok {
		t.Error("Get() returned an entry stored for another URL")
	}
}

func TestDiskCachePruneAndDelete(t *testing.T) {
	dir := t.TempDir()
	fresh, err := NewDiskCache(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	stale, err := NewDiskCache(dir, -time.Second)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}

	if err := fresh.Set("https://example.com/fresh", &Page{Body: []byte("f")}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := stale.Set("https://example.com/stale", &Page{Body: []byte("s")}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("writing entry: %v", err)
	}

	removed, err := fresh.Prune()
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}
	if _, ok := fresh.Get("https://example.com/fresh"); !ok {
		t.Error("Prune() removed a fresh entry")
	}

	if err := fresh.Delete("https://example.com/fresh"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := fresh.Get("https://example.com/fresh"); ok {
		t.Error("Delete() left the entry")
	}
	if err := fresh.Delete("https://example.com/fresh"); err != nil {
		t.Errorf("Delete() of a missing entry = %v, want nil", err)
	}
}
