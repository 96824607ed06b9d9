package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskCache keeps raw fetched pages on disk for a limited time, one JSON
// file per URL named by the SHA-256 of the URL. Bodies are stored before
// charset decoding so a cached page can be decoded again with a different
// forced charset.
type DiskCache struct {
	dir string
	ttl time.Duration
}

type cacheEntry struct {
	Page      Page      `json:"page"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewDiskCache opens or creates a cache in dir.
func NewDiskCache(dir string, ttl time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &DiskCache{dir: dir, ttl: ttl}, nil
}

// Get returns the page cached for url. Expired entries are removed; entries
// that cannot be read or belong to another URL are ignored.
func (cache *DiskCache) Get(url string) (*Page, bool) {
	path := cache.pathFor(url)
	entry, err := readEntry(path)
	if err != nil || entry.Page.URL != url {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false
	}
	return &entry.Page, true
}

// Set stores page under url. The file is replaced atomically.
func (cache *DiskCache) Set(url string, page *Page) error {
	now := time.Now().UTC()
	entry := cacheEntry{Page: *page, StoredAt: now, ExpiresAt: now.Add(cache.ttl)}
	entry.Page.URL = url

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(cache.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), cache.pathFor(url)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

// Delete drops the entry for url, if any.
func (cache *DiskCache) Delete(url string) error {
	err := os.Remove(cache.pathFor(url))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Prune removes expired and unreadable entries and returns how many were
// removed.
func (cache *DiskCache) Prune() (int, error) {
	files, err := os.ReadDir(cache.dir)
	if err != nil {
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}

	now := time.Now()
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		path := filepath.Join(cache.dir, file.Name())
		entry, err := readEntry(path)
		if err == nil && !now.After(entry.ExpiresAt) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

func readEntry(path string) (*cacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (cache *DiskCache) keyFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (cache *DiskCache) pathFor(url string) string {
	return filepath.Join(cache.dir, cache.keyFor(url)+".json")
}
