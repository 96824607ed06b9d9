// Package archive persists scrape results: serialized documents written to
// plain files, and content-addressed snapshots of each run's source markup
// and output recorded in a JSON manifest.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
)

const (
	manifestFileName = "manifest.json"
	objectsDir       = "objects"
	manifestVersion  = "1.0.0"
)

// RunStatus is the outcome recorded for a run.
type RunStatus string

const (
	StatusComplete RunStatus = "complete"
	StatusFailed   RunStatus = "failed"
)

// Manifest indexes the runs held in an archive.
type Manifest struct {
	Version   string      `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Runs      []*RunEntry `json:"runs"`
}

// RunEntry records one scrape run.
type RunEntry struct {
	ID         string          `json:"id"`
	Status     RunStatus       `json:"status"`
	SourceURL  string          `json:"source_url,omitempty"`
	SourceCID  string          `json:"source_cid,omitempty"`
	OutputCID  string          `json:"output_cid,omitempty"`
	Format     Format          `json:"format,omitempty"`
	MediaType  string          `json:"media_type,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RecordOptions describes a run to record.
type RecordOptions struct {
	SourceURL string
	Source    []byte
	Output    []byte
	Format    Format
	// Stats is marshaled to JSON as-is.
	Stats any
	// Err marks the run failed; Source is still stored when present.
	Err error
	// Force records a new entry even if an identical run exists.
	Force bool
}

// Archive is a directory holding a content-addressed object store and a
// manifest of runs.
type Archive struct {
	mu       sync.RWMutex
	path     string
	store    *Store
	manifest *Manifest
}

// Init creates an empty archive at path.
func Init(path string) (*Archive, error) {
	store, err := NewStore(filepath.Join(path, objectsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	now := time.Now().UTC()
	a := &Archive{
		path:  path,
		store: store,
		manifest: &Manifest{
			Version:   manifestVersion,
			CreatedAt: now,
			UpdatedAt: now,
			Runs:      []*RunEntry{},
		},
	}
	if err := a.saveManifest(); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	return a, nil
}

// Open loads an existing archive.
func Open(path string) (*Archive, error) {
	data, err := os.ReadFile(filepath.Join(path, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse archive manifest: %w", err)
	}

	store, err := NewStore(filepath.Join(path, objectsDir))
	if err != nil {
		return nil, err
	}
	return &Archive{path: path, store: store, manifest: &manifest}, nil
}

// OpenOrInit opens the archive at path, creating it when no manifest exists.
func OpenOrInit(path string) (*Archive, error) {
	_, err := os.Stat(filepath.Join(path, manifestFileName))
	switch {
	case err == nil:
		return Open(path)
	case errors.Is(err, os.ErrNotExist):
		return Init(path)
	default:
		return nil, err
	}
}

// Record stores the run's source and output and appends an entry to the
// manifest. Recording the same source and output twice returns the
// existing entry unless opts.Force is set.
func (a *Archive) Record(opts RecordOptions) (*RunEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := &RunEntry{
		Status:     StatusComplete,
		SourceURL:  opts.SourceURL,
		RecordedAt: time.Now().UTC(),
	}

	if len(opts.Source) > 0 {
		id, err := a.store.Put(opts.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to store source: %w", err)
		}
		entry.SourceCID = id.String()
	}

	if len(opts.Output) > 0 {
		id, err := a.store.Put(opts.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to store output: %w", err)
		}
		entry.OutputCID = id.String()
		entry.Format = opts.Format
		entry.MediaType = opts.Format.MediaType()
	}

	if opts.Err != nil {
		entry.Status = StatusFailed
		entry.Error = opts.Err.Error()
	}

	if opts.Stats != nil {
		stats, err := json.Marshal(opts.Stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run stats: %w", err)
		}
		entry.Stats = stats
	}

	if !opts.Force && entry.Status == StatusComplete {
		if existing := a.findRunUnsafe(entry.SourceCID, entry.OutputCID); existing != nil {
			return existing, nil
		}
	}

	entry.ID = fmt.Sprintf("%s-%04d", entry.RecordedAt.Format("20060102T150405Z"), len(a.manifest.Runs)+1)
	a.manifest.Runs = append(a.manifest.Runs, entry)
	a.manifest.UpdatedAt = entry.RecordedAt

	if err := a.saveManifest(); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	return entry, nil
}

// Runs returns the recorded runs, oldest first.
func (a *Archive) Runs() []*RunEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	runs := make([]*RunEntry, len(a.manifest.Runs))
	copy(runs, a.manifest.Runs)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].RecordedAt.Before(runs[j].RecordedAt)
	})
	return runs
}

// Run returns the entry with the given ID, or nil.
func (a *Archive) Run(id string) *RunEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, entry := range a.manifest.Runs {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// Latest returns the most recent successful run, or nil.
func (a *Archive) Latest() *RunEntry {
	runs := a.Runs()
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Status == StatusComplete {
			return runs[i]
		}
	}
	return nil
}

// Object returns the bytes stored under the CID string id.
func (a *Archive) Object(id string) ([]byte, error) {
	parsed, err := ParseCID(id)
	if err != nil {
		return nil, err
	}
	return a.store.Get(parsed)
}

// Has reports whether the archive holds an object with the given CID.
func (a *Archive) Has(id cid.Cid) bool {
	return a.store.Has(id)
}

// Path returns the archive root directory.
func (a *Archive) Path() string {
	return a.path
}

func (a *Archive) findRunUnsafe(sourceCID, outputCID string) *RunEntry {
	for _, entry := range a.manifest.Runs {
		if entry.Status == StatusComplete && entry.SourceCID == sourceCID && entry.OutputCID == outputCID {
			return entry
		}
	}
	return nil
}

func (a *Archive) saveManifest() error {
	data, err := json.MarshalIndent(a.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(a.path, manifestFileName), data, 0o644)
}
