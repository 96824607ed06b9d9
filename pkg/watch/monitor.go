// Package watch polls the published Constitution page and reports when its
// content changes, so that amendments reach the structured document without
// scraping on a fixed schedule.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coolbeans/carta/pkg/archive"
	"github.com/coolbeans/carta/pkg/fetch"
)

// Status is the operational state of a monitor.
type Status string

const (
	// StatusActive indicates the page is checked on every tick.
	StatusActive Status = "active"

	// StatusPaused indicates ticks are skipped until Resume.
	StatusPaused Status = "paused"

	// StatusError indicates the last check failed.
	StatusError Status = "error"
)

// maxErrors bounds the error messages kept in StatusInfo.
const maxErrors = 10

// Fetcher retrieves the monitored page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Change describes a new version of the page.
type Change struct {
	URL string
	// PreviousCID is empty on the first check of a monitor without a
	// baseline.
	PreviousCID string
	CID         string
	Page        *fetch.Page
	DetectedAt  time.Time
}

// StatusInfo reports the state of the monitor.
type StatusInfo struct {
	URL       string    `json:"url"`
	Status    Status    `json:"status"`
	LastCheck time.Time `json:"last_check"`
	NextCheck time.Time `json:"next_check"`
	Checks    int       `json:"checks"`
	Changes   int       `json:"changes"`
	LastCID   string    `json:"last_cid,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
}

// Monitor checks one page at a fixed interval and notifies callbacks when
// the content identifier of its body changes.
type Monitor struct {
	fetcher  Fetcher
	url      string
	interval time.Duration
	logger   *slog.Logger

	statusMu sync.RWMutex
	status   StatusInfo

	callbackMu sync.RWMutex
	callbacks  []func(context.Context, Change) error

	runningMu sync.Mutex
	running   bool
}

// NewMonitor creates a monitor of url. A nil logger discards log output.
func NewMonitor(fetcher Fetcher, url string, interval time.Duration, logger *slog.Logger) (*Monitor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		fetcher:  fetcher,
		url:      url,
		interval: interval,
		logger:   logger,
		status:   StatusInfo{URL: url, Status: StatusActive},
	}, nil
}

// SetBaseline sets the content identifier of the last known version, such as
// the source of the latest archived run.
func (m *Monitor) SetBaseline(cid string) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status.LastCID = cid
}

// OnChange registers a callback for new versions. Callbacks run in
// registration order on the monitor goroutine.
func (m *Monitor) OnChange(callback func(context.Context, Change) error) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// CheckNow fetches the page once. It returns the change, or nil when the
// content is the same as the last version seen. Callbacks are notified.
func (m *Monitor) CheckNow(ctx context.Context) (*Change, error) {
	page, err := m.fetcher.Fetch(ctx, m.url)
	if err != nil {
		m.recordError(err)
		return nil, err
	}
	id, err := archive.CIDOf(page.Body)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	now := time.Now().UTC()
	m.statusMu.Lock()
	previous := m.status.LastCID
	m.status.Checks++
	m.status.LastCheck = now
	m.status.NextCheck = now.Add(m.interval)
	if m.status.Status == StatusError {
		m.status.Status = StatusActive
	}
	changed := previous != id.String()
	if changed {
		m.status.LastCID = id.String()
		m.status.Changes++
	}
	m.statusMu.Unlock()

	if !changed {
		m.logger.Debug("page unchanged", "url", m.url, "cid", previous)
		return nil, nil
	}

	change := Change{URL: m.url, PreviousCID: previous, CID: id.String(), Page: page, DetectedAt: now}
	m.logger.Info("page changed", "url", m.url, "previous_cid", previous, "cid", change.CID)
	m.notify(ctx, change)
	return &change, nil
}

// Run checks the page immediately and then on every tick until ctx ends.
// Check failures are recorded in the status and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.runningMu.Lock()
	if m.running {
		m.runningMu.Unlock()
		return fmt.Errorf("monitor is already running")
	}
	m.running = true
	m.runningMu.Unlock()
	defer func() {
		m.runningMu.Lock()
		m.running = false
		m.runningMu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("watching page", "url", m.url, "interval", m.interval)
	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if m.Status().Status == StatusPaused {
				continue
			}
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	if _, err := m.CheckNow(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("page check failed", "url", m.url, "error", err)
	}
}

// Pause skips ticks until Resume. CheckNow still works.
func (m *Monitor) Pause() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status.Status = StatusPaused
}

// Resume undoes Pause.
func (m *Monitor) Resume() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if m.status.Status == StatusPaused {
		m.status.Status = StatusActive
	}
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() StatusInfo {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	info := m.status
	info.Errors = append([]string(nil), m.status.Errors...)
	return info
}

func (m *Monitor) notify(ctx context.Context, change Change) {
	m.callbackMu.RLock()
	callbacks := append([]func(context.Context, Change) error(nil), m.callbacks...)
	m.callbackMu.RUnlock()

	for _, callback := range callbacks {
		// A failing callback does not stop the others.
		if err := callback(ctx, change); err != nil {
			m.recordError(fmt.Errorf("callback: %w", err))
		}
	}
}

func (m *Monitor) recordError(err error) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	if m.status.Status != StatusPaused {
		m.status.Status = StatusError
	}
	m.status.Errors = append(m.status.Errors, err.Error())
	if len(m.status.Errors) > maxErrors {
		m.status.Errors = m.status.Errors[len(m.status.Errors)-maxErrors:]
	}
}
