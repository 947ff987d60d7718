// Package store holds the aggregator's authoritative capture state: one
// bounded error buffer, one bounded network buffer, and a last-update stamp.
// Every mutation persists the full snapshot to two file locations so either
// reflects the latest state without an explicit flush.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"webtap/internal/buffer"
	"webtap/internal/logger"
	"webtap/pkg/model"
)

const stateFileName = "debug-events.json"

// Config wires a Store.
type Config struct {
	ConsoleCap   int
	NetworkCap   int
	DedupWindow  time.Duration
	DedupPrefix  int
	SummaryLimit int
	// Paths are the snapshot locations. Empty means DefaultPaths().
	Paths   []string
	Archive *Archive
	Logger  logger.Logger
}

// Store is mutated only by its owning process; the persisted files are
// overwritten wholesale and safe to delete at any time.
type Store struct {
	mu           sync.Mutex
	errors       *buffer.Buffer
	network      *buffer.Buffer
	lastUpdate   time.Time
	paths        []string
	archive      *Archive
	log          logger.Logger
	summaryLimit int
}

// State is the persisted snapshot shape.
type State struct {
	Errors     []model.DebugEvent `json:"errors"`
	Network    []model.DebugEvent `json:"network"`
	LastUpdate string             `json:"lastUpdate"`
}

// DefaultPaths returns the two snapshot locations: a fixed per-user path and
// one relative to the invoking working directory.
func DefaultPaths() []string {
	paths := []string{filepath.Join(".webtap", stateFileName)}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append([]string{filepath.Join(dir, "webtap", stateFileName)}, paths...)
	}
	return paths
}

// New creates an empty store and restores the previous snapshot if one of
// the paths holds it.
func New(cfg Config) *Store {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = DefaultPaths()
	}
	limit := cfg.SummaryLimit
	if limit <= 0 {
		limit = 10
	}
	opts := buffer.Options{
		ConsoleCap:  cfg.ConsoleCap,
		NetworkCap:  cfg.NetworkCap,
		DedupWindow: cfg.DedupWindow,
		DedupPrefix: cfg.DedupPrefix,
	}
	s := &Store{
		errors:       buffer.New(opts),
		network:      buffer.New(opts),
		paths:        paths,
		archive:      cfg.Archive,
		log:          l,
		summaryLimit: limit,
	}
	s.load()
	return s
}

// AddError appends one console-class event. Returns false for duplicates.
func (s *Store) AddError(ev model.DebugEvent) bool {
	if !s.errors.Append(ev) {
		return false
	}
	s.mutated(ev)
	return true
}

// AddNetwork appends one network-class event.
func (s *Store) AddNetwork(ev model.DebugEvent) bool {
	if !s.network.Append(ev) {
		return false
	}
	s.mutated(ev)
	return true
}

// Clear resets in-memory state and immediately persists the empty state.
// The sqlite archive is the long-term record and survives clears.
func (s *Store) Clear() {
	s.errors.Clear()
	s.network.Clear()
	s.mu.Lock()
	s.lastUpdate = time.Now()
	s.mu.Unlock()
	s.persist()
}

// Errors returns the error buffer in insertion order.
func (s *Store) Errors() []model.DebugEvent {
	return s.errors.Snapshot()
}

// Network returns the network buffer in insertion order.
func (s *Store) Network() []model.DebugEvent {
	return s.network.Snapshot()
}

// Data returns the full current state.
func (s *Store) Data() State {
	s.mu.Lock()
	last := s.lastUpdate
	s.mu.Unlock()
	return State{
		Errors:     nonNil(s.errors.Snapshot()),
		Network:    nonNil(s.network.Snapshot()),
		LastUpdate: last.UTC().Format(time.RFC3339),
	}
}

func nonNil(evs []model.DebugEvent) []model.DebugEvent {
	if evs == nil {
		return []model.DebugEvent{}
	}
	return evs
}

func (s *Store) mutated(ev model.DebugEvent) {
	s.mu.Lock()
	s.lastUpdate = time.Now()
	s.mu.Unlock()
	s.persist()
	if s.archive != nil {
		// Fire and forget; archive loss never blocks intake.
		go s.archive.Append(ev)
	}
}

// persist overwrites every snapshot location. Write failures are logged and
// ignored; the in-memory buffers remain queryable.
func (s *Store) persist() {
	state := s.Data()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.log.Warn("state encode failed", "error", err)
		return
	}
	for _, path := range s.paths {
		if err := writeFileAtomic(path, data); err != nil {
			s.log.Warn("state write failed", "path", path, "error", err)
		}
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// load restores the first readable snapshot.
func (s *Store) load() {
	for _, path := range s.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			s.log.Warn("state file unreadable, ignored", "path", path, "error", err)
			continue
		}
		s.errors.Restore(state.Errors)
		s.network.Restore(state.Network)
		if t, err := time.Parse(time.RFC3339, state.LastUpdate); err == nil {
			s.mu.Lock()
			s.lastUpdate = t
			s.mu.Unlock()
		}
		s.log.Info("restored persisted state", "path", path,
			"errors", len(state.Errors), "network", len(state.Network))
		return
	}
}

// Summary renders the bounded human-readable report: recent errors, recent
// network errors and failures, and recent requests with their resolved
// status. Slices are bounded; this is a report, not a dump.
func (s *Store) Summary() string {
	state := s.Data()
	n := s.summaryLimit

	var b []byte
	add := func(format string, args ...any) {
		b = append(b, fmt.Sprintf(format, args...)...)
	}
	add("webtap debug summary (%s)\n", state.LastUpdate)

	errs := tail(state.Errors, n)
	add("\nErrors (%d shown, %d buffered):\n", len(errs), len(state.Errors))
	if len(errs) == 0 {
		add("  none\n")
	}
	for i, ev := range errs {
		msg := ev.CleanedMessage
		if msg == "" {
			msg = ev.RawMessage
		}
		add("  %d. [%s] %s", i+1, ev.Kind, msg)
		if ev.OriginURL != "" {
			add(" (%s)", ev.OriginURL)
		}
		add("\n")
	}

	records := model.Correlate(state.Network)
	var failed, resolved []model.NetworkRequestRecord
	for _, r := range records {
		if r.Failed() {
			failed = append(failed, r)
		}
		if r.Request != nil {
			resolved = append(resolved, r)
		}
	}

	failedShown := tailRecords(failed, n)
	add("\nNetwork errors (%d shown, %d total):\n", len(failedShown), len(failed))
	if len(failedShown) == 0 {
		add("  none\n")
	}
	for i, r := range failedShown {
		if r.Failure != nil {
			add("  %d. FAILED %s (%s)\n", i+1, r.URL(), r.Failure.ErrorText)
			continue
		}
		add("  %d. %d %s %s\n", i+1, r.Status(), requestMethod(r), r.URL())
	}

	reqShown := tailRecords(resolved, n)
	add("\nRecent requests (%d shown, %d total):\n", len(reqShown), len(resolved))
	if len(reqShown) == 0 {
		add("  none\n")
	}
	for i, r := range reqShown {
		status := "pending"
		switch {
		case r.Failure != nil:
			status = "failed"
		case r.Response != nil:
			status = fmt.Sprintf("%d", r.Status())
		}
		add("  %d. %s %s -> %s\n", i+1, requestMethod(r), r.URL(), status)
	}
	return string(b)
}

func requestMethod(r model.NetworkRequestRecord) string {
	if r.Request != nil && r.Request.Method != "" {
		return r.Request.Method
	}
	return "GET"
}

func tail(evs []model.DebugEvent, n int) []model.DebugEvent {
	if len(evs) > n {
		return evs[len(evs)-n:]
	}
	return evs
}

func tailRecords(recs []model.NetworkRequestRecord, n int) []model.NetworkRequestRecord {
	if len(recs) > n {
		return recs[len(recs)-n:]
	}
	return recs
}
