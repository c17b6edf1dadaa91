// Package history persists TaskRunReports in a SoloDB journal
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	solodb "github.com/phillarmonic/SoloDB"

	"github.com/phillarmonic/pf/internal/engine/report"
)

const (
	// DefaultRetention is how long a run stays in the journal
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultLimit is the number of runs `pf history` lists
	DefaultLimit = 20

	indexKey  = "runs:index"
	runPrefix = "run:"
)

// ErrNotFound is returned by Get for an unknown or expired run
var ErrNotFound = errors.New("run not found")

// Journal records task runs with expiration
type Journal struct {
	mu        sync.Mutex
	db        *solodb.DB
	retention time.Duration
	disabled  bool
}

// Stats provides journal statistics
type Stats struct {
	Runs        int
	Keys        int
	FileBytes   int64
	LiveRecords int64
}

// Entry is the listing form of a recorded run.
type Entry struct {
	RunID    string
	Task     string
	Targets  []string
	Started  time.Time
	Duration time.Duration
	Success  bool
}

// DefaultPath returns ~/.pf/history.solo
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pf", "history.solo"), nil
}

// Open opens (creating if needed) the journal at path. A disabled journal
// accepts records and forgets them.
func Open(path string, retention time.Duration, disabled bool) (*Journal, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if disabled {
		return &Journal{disabled: true, retention: retention}, nil
	}

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := solodb.Open(solodb.Options{
		Path:       path,
		Durability: solodb.SyncBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Journal{db: db, retention: retention}, nil
}

// Record stores rep under its run ID and appends it to the index.
func (j *Journal) Record(rep *report.TaskRunReport) error {
	if j.disabled {
		return nil
	}
	if rep.RunID == "" {
		return errors.New("history: report has no run ID")
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("history encode error: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	expiry := time.Now().Add(j.retention)
	if err := j.db.SetBlob(runPrefix+rep.RunID, bytes.NewReader(data), int64(len(data)), expiry); err != nil {
		return fmt.Errorf("history write error: %w", err)
	}

	ids, err := j.index()
	if err != nil {
		return err
	}
	return j.writeIndex(append(ids, rep.RunID))
}

// Get returns the full report of one run. id may be a unique prefix.
func (j *Journal) Get(id string) (*report.TaskRunReport, error) {
	if j.disabled {
		return nil, ErrNotFound
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rep, err := j.load(id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return rep, err
	}

	ids, err := j.index()
	if err != nil {
		return nil, err
	}
	var match string
	for _, candidate := range ids {
		if strings.HasPrefix(candidate, id) {
			if match != "" {
				return nil, fmt.Errorf("run ID prefix %q is ambiguous", id)
			}
			match = candidate
		}
	}
	if match == "" {
		return nil, ErrNotFound
	}
	return j.load(match)
}

// List returns up to limit of the most recent runs, newest first.
// Expired runs are skipped.
func (j *Journal) List(limit int) ([]Entry, error) {
	if j.disabled {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	ids, err := j.index()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for i := len(ids) - 1; i >= 0 && len(entries) < limit; i-- {
		rep, err := j.load(ids[i])
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			RunID:    rep.RunID,
			Task:     rep.Task,
			Targets:  rep.Targets,
			Started:  rep.Started,
			Duration: rep.Duration,
			Success:  rep.Success,
		})
	}
	return entries, nil
}

// Prune drops expired runs from the index and compacts the database to
// reclaim disk space. It returns the number of runs dropped.
func (j *Journal) Prune() (int, error) {
	if j.disabled {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	ids, err := j.index()
	if err != nil {
		return 0, err
	}
	live := ids[:0:0]
	for _, id := range ids {
		_, err := j.load(id)
		switch {
		case err == nil:
			live = append(live, id)
		case errors.Is(err, ErrNotFound):
		default:
			return 0, err
		}
	}
	if err := j.writeIndex(live); err != nil {
		return 0, err
	}
	if err := j.db.Compact(); err != nil {
		return 0, fmt.Errorf("history compaction error: %w", err)
	}
	return len(ids) - len(live), nil
}

// Stats returns journal statistics
func (j *Journal) Stats() Stats {
	if j.disabled || j.db == nil {
		return Stats{}
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	ids, _ := j.index()
	dbStats := j.db.Stats()
	return Stats{
		Runs:        len(ids),
		Keys:        dbStats.Keys,
		FileBytes:   dbStats.FileBytes,
		LiveRecords: int64(dbStats.LiveRecords),
	}
}

// Close closes the history database
func (j *Journal) Close() error {
	if j.disabled || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) load(id string) (*report.TaskRunReport, error) {
	data, err := j.read(runPrefix + id)
	if err != nil {
		return nil, err
	}
	var rep report.TaskRunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("history decode error for run %s: %w", id, err)
	}
	return &rep, nil
}

func (j *Journal) read(key string) ([]byte, error) {
	rc, _, _, err := j.db.GetBlob(key)
	if err == solodb.ErrNotFound || err == solodb.ErrExpired {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history read error: %w", err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("history read error: %w", err)
	}
	return data, nil
}

// index returns the recorded run IDs, oldest first.
func (j *Journal) index() ([]string, error) {
	data, err := j.read(indexKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("history index is corrupt: %w", err)
	}
	return ids, nil
}

// writeIndex stores ids; the index outlives every run it names by one
// retention period.
func (j *Journal) writeIndex(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	expiry := time.Now().Add(2 * j.retention)
	if err := j.db.SetBlob(indexKey, bytes.NewReader(data), int64(len(data)), expiry); err != nil {
		return fmt.Errorf("history write error: %w", err)
	}
	return nil
}
