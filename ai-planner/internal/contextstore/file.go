package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

const (
	headFile   = "head.seq"
	planPrefix = "plan_"
	planSuffix = ".json"
)

// FileStore keeps one JSON file per plan plus a head.seq file holding the last
// assigned key, so keys survive restarts and are never reused.
type FileStore struct {
	dir     string
	mu      sync.RWMutex
	lastKey models.ContextKey
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plan dir: %w", err)
	}
	f := &FileStore{dir: dir}
	last, err := f.readHead()
	if err != nil {
		return nil, err
	}
	f.lastKey = last
	return f, nil
}

func (f *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(f.dir); err != nil {
		return fmt.Errorf("plan dir: %w", err)
	}
	return nil
}

func (f *FileStore) Store(ctx context.Context, rec models.PlanRecord) (models.ContextKey, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal plan record: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.lastKey + 1
	// reserve the key before the record becomes visible; a failed write burns it
	if err := writeAtomic(filepath.Join(f.dir, headFile), []byte(strconv.FormatUint(uint64(key), 10))); err != nil {
		return 0, fmt.Errorf("write head: %w", err)
	}
	f.lastKey = key
	if err := writeAtomic(f.path(key), b); err != nil {
		return 0, fmt.Errorf("write plan record: %w", err)
	}
	return key, nil
}

func (f *FileStore) Retrieve(ctx context.Context, key models.ContextKey) (models.PlanRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(key)
}

func (f *FileStore) Recent(ctx context.Context, limit int) ([]models.StoredPlan, error) {
	if limit <= 0 {
		return []models.StoredPlan{}, nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys, err := f.keys()
	if err != nil {
		return nil, err
	}
	out := make([]models.StoredPlan, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		rec, err := f.read(keys[i])
		if err != nil {
			return nil, err
		}
		out = append(out, models.StoredPlan{Key: keys[i], Record: rec})
	}
	return out, nil
}

func (f *FileStore) Purge(ctx context.Context, policy RetentionPolicy) (int, error) {
	if !policy.Enabled() {
		return 0, nil
	}
	cutoff, byAge := policy.cutoff()
	f.mu.Lock()
	defer f.mu.Unlock()
	keys, err := f.keys()
	if err != nil {
		return 0, err
	}
	removed := 0
	for i, key := range keys {
		newer := len(keys) - i
		drop := policy.MaxRecords > 0 && newer > policy.MaxRecords
		if !drop && byAge {
			rec, err := f.read(key)
			if err != nil {
				return removed, err
			}
			drop = rec.CreatedAt.Before(cutoff)
		}
		if !drop {
			continue
		}
		if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove plan %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

func (f *FileStore) path(key models.ContextKey) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s%d%s", planPrefix, uint64(key), planSuffix))
}

func (f *FileStore) read(key models.ContextKey) (models.PlanRecord, error) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.PlanRecord{}, ErrNotFound
		}
		return models.PlanRecord{}, fmt.Errorf("read plan %s: %w", key, err)
	}
	var rec models.PlanRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.PlanRecord{}, fmt.Errorf("decode plan %s: %w", key, err)
	}
	return rec, nil
}

// keys lists stored keys in ascending order.
func (f *FileStore) keys() ([]models.ContextKey, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list plan dir: %w", err)
	}
	keys := make([]models.ContextKey, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, planPrefix) || !strings.HasSuffix(name, planSuffix) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, planPrefix), planSuffix), 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, models.ContextKey(n))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (f *FileStore) readHead() (models.ContextKey, error) {
	b, err := os.ReadFile(filepath.Join(f.dir, headFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read head: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse head: %w", err)
	}
	return models.ContextKey(n), nil
}

// writeAtomic writes via a temp file and rename so readers never see a partial file.
func writeAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
