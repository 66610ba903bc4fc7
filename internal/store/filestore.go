// Package store persists scan result rows as flat per-(date, symbol)
// JSON files. The file layout is the contract downstream export and
// reporting consumers rely on; an existing entry for today is the
// orchestrator's idempotent skip condition.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore stores rows under baseDir/{date}/{symbol}.json.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a store rooted at baseDir (e.g. data/momentum).
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (fs *FileStore) dirPath(date string) string {
	return filepath.Join(fs.baseDir, date)
}

func (fs *FileStore) filePath(date, symbol string) string {
	return filepath.Join(fs.dirPath(date), symbol+".json")
}

// Exists reports whether an entry for (date, symbol) is already cached.
func (fs *FileStore) Exists(date, symbol string) bool {
	_, err := os.Stat(fs.filePath(date, symbol))
	return err == nil
}

// Save writes the row, creating the date directory when needed. A row
// is written at most once per (date, symbol) per run; re-saving
// overwrites atomically via a temp file rename.
func (fs *FileStore) Save(date, symbol string, row any) error {
	if err := os.MkdirAll(fs.dirPath(date), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal row for %s: %w", symbol, err)
	}

	path := fs.filePath(date, symbol)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize cache entry: %w", err)
	}
	return nil
}

// Load reads a cached row into dst, returning false when no entry
// exists for (date, symbol).
func (fs *FileStore) Load(date, symbol string, dst any) (bool, error) {
	data, err := os.ReadFile(fs.filePath(date, symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read cache entry: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cache entry for %s: %w", symbol, err)
	}
	return true, nil
}

// ListSymbols returns the sorted symbols cached for the date, empty
// when the date directory does not exist.
func (fs *FileStore) ListSymbols(date string) []string {
	entries, err := os.ReadDir(fs.dirPath(date))
	if err != nil {
		return nil
	}
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(symbols)
	return symbols
}
