package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// fileEntry 缓存文件中的一条记录
type fileEntry struct {
	Hash        string    `json:"hash"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

type cacheFile struct {
	Version string      `json:"version"`
	Entries []fileEntry `json:"entries"`
}

// FileStore 是以 JSON 文件持久化的缓存，启动时加载，Flush/Close 时写回。
type FileStore struct {
	path    string
	mu      sync.RWMutex
	entries map[string]fileEntry
	dirty   bool
}

// OpenFileStore loads path if it exists; a missing file starts empty.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string]fileEntry)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}
	for _, e := range f.Entries {
		s.entries[e.Hash] = e
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.Translation, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.Translation == value {
		return nil
	}
	s.entries[key] = fileEntry{Hash: key, Translation: value, CreatedAt: time.Now().UTC()}
	s.dirty = true
	return nil
}

// Flush writes the cache file when it has unsaved entries.
// Entries are sorted by hash so the file is stable across runs.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	entries := make([]fileEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })

	data, err := json.MarshalIndent(cacheFile{Version: "1.0", Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FileStore) Close() error {
	return s.Flush()
}
