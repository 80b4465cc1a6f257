package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the file-backed transaction store, sync-state ledger and global
// cursor. Layout under baseDir:
//
//	transactions/<accountId>/<year>/<month>.json
//	sync/<accountId>/<syncId>.json
//	cursor.json
//
// Every write goes to a temporary sibling file followed by an atomic rename,
// so a reader never observes a partially-written file and a crash between
// the two steps leaves the prior version intact. The read-modify-write
// merge in AppendTransactions is serialized per partition with an
// in-process mutex; concurrent writers from separate processes need an
// external lock, which this service never creates (single process by
// design).
type Store struct {
	baseDir string

	mu        sync.Mutex
	partLocks map[string]*sync.Mutex
}

// New opens a store rooted at baseDir, creating the directory tree as needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "transactions"), 0o755); err != nil {
		return nil, fmt.Errorf("create transactions dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "sync"), 0o755); err != nil {
		return nil, fmt.Errorf("create sync dir: %w", err)
	}
	return &Store{
		baseDir:   baseDir,
		partLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) partitionPath(accountID string, year int, month int) string {
	return filepath.Join(s.baseDir, "transactions", accountID, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d.json", month))
}

func (s *Store) syncStatePath(accountID, syncID string) string {
	return filepath.Join(s.baseDir, "sync", accountID, syncID+".json")
}

func (s *Store) cursorPath() string {
	return filepath.Join(s.baseDir, "cursor.json")
}

// partitionLock returns the mutex guarding one partition's
// read-modify-write cycle, creating it on first use.
func (s *Store) partitionLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.partLocks[key] = l
	}
	return l
}

// writeFileAtomic writes data to path via a temporary sibling file and an
// atomic rename. The temp file is fsynced before the rename so the new
// content is durable once the rename lands.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}
