// Package snapshot creates and restores point-in-time copies of the SQLite
// resolution store, so an operator can save entity and alignment state
// before a bulk realignment and roll back if it goes wrong.
package snapshot

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const filePrefix = "cognate-"

// Create writes a consistent snapshot of the store at dbPath into dir and
// returns the snapshot path. VACUUM INTO produces a point-in-time copy that
// is safe under WAL mode with concurrent readers.
func Create(dbPath, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("snapshot: failed to create directory %s: %w", dir, err)
	}

	name := filePrefix + time.Now().UTC().Format("20060102-150405") + ".db"
	dest := filepath.Join(dir, name)

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return "", fmt.Errorf("snapshot: failed to open store %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return "", fmt.Errorf("snapshot: store %s is not readable: %w", dbPath, err)
	}
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return "", fmt.Errorf("snapshot: vacuum into %s failed: %w", dest, err)
	}

	if err := Verify(dest); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// Verify runs SQLite's integrity check against a snapshot file.
func Verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("snapshot: failed to open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("snapshot: integrity check of %s failed: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot: %s is corrupt: %s", path, result)
	}
	return nil
}

// Restore copies a verified snapshot over the store at dbPath. The store
// must not be open while restoring.
func Restore(snapshotPath, dbPath string) error {
	if err := Verify(snapshotPath); err != nil {
		return err
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("snapshot: failed to open %s: %w", snapshotPath, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dbPath)
	if err != nil {
		return fmt.Errorf("snapshot: failed to create %s: %w", dbPath, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("snapshot: failed to copy %s: %w", snapshotPath, err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("snapshot: failed to sync %s: %w", dbPath, err)
	}

	return Verify(dbPath)
}

// List returns the snapshot files in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, ".db") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Prune deletes all but the keep newest snapshots in dir and returns how
// many were removed.
func Prune(dir string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	paths, err := List(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths[min(keep, len(paths)):] {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("snapshot: failed to remove %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
