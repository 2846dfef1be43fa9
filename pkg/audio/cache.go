package audio

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// hashKeyLength is the number of hex characters kept from the URL hash
// when a key cannot be derived from the URL's filename.
const hashKeyLength = 16

// Store maps clip URLs to files in a single flat cache directory.
//
// There is no manifest: a key is considered cached when a non-empty file
// exists at its derived path. This keeps the cache resumable across process
// restarts and requires no locking for reads.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed and returns a store for it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}
	log.Debug("audio cache ready", "dir", dir)
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Key converts a URL to a cache key. The last URL path segment is used
// directly when it looks like a filename (contains a dot); otherwise the
// key is a truncated hash of the full URL with an mp3 extension. Identical
// URLs always derive identical keys.
func (s *Store) Key(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name := path.Base(u.Path)
		if name != "." && name != "/" && strings.Contains(name, ".") {
			return name
		}
	}
	sum := md5.Sum([]byte(rawURL)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:hashKeyLength] + ".mp3"
}

// Path returns the absolute cache path a URL maps to, cached or not.
func (s *Store) Path(rawURL string) string {
	return filepath.Join(s.dir, s.Key(rawURL))
}

// CachedPath returns the local path for a URL if a non-empty cached file
// exists. It never touches the network.
func (s *Store) CachedPath(rawURL string) (string, bool) {
	p := s.Path(rawURL)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return p, true
}

// Clear deletes all cached clip files, best effort per file. It returns the
// number of files deleted and the bytes freed.
func (s *Store) Clear() (int, int64) {
	var deleted int
	var freed int64

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn("unable to read cache directory", "dir", s.dir, "err", err)
		return 0, 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Warn("unable to delete cached clip", "file", entry.Name(), "err", err)
			continue
		}
		deleted++
		freed += info.Size()
	}

	log.Info("audio cache cleared", "files", deleted, "bytes", freed)
	return deleted, freed
}

// Stats returns the number of cached clip files and their total size.
func (s *Store) Stats() (int, int64) {
	var count int
	var total int64

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		total += info.Size()
	}
	return count, total
}
