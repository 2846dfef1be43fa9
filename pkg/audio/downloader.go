package audio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// DefaultDownloadTimeout bounds a single download attempt.
const DefaultDownloadTimeout = 30 * time.Second

// DownloadResult is the immutable outcome of a single download attempt.
// Failures are carried in Err; nothing panics across this boundary.
type DownloadResult struct {
	Success   bool
	FilePath  string
	Cached    bool
	SizeBytes int64
	Err       error
}

// Downloader fetches clips over HTTP into the cache store. A nil client
// gets a default one with DefaultDownloadTimeout.
type Downloader struct {
	store  *Store
	client *http.Client
}

// NewDownloader returns a downloader writing into store.
func NewDownloader(store *Store, client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	return &Downloader{store: store, client: client}
}

// Download fetches a clip, serving it from the cache when possible. With
// force set, the cached copy is ignored and overwritten.
//
// Concurrent downloads of the same URL are unguarded: both callers may miss
// the cache and write the same destination file. Last writer wins; the
// content is identical either way.
func (d *Downloader) Download(rawURL string, force bool) DownloadResult {
	if rawURL == "" {
		return DownloadResult{Err: ErrEmptyURL}
	}

	if !force {
		if p, ok := d.store.CachedPath(rawURL); ok {
			info, err := os.Stat(p)
			if err == nil {
				log.Debug("cache hit", "key", filepath.Base(p))
				return DownloadResult{
					Success:   true,
					FilePath:  p,
					Cached:    true,
					SizeBytes: info.Size(),
				}
			}
		}
	}

	log.Info("downloading clip", "url", rawURL)

	resp, err := d.client.Get(rawURL)
	if err != nil {
		if isTimeout(err) {
			return DownloadResult{Err: fmt.Errorf("%w after %v: %s", ErrDownloadTimeout, d.client.Timeout, rawURL)}
		}
		return DownloadResult{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DownloadResult{Err: fmt.Errorf("%w %d: %s", ErrHTTPStatus, resp.StatusCode, rawURL)}
	}

	dest := d.store.Path(rawURL)
	f, err := os.Create(dest)
	if err != nil {
		return DownloadResult{Err: fmt.Errorf("%w: %v", ErrCacheWrite, err)}
	}

	n, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		// A partial file would pass the non-empty validity check, so drop it.
		_ = os.Remove(dest)
		if isTimeout(err) {
			return DownloadResult{Err: fmt.Errorf("%w after %v: %s", ErrDownloadTimeout, d.client.Timeout, rawURL)}
		}
		return DownloadResult{Err: fmt.Errorf("%w: %v", ErrCacheWrite, err)}
	}

	log.Info("downloaded clip", "key", filepath.Base(dest), "size", humanize.Bytes(uint64(n))) //nolint:gosec
	return DownloadResult{
		Success:   true,
		FilePath:  dest,
		SizeBytes: n,
	}
}

// isTimeout reports whether an HTTP client error was a timeout.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}
