// Package audio implements the acquisition and playback pipeline for
// decoded voice clips: a flat on-disk cache, an HTTP downloader, an
// external-player playback engine, and a handler that ties them together
// behind a small concurrent API.
package audio

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// jobQueueDepth is the buffer of the download job channel. Submissions
// beyond it are handed off on a spare goroutine so QueueClip never blocks.
const jobQueueDepth = 64

// Metadata describes the transmission a clip was decoded from. All fields
// are optional display context.
type Metadata struct {
	Station   string
	Frequency string
	Message   string
}

// Item is one clip moving through the pipeline, identified by a unique ID
// assigned at submission. An item stays pending from submission until its
// playback completes or it is dropped.
type Item struct {
	ID   string
	URL  string
	Meta Metadata
}

// Handler orchestrates the pipeline: it runs a bounded pool of download
// workers and feeds finished clips to the playback engine in download
// completion order. All notification methods of the listener are driven
// from worker and playback goroutines.
type Handler struct {
	downloader *Downloader
	engine     *Engine
	cfg        Config
	listener   Listener

	jobs   chan Item
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  map[string]Item
	started  bool
	shutdown bool
}

// NewHandler builds the full pipeline from cfg: cache store, downloader,
// playback engine, and worker pool. The listener may be nil.
func NewHandler(cfg Config, listener Listener) (*Handler, error) {
	cfg = cfg.withDefaults()

	store, err := NewStore(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	downloader := NewDownloader(store, &http.Client{Timeout: cfg.Timeout})
	engine := NewEngine(cfg)

	return newHandler(cfg, listener, downloader, engine), nil
}

func newHandler(cfg Config, listener Listener, downloader *Downloader, engine *Engine) *Handler {
	h := &Handler{
		downloader: downloader,
		engine:     engine,
		cfg:        cfg,
		listener:   listener,
		jobs:       make(chan Item, jobQueueDepth),
		stopCh:     make(chan struct{}),
		pending:    make(map[string]Item),
	}
	engine.OnStateChange(func(s PlayerState) {
		h.notify(func(l Listener) { l.StateChanged(s) })
	})
	return h
}

// Engine returns the playback engine.
func (h *Handler) Engine() *Engine {
	return h.engine
}

// Start launches the download workers. It is idempotent; QueueClip also
// starts the pool lazily on first submission.
func (h *Handler) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startLocked()
}

func (h *Handler) startLocked() {
	if h.started || h.shutdown {
		return
	}
	h.started = true
	log.Debug("starting download workers", "workers", h.cfg.Workers)
	for i := 0; i < h.cfg.Workers; i++ {
		h.wg.Add(1)
		go h.worker(i)
	}
}

// QueueClip submits a clip URL for download and eventual playback. The
// item is pending from this moment until its playback completes or it is
// dropped. QueueClip never blocks on a full worker pool; after Shutdown it
// returns ErrShutdown.
func (h *Handler) QueueClip(rawURL string, meta Metadata) (Item, error) {
	if rawURL == "" {
		return Item{}, ErrEmptyURL
	}

	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return Item{}, ErrShutdown
	}
	item := Item{ID: uuid.NewString(), URL: rawURL, Meta: meta}
	h.pending[item.ID] = item
	h.startLocked()
	h.mu.Unlock()

	h.notify(func(l Listener) { l.DownloadStarted(item) })

	select {
	case h.jobs <- item:
	default:
		go func() {
			select {
			case h.jobs <- item:
			case <-h.stopCh:
			}
		}()
	}

	log.Debug("clip queued", "url", rawURL, "station", meta.Station)
	return item, nil
}

// PendingCount returns the number of items accepted but not yet fully
// played or abandoned.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Pending returns a snapshot of the pending items.
func (h *Handler) Pending() []Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	items := make([]Item, 0, len(h.pending))
	for _, it := range h.pending {
		items = append(items, it)
	}
	return items
}

// Stop discards all pending items, stops playback, and clears the play
// queue. Downloads already in flight run to completion so the cache stays
// warm, but their clips are not played because their pending records are
// gone. The handler keeps accepting new clips afterwards.
func (h *Handler) Stop() {
	h.mu.Lock()
	dropped := len(h.pending)
	h.pending = make(map[string]Item)
	h.mu.Unlock()

	h.engine.Stop()
	log.Info("pipeline stopped", "dropped", dropped)
}

// Shutdown stops the pipeline for good: pending items are discarded, the
// workers are signalled to exit, and playback is stopped. It waits only a
// bounded time for the workers, so a download still on the wire does not
// hold up process exit.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return
	}
	h.shutdown = true
	h.pending = make(map[string]Item)
	h.mu.Unlock()

	close(h.stopCh)
	h.engine.Stop()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(h.cfg.LoopJoin):
		log.Warn("download workers did not exit in time")
	}

	log.Info("pipeline shut down")
}

// Play, Pause, Skip, SetVolume, Volume, QueueSize, and State forward to
// the playback engine.

func (h *Handler) Play()               { h.engine.Play() }
func (h *Handler) Pause()              { h.engine.Pause() }
func (h *Handler) Skip()               { h.engine.Skip() }
func (h *Handler) SetVolume(v float64) { h.engine.SetVolume(v) }
func (h *Handler) Volume() float64     { return h.engine.Volume() }
func (h *Handler) QueueSize() int      { return h.engine.QueueSize() }
func (h *Handler) State() PlayerState  { return h.engine.State() }

// IsPlaying reports whether a clip is actively playing.
func (h *Handler) IsPlaying() bool {
	return h.engine.State() == StatePlaying
}

// CacheStats returns the cached clip count and total size in bytes.
func (h *Handler) CacheStats() (int, int64) {
	return h.downloader.store.Stats()
}

// ClearCache deletes all cached clips, returning the number deleted and
// the bytes freed.
func (h *Handler) ClearCache() (int, int64) {
	return h.downloader.store.Clear()
}

func (h *Handler) worker(id int) {
	defer h.wg.Done()
	log.Debug("download worker started", "worker", id)
	for {
		select {
		case <-h.stopCh:
			log.Debug("download worker exiting", "worker", id)
			return
		case item := <-h.jobs:
			h.process(item)
		}
	}
}

// process runs one item through download and playback hand-off. Items
// dropped from the pending list by Stop are discarded.
func (h *Handler) process(item Item) {
	if !h.isPending(item.ID) {
		return
	}

	res := h.downloader.Download(item.URL, h.cfg.Force)
	if res.Err != nil {
		h.forget(item.ID)
		log.Error("download failed", "url", item.URL, "err", res.Err)
		h.notify(func(l Listener) { l.DownloadFailed(item, res.Err) })
		return
	}

	h.notify(func(l Listener) { l.DownloadCompleted(item, res) })

	if !h.isPending(item.ID) {
		log.Debug("discarding clip finished after stop", "url", item.URL)
		return
	}

	ok := h.engine.QueueFile(res.FilePath, Clip{
		OnStart: func() { h.notify(func(l Listener) { l.PlaybackStarted(item) }) },
		OnComplete: func() {
			h.forget(item.ID)
			h.notify(func(l Listener) { l.PlaybackCompleted(item) })
		},
		OnFailure: func(err error) {
			h.forget(item.ID)
			h.notify(func(l Listener) { l.DownloadFailed(item, err) })
		},
		Metadata: item.Meta.labels(),
	})
	if !ok {
		h.forget(item.ID)
		h.notify(func(l Listener) { l.DownloadFailed(item, ErrMissingFile) })
	}
}

func (h *Handler) isPending(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.pending[id]
	return ok
}

func (h *Handler) forget(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// notify invokes fn on the listener, containing panics so a misbehaving
// listener cannot kill a worker.
func (h *Handler) notify(fn func(Listener)) {
	l := h.listener
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked", "err", r)
		}
	}()
	fn(l)
}

// labels renders the metadata as display labels for the playback queue.
func (m Metadata) labels() map[string]string {
	labels := make(map[string]string, 3)
	if m.Station != "" {
		labels["station"] = m.Station
	}
	if m.Frequency != "" {
		labels["frequency"] = m.Frequency
	}
	if m.Message != "" {
		labels["message"] = m.Message
	}
	return labels
}
