package audio

// Listener receives lifecycle notifications from a Handler. Methods are
// invoked from worker and playback goroutines; implementations must be
// safe for concurrent use and must not block for long. Panics in a
// listener are contained and logged.
type Listener interface {
	// DownloadStarted fires as soon as the item is accepted, before a
	// worker picks it up.
	DownloadStarted(item Item)
	// DownloadCompleted fires after a successful download, before the clip
	// is handed to the playback queue.
	DownloadCompleted(item Item, result DownloadResult)
	// DownloadFailed fires when the download failed, or when the clip
	// could never play (missing file, no player, spawn failure). The item
	// is terminal: no further events fire for it.
	DownloadFailed(item Item, err error)
	// PlaybackStarted fires when the item's subprocess is about to spawn.
	PlaybackStarted(item Item)
	// PlaybackCompleted fires when the item's subprocess exited or was
	// skipped. It does not fire for items dropped by Stop.
	PlaybackCompleted(item Item)
	// StateChanged fires on every player state transition.
	StateChanged(state PlayerState)
}

// NopListener is a Listener that ignores every event. Embed it to
// implement only the events of interest.
type NopListener struct{}

func (NopListener) DownloadStarted(Item)                   {}
func (NopListener) DownloadCompleted(Item, DownloadResult) {}
func (NopListener) DownloadFailed(Item, error)             {}
func (NopListener) PlaybackStarted(Item)                   {}
func (NopListener) PlaybackCompleted(Item)                 {}
func (NopListener) StateChanged(PlayerState)               {}

var _ Listener = NopListener{}
