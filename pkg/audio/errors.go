package audio

import "errors"

// Common errors for the audio pipeline.
var (
	// Validation errors
	ErrEmptyURL    = errors.New("empty audio URL")
	ErrMissingFile = errors.New("audio file does not exist")

	// Download errors
	ErrDownloadTimeout = errors.New("download timeout")
	ErrHTTPStatus      = errors.New("unexpected HTTP status")
	ErrNetwork         = errors.New("download failed")
	ErrCacheWrite      = errors.New("failed to write cache file")

	// Playback errors
	ErrNoPlayer       = errors.New("no audio player available")
	ErrSpawn          = errors.New("failed to start audio player")
	ErrUnexpectedExit = errors.New("audio player exited abnormally")

	// Handler errors
	ErrShutdown = errors.New("audio handler has been shut down")
)
