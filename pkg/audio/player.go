package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// Clip carries the per-clip callbacks and display metadata for a queued
// file. Callbacks run on the playback goroutine and must not block for
// long. Exactly one of OnComplete or OnFailure fires per played clip,
// unless the clip was interrupted by Stop, in which case neither does.
type Clip struct {
	OnStart    func()
	OnComplete func()
	OnFailure  func(err error)
	Metadata   map[string]string
}

// queuedClip pairs a clip with its resolved file path.
type queuedClip struct {
	path string
	clip Clip
}

// Engine plays local audio files in FIFO order through an external player
// subprocess, one at a time. A single supervised background goroutine owns
// the queue head and the subprocess handle; other goroutines only signal it.
type Engine struct {
	profile Profile
	cfg     Config

	mu       sync.Mutex
	queue    []queuedClip
	running  bool
	stopSent bool
	stopCh   chan struct{}
	loopDone chan struct{}
	proc     *os.Process

	wake   chan struct{}
	skipCh chan struct{}

	stateMu sync.RWMutex
	state   PlayerState
	volume  float64

	onState func(PlayerState)
	onError func(error)
}

// NewEngine creates an engine, probing the host for a player binary unless
// cfg.Player names one explicitly.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	var profile Profile
	if cfg.Player != "" {
		profile = ProfileFor(cfg.Player)
	} else {
		profile = DetectProfile()
	}
	return NewEngineWithProfile(cfg, profile)
}

// NewEngineWithProfile creates an engine driving the given player profile.
func NewEngineWithProfile(cfg Config, profile Profile) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		profile: profile,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		skipCh:  make(chan struct{}, 1),
		state:   StateIdle,
		volume:  clampVolume(cfg.Volume),
	}
	if profile.Available() {
		log.Info("playback engine ready", "player", profile.Name, "volume", e.volume)
	} else {
		log.Error("playback engine has no audio player; playback will fail")
	}
	return e
}

// OnStateChange registers a callback invoked on every state transition.
func (e *Engine) OnStateChange(fn func(PlayerState)) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.onState = fn
}

// OnError registers a callback for playback errors. Errors do not stop the
// loop; it continues with the next queued clip.
func (e *Engine) OnError(fn func(error)) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.onError = fn
}

// QueueFile enqueues a local file for playback and lazily starts the
// playback loop. It returns false when the file does not exist.
func (e *Engine) QueueFile(path string, clip Clip) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		log.Error("file not found", "path", path)
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	e.mu.Lock()
	e.queue = append(e.queue, queuedClip{path: abs, clip: clip})
	size := len(e.queue)
	e.ensureLoopLocked()
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}

	log.Debug("queued clip", "file", filepath.Base(abs), "queue", size)
	return true
}

// QueueSize returns the number of clips waiting to play.
func (e *Engine) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// State returns the current player state.
func (e *Engine) State() PlayerState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Play resumes reported playback after a Pause. Advisory only: the
// subprocess was never suspended, so this just flips the state back.
func (e *Engine) Play() {
	if e.State().CanResume() {
		e.setState(StatePlaying)
		log.Info("playback resumed (subprocess was never suspended)")
	}
}

// Pause marks playback as paused. Advisory only: the external player has no
// pause control, so the subprocess keeps producing audio.
func (e *Engine) Pause() {
	if e.State().CanPause() {
		e.setState(StatePaused)
		log.Info("playback paused (subprocess continues)")
	}
}

// Skip terminates the current subprocess only; the loop advances to the
// next queued clip.
func (e *Engine) Skip() {
	e.mu.Lock()
	active := e.proc != nil
	e.mu.Unlock()
	if !active {
		return
	}
	log.Info("skipping current clip")
	select {
	case e.skipCh <- struct{}{}:
	default:
	}
}

// Stop terminates the active subprocess, drains the queue without firing
// the dropped clips' callbacks, and waits a bounded time for the playback
// loop to exit. The engine always ends up Idle with an empty queue.
func (e *Engine) Stop() {
	log.Info("stopping playback")

	e.mu.Lock()
	if !e.running {
		e.queue = nil
		e.mu.Unlock()
		e.setState(StateIdle)
		return
	}
	if !e.stopSent {
		e.stopSent = true
		close(e.stopCh)
	}
	done := e.loopDone
	e.mu.Unlock()

	e.setState(StateStopping)

	select {
	case <-done:
	case <-time.After(e.cfg.LoopJoin):
		log.Warn("player loop did not exit in time")
	}

	e.mu.Lock()
	dropped := len(e.queue)
	e.queue = nil
	e.mu.Unlock()
	if dropped > 0 {
		log.Debug("queue cleared", "dropped", dropped)
	}

	e.setState(StateIdle)
}

// SetVolume sets the playback volume, clamped to [0.0, 1.0]. It takes
// effect on the next spawned subprocess; a running player is unaffected.
func (e *Engine) SetVolume(v float64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.volume = clampVolume(v)
	log.Debug("volume set", "volume", e.volume)
}

// Volume returns the current playback volume.
func (e *Engine) Volume() float64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.volume
}

// Profile returns the player profile the engine was built with.
func (e *Engine) Profile() Profile {
	return e.profile
}

// ListDevices returns a single synthetic default device naming the
// detected player binary.
func (e *Engine) ListDevices() []Device {
	name := e.profile.Name
	if name == "" {
		name = "none"
	}
	return []Device{{Index: 0, Name: "Default (" + name + ")", Default: true}}
}

// ensureLoopLocked starts the playback loop unless it is already running.
// Callers must hold e.mu.
func (e *Engine) ensureLoopLocked() {
	if e.running {
		return
	}
	e.running = true
	e.stopSent = false
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	go e.loop(e.stopCh, e.loopDone)
}

// loop is the playback loop. It runs on its own goroutine until the stop
// channel closes, staying warm between clips.
func (e *Engine) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	log.Debug("player loop started")
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.setState(StateIdle)
		log.Debug("player loop exited")
		close(done)
	}()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		qc, ok := e.dequeue()
		if !ok {
			e.setState(StateIdle)
			select {
			case <-stopCh:
				return
			case <-e.wake:
			case <-time.After(e.cfg.QueuePoll):
			}
			continue
		}

		e.playFile(qc, stopCh)
	}
}

// dequeue pops the head of the queue.
func (e *Engine) dequeue() (queuedClip, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return queuedClip{}, false
	}
	qc := e.queue[0]
	e.queue = e.queue[1:]
	return qc, true
}

// playFile plays one clip to completion, watching for stop and skip
// requests at sub-second granularity. OnComplete is suppressed when the
// clip was interrupted by Stop.
func (e *Engine) playFile(qc queuedClip, stopCh <-chan struct{}) {
	log.Info("playing clip", "file", filepath.Base(qc.path))

	safeCall("on_start", qc.clip.OnStart)
	e.setState(StatePlaying)

	if !e.profile.Available() {
		e.failClip(qc.clip, ErrNoPlayer)
		return
	}

	argv := e.profile.Command(qc.path, e.Volume())
	log.Debug("spawning player", "cmd", strings.Join(argv, " "))

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	// stdout/stderr deliberately discarded
	if err := cmd.Start(); err != nil {
		e.failClip(qc.clip, fmt.Errorf("%w: %v", ErrSpawn, err))
		return
	}
	e.setProc(cmd.Process)

	// Drop any skip request left over from a previous clip.
	select {
	case <-e.skipCh:
	default:
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var werr error
	var interrupted, skipped bool
wait:
	for {
		select {
		case werr = <-waitCh:
			break wait
		case <-stopCh:
			interrupted = true
			werr = e.terminate(cmd, waitCh)
			break wait
		case <-e.skipCh:
			skipped = true
			werr = e.terminate(cmd, waitCh)
			break wait
		case <-time.After(e.cfg.ProcessPoll):
		}
	}
	e.setProc(nil)

	if werr != nil && !interrupted && !skipped {
		e.emitError(fmt.Errorf("%w: %v", ErrUnexpectedExit, werr))
	}

	log.Debug("finished clip", "file", filepath.Base(qc.path))
	if !interrupted {
		safeCall("on_complete", qc.clip.OnComplete)
	}
}

// terminate asks the subprocess to exit, force-killing it after the grace
// period, and waits for the exit to be observed.
func (e *Engine) terminate(cmd *exec.Cmd, waitCh <-chan error) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case err := <-waitCh:
		return err
	case <-time.After(e.cfg.StopGrace):
	}
	_ = cmd.Process.Kill()
	return <-waitCh
}

// setProc records the active subprocess handle. Other goroutines never
// touch the handle directly; they signal through stop/skip channels.
func (e *Engine) setProc(p *os.Process) {
	e.mu.Lock()
	e.proc = p
	e.mu.Unlock()
}

// setState updates the reported state and notifies the state callback.
// Transitions outside the legal table are applied but logged loudly.
func (e *Engine) setState(s PlayerState) {
	e.stateMu.Lock()
	old := e.state
	e.state = s
	fn := e.onState
	e.stateMu.Unlock()

	if old != s {
		if !canTransition(old, s) {
			log.Warn("unexpected player state transition", "from", old, "to", s)
		}
		log.Debug("player state", "from", old, "to", s)
		if fn != nil {
			safeCall("on_state_change", func() { fn(s) })
		}
	}
}

// failClip reports a clip that never produced audio: the error callback
// fires and the clip's OnFailure settles its bookkeeping, so a clip is
// never silently dropped.
func (e *Engine) failClip(c Clip, err error) {
	e.emitError(err)
	if c.OnFailure != nil {
		safeCall("on_failure", func() { c.OnFailure(err) })
	}
}

// emitError logs a playback error and forwards it to the error callback.
func (e *Engine) emitError(err error) {
	log.Error("playback error", "err", err)
	e.stateMu.RLock()
	fn := e.onError
	e.stateMu.RUnlock()
	if fn != nil {
		safeCall("on_error", func() { fn(err) })
	}
}

// safeCall invokes a caller-supplied callback, containing panics so they
// never cross the playback goroutine boundary.
func safeCall(name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("callback panicked", "callback", name, "err", r)
		}
	}()
	fn()
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
