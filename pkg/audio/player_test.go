package audio

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testEngineConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		CacheDir:    t.TempDir(),
		QueuePoll:   10 * time.Millisecond,
		ProcessPoll: 10 * time.Millisecond,
		StopGrace:   200 * time.Millisecond,
		LoopJoin:    time.Second,
	}
}

// instantProfile plays clips through /bin/true, exiting immediately.
func instantProfile(t *testing.T) Profile {
	t.Helper()
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available in PATH")
	}
	return Profile{Name: "true", Binary: "true"}
}

// blockingProfile plays clips through tail -f, which runs until terminated.
func blockingProfile(t *testing.T) Profile {
	t.Helper()
	if _, err := exec.LookPath("tail"); err != nil {
		t.Skip("tail not available in PATH")
	}
	return Profile{Name: "tail", Binary: "tail", BaseArgs: []string{"-f"}}
}

func writeClip(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("clip bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngineQueueMissingFile(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), instantProfile(t))
	defer e.Stop()

	if e.QueueFile(filepath.Join(t.TempDir(), "nope.mp3"), Clip{}) {
		t.Error("QueueFile accepted a missing file")
	}
	if e.QueueSize() != 0 {
		t.Error("missing file ended up in the queue")
	}
}

func TestEnginePlaysQueuedClipsInOrder(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), instantProfile(t))
	defer e.Stop()

	var mu sync.Mutex
	var started, completed []string
	clipFor := func(name string) Clip {
		return Clip{
			OnStart: func() {
				mu.Lock()
				started = append(started, name)
				mu.Unlock()
			},
			OnComplete: func() {
				mu.Lock()
				completed = append(completed, name)
				mu.Unlock()
			},
		}
	}

	for _, name := range []string{"a", "b", "c"} {
		if !e.QueueFile(writeClip(t, name+".mp3"), clipFor(name)) {
			t.Fatal("QueueFile rejected an existing file")
		}
	}

	waitFor(t, 5*time.Second, "all clips to complete", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 3
	})

	mu.Lock()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(started, want) {
		t.Errorf("start order = %v, want %v", started, want)
	}
	if !reflect.DeepEqual(completed, want) {
		t.Errorf("completion order = %v, want %v", completed, want)
	}
	mu.Unlock()

	waitFor(t, time.Second, "engine to go idle", func() bool {
		return e.State() == StateIdle && e.QueueSize() == 0
	})
}

func TestEngineStopInterruptsAndDrains(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), blockingProfile(t))

	var completed atomic.Int32
	clip := Clip{OnComplete: func() { completed.Add(1) }}

	e.QueueFile(writeClip(t, "one.mp3"), clip)
	e.QueueFile(writeClip(t, "two.mp3"), clip)

	waitFor(t, 3*time.Second, "playback to start", func() bool {
		return e.State() == StatePlaying
	})

	begin := time.Now()
	e.Stop()
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("Stop took %v, want bounded by the loop join budget", elapsed)
	}

	if e.State() != StateIdle {
		t.Errorf("state after Stop = %v, want idle", e.State())
	}
	if e.QueueSize() != 0 {
		t.Errorf("queue size after Stop = %d, want 0", e.QueueSize())
	}
	if n := completed.Load(); n != 0 {
		t.Errorf("%d interrupted clips fired OnComplete", n)
	}
}

func TestEngineSkipAdvancesQueue(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), blockingProfile(t))
	defer e.Stop()

	var completed atomic.Int32
	var secondStarted atomic.Bool

	e.QueueFile(writeClip(t, "one.mp3"), Clip{OnComplete: func() { completed.Add(1) }})
	e.QueueFile(writeClip(t, "two.mp3"), Clip{OnStart: func() { secondStarted.Store(true) }})

	waitFor(t, 3*time.Second, "playback to start", func() bool {
		return e.State() == StatePlaying
	})

	e.Skip()

	// Skip counts as completion of the current clip.
	waitFor(t, 3*time.Second, "skipped clip to complete", func() bool {
		return completed.Load() == 1
	})
	waitFor(t, 3*time.Second, "next clip to start", func() bool {
		return secondStarted.Load()
	})
}

func TestEnginePauseIsAdvisory(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), blockingProfile(t))
	defer e.Stop()

	e.QueueFile(writeClip(t, "one.mp3"), Clip{})
	waitFor(t, 3*time.Second, "playback to start", func() bool {
		return e.State() == StatePlaying
	})

	e.Pause()
	if e.State() != StatePaused {
		t.Fatalf("state after Pause = %v, want paused", e.State())
	}

	// The subprocess keeps running while reported paused.
	e.mu.Lock()
	running := e.proc != nil
	e.mu.Unlock()
	if !running {
		t.Error("subprocess gone while paused")
	}

	e.Play()
	if e.State() != StatePlaying {
		t.Errorf("state after Play = %v, want playing", e.State())
	}
}

func TestEnginePauseWhileIdle(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), instantProfile(t))
	e.Pause()
	if e.State() != StateIdle {
		t.Errorf("Pause while idle moved state to %v", e.State())
	}
}

func TestEngineVolumeClamp(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), instantProfile(t))

	tests := []struct {
		set  float64
		want float64
	}{
		{1.5, 1},
		{-0.2, 0},
		{0.3, 0.3},
		{0, 0},
		{1, 1},
	}
	for _, tc := range tests {
		e.SetVolume(tc.set)
		if got := e.Volume(); got != tc.want {
			t.Errorf("SetVolume(%v): Volume() = %v, want %v", tc.set, got, tc.want)
		}
	}
}

func TestEngineSpawnError(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), Profile{
		Name:   "bogus",
		Binary: "definitely-not-an-audio-player",
	})
	defer e.Stop()

	var got, failure atomic.Value
	var completed atomic.Bool
	e.OnError(func(err error) { got.Store(err) })

	e.QueueFile(writeClip(t, "one.mp3"), Clip{
		OnComplete: func() { completed.Store(true) },
		OnFailure:  func(err error) { failure.Store(err) },
	})

	waitFor(t, 3*time.Second, "spawn error", func() bool {
		return got.Load() != nil && failure.Load() != nil
	})
	if err, _ := got.Load().(error); !errors.Is(err, ErrSpawn) {
		t.Errorf("err = %v, want ErrSpawn", err)
	}
	// A clip that never spawned settles through OnFailure, not OnComplete.
	if err, _ := failure.Load().(error); !errors.Is(err, ErrSpawn) {
		t.Errorf("OnFailure err = %v, want ErrSpawn", err)
	}
	if completed.Load() {
		t.Error("failed clip fired OnComplete")
	}
}

func TestEngineNoPlayerFailsClip(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), Profile{})
	defer e.Stop()

	var failure atomic.Value
	e.QueueFile(writeClip(t, "one.mp3"), Clip{
		OnFailure: func(err error) { failure.Store(err) },
	})

	waitFor(t, 3*time.Second, "failure callback", func() bool {
		return failure.Load() != nil
	})
	if err, _ := failure.Load().(error); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("OnFailure err = %v, want ErrNoPlayer", err)
	}
}

// TestEngineSingleSubprocess plays several clips through a wrapper script
// that journals its start and exit, then asserts the journal never shows
// two players alive at once.
func TestEngineSingleSubprocess(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available in PATH")
	}

	dir := t.TempDir()
	journal := filepath.Join(dir, "journal")
	script := filepath.Join(dir, "player.sh")
	body := "#!/bin/sh\necho start >> \"" + journal + "\"\nsleep 0.2\necho end >> \"" + journal + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil { //nolint:gosec
		t.Fatal(err)
	}

	e := NewEngineWithProfile(testEngineConfig(t), Profile{Name: "journal", Binary: script})
	defer e.Stop()

	var completed atomic.Int32
	clip := Clip{OnComplete: func() { completed.Add(1) }}
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		if !e.QueueFile(writeClip(t, name), clip) {
			t.Fatal("QueueFile rejected an existing file")
		}
	}

	waitFor(t, 10*time.Second, "all clips to complete", func() bool {
		return completed.Load() == 3
	})

	data, err := os.ReadFile(journal)
	if err != nil {
		t.Fatal(err)
	}
	alive, maxAlive := 0, 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		switch line {
		case "start":
			alive++
		case "end":
			alive--
		}
		if alive > maxAlive {
			maxAlive = alive
		}
	}
	if maxAlive != 1 {
		t.Errorf("max concurrent subprocesses = %d, want 1", maxAlive)
	}
}

func TestEngineCallbackPanicContained(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), instantProfile(t))
	defer e.Stop()

	var completed atomic.Bool
	e.QueueFile(writeClip(t, "one.mp3"), Clip{
		OnStart:    func() { panic("listener bug") },
		OnComplete: func() { completed.Store(true) },
	})

	waitFor(t, 3*time.Second, "clip to complete despite panic", func() bool {
		return completed.Load()
	})
}

func TestEngineListDevices(t *testing.T) {
	e := NewEngineWithProfile(testEngineConfig(t), instantProfile(t))

	devices := e.ListDevices()
	if len(devices) != 1 {
		t.Fatalf("ListDevices returned %d devices, want 1", len(devices))
	}
	if !devices[0].Default || devices[0].Index != 0 {
		t.Errorf("device = %+v, want default at index 0", devices[0])
	}
}
