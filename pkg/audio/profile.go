package audio

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/charmbracelet/log"
)

// Profile describes the external player binary the engine drives. It is
// built once at engine construction and never mutated.
type Profile struct {
	Name     string
	Binary   string
	BaseArgs []string

	volumeArgs func(v float64) []string
}

// Available reports whether a usable player binary was found.
func (p Profile) Available() bool {
	return p.Binary != ""
}

// Command renders the full argument vector for playing a file at the given
// volume: binary, base flags, volume flags, then the file path.
func (p Profile) Command(file string, volume float64) []string {
	args := make([]string, 0, len(p.BaseArgs)+4)
	args = append(args, p.Binary)
	args = append(args, p.BaseArgs...)
	if p.volumeArgs != nil {
		args = append(args, p.volumeArgs(volume)...)
	}
	return append(args, file)
}

// Device describes an audio output device. The engine exposes a single
// synthetic default device naming the detected player.
type Device struct {
	Index   int
	Name    string
	Default bool
}

// candidate is one entry of the ranked player probe table.
type candidate struct {
	name       string
	binary     string
	baseArgs   []string
	volumeArgs func(v float64) []string
}

func mpvVolume(v float64) []string {
	return []string{fmt.Sprintf("--volume=%d", int(v*100))}
}

func ffplayVolume(v float64) []string {
	return []string{"-volume", strconv.Itoa(int(v * 100))}
}

func afplayVolume(v float64) []string {
	return []string{"-v", strconv.FormatFloat(v, 'f', -1, 64)}
}

// candidatesFor returns the ranked player candidates for an OS.
func candidatesFor(goos string) []candidate {
	switch goos {
	case "darwin":
		// afplay ships with macOS.
		return []candidate{
			{name: "afplay", binary: "afplay", volumeArgs: afplayVolume},
		}
	case "linux":
		return []candidate{
			{name: "mpv", binary: "mpv", baseArgs: []string{"--no-video", "--really-quiet"}, volumeArgs: mpvVolume},
			{name: "ffplay", binary: "ffplay", baseArgs: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}, volumeArgs: ffplayVolume},
			// paplay has no straightforward volume flag.
			{name: "paplay", binary: "paplay"},
		}
	case "windows":
		return []candidate{
			{name: "ffplay", binary: "ffplay", baseArgs: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}, volumeArgs: ffplayVolume},
		}
	default:
		return nil
	}
}

// DetectProfile probes the host for the best available player and returns
// its profile. The zero Profile is returned when nothing is found.
func DetectProfile() Profile {
	return detectProfile(runtime.GOOS, exec.LookPath)
}

func detectProfile(goos string, look func(string) (string, error)) Profile {
	for _, c := range candidatesFor(goos) {
		if _, err := look(c.binary); err != nil {
			continue
		}
		log.Debug("audio player detected", "player", c.name)
		return Profile{
			Name:       c.name,
			Binary:     c.binary,
			BaseArgs:   c.baseArgs,
			volumeArgs: c.volumeArgs,
		}
	}
	log.Error("no audio player found in PATH")
	return Profile{}
}

// ProfileFor builds a profile for an explicitly named player binary,
// bypassing the probe. Known players keep their flag conventions; unknown
// binaries are invoked with the file path alone.
func ProfileFor(binary string) Profile {
	for _, goos := range []string{"darwin", "linux", "windows"} {
		for _, c := range candidatesFor(goos) {
			if c.binary == binary {
				return Profile{Name: c.name, Binary: c.binary, BaseArgs: c.baseArgs, volumeArgs: c.volumeArgs}
			}
		}
	}
	return Profile{Name: binary, Binary: binary}
}
