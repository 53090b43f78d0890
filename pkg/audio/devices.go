package audio

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the device selection policies.
var (
	// ErrNoPhysicalMic indicates that no input device qualified as a real
	// microphone (every candidate matched a virtual-device keyword).
	ErrNoPhysicalMic = errors.New("audio: no physical microphone found")

	// ErrNoVirtualDevice indicates that no virtual output device (BlackHole,
	// VB-Cable) was present.
	ErrNoVirtualDevice = errors.New("audio: no virtual output device found")
)

// Device describes one audio endpoint reported by the host.
type Device struct {
	// Index is the position in the enumeration snapshot; it is only
	// meaningful within that snapshot.
	Index int

	// ID is the opaque host identifier used to open the device.
	ID DeviceID

	// Name is the human-readable device name.
	Name string

	// MaxInputChannels and MaxOutputChannels are the channel capabilities.
	MaxInputChannels  int
	MaxOutputChannels int

	// IsDefaultInput and IsDefaultOutput mark the host defaults.
	IsDefaultInput  bool
	IsDefaultOutput bool
}

// preferredMicNames are matched in order against lowercased device names when
// picking a physical microphone. Earlier entries win.
var preferredMicNames = []string{"jabra", "evolve", "built-in", "macbook pro microphone"}

// virtualKeywords identify loopback or aggregate devices that must never be
// selected as a physical microphone.
var virtualKeywords = []string{"blackhole", "vb-cable", "vb cable", "aggregate", "multi-output", "loopback", "voicemeeter"}

// virtualCableKeywords identify the virtual cable devices usable as the mixer
// output.
var virtualCableKeywords = []string{"blackhole", "vb-cable", "vb cable"}

// loopbackKeywords identify devices usable as the system loopback input: the
// virtual cables plus dedicated loopback products (Loopback.app,
// VoiceMeeter).
var loopbackKeywords = []string{"blackhole", "vb-cable", "vb cable", "loopback", "voicemeeter"}

// isVirtualName reports whether the lowercased name matches any virtual or
// aggregate device keyword.
func isVirtualName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range virtualKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isVirtualCableName reports whether the lowercased name matches a virtual
// cable product (BlackHole or VB-Cable).
func isVirtualCableName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range virtualCableKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isLoopbackName reports whether the lowercased name matches a device that
// can capture system playback.
func isLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range loopbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SelectPhysicalMic picks the microphone to capture from.
//
// Preferred names win in priority order; virtual and aggregate devices are
// never selected. When no preferred name matches, the host default input is
// used if it is physical, otherwise the first physical input device.
func SelectPhysicalMic(devices []Device) (Device, error) {
	inputs := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 && !isVirtualName(d.Name) {
			inputs = append(inputs, d)
		}
	}
	if len(inputs) == 0 {
		return Device{}, ErrNoPhysicalMic
	}

	for _, pref := range preferredMicNames {
		for _, d := range inputs {
			if strings.Contains(strings.ToLower(d.Name), pref) {
				return d, nil
			}
		}
	}

	for _, d := range inputs {
		if d.IsDefaultInput {
			return d, nil
		}
	}
	return inputs[0], nil
}

// SelectVirtualOutput picks the virtual cable output the mixer writes to.
// The device must be a BlackHole or VB-Cable endpoint with at least two
// output channels.
func SelectVirtualOutput(devices []Device) (Device, error) {
	for _, d := range devices {
		if d.MaxOutputChannels >= 2 && isVirtualCableName(d.Name) {
			return d, nil
		}
	}
	return Device{}, ErrNoVirtualDevice
}

// SelectLoopbackInput picks the input used to capture system playback (the
// SYSTEM transcription source): a virtual cable or a dedicated loopback
// device. Returns false when none exposes an input side.
func SelectLoopbackInput(devices []Device) (Device, bool) {
	for _, d := range devices {
		if d.MaxInputChannels > 0 && isLoopbackName(d.Name) {
			return d, true
		}
	}
	return Device{}, false
}
