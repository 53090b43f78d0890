package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// DeviceID is the opaque host device identifier.
type DeviceID = malgo.DeviceID

// Engine owns the miniaudio context and opens capture and playback streams
// on the devices picked by the selection policies.
type Engine struct {
	ctx *malgo.AllocatedContext
}

// NewEngine initialises the host audio backend.
func NewEngine() (*Engine, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &Engine{ctx: ctx}, nil
}

// Close tears down the audio backend. Streams opened from this engine must
// be closed first.
func (e *Engine) Close() error {
	if e.ctx == nil {
		return nil
	}
	err := e.ctx.Uninit()
	e.ctx.Free()
	e.ctx = nil
	if err != nil {
		return fmt.Errorf("audio: uninit context: %w", err)
	}
	return nil
}

// Devices returns a merged snapshot of all capture and playback endpoints.
// A device that appears on both sides (some virtual cables do) is reported
// once with both channel counts populated.
func (e *Engine) Devices() ([]Device, error) {
	captures, err := e.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audio: list capture devices: %w", err)
	}
	playbacks, err := e.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("audio: list playback devices: %w", err)
	}

	byName := make(map[string]int)
	var devices []Device

	for _, info := range captures {
		d := Device{
			Index:            len(devices),
			ID:               info.ID,
			Name:             info.Name(),
			MaxInputChannels: e.maxChannels(malgo.Capture, info.ID),
			IsDefaultInput:   info.IsDefault != 0,
		}
		byName[d.Name] = len(devices)
		devices = append(devices, d)
	}

	for _, info := range playbacks {
		channels := e.maxChannels(malgo.Playback, info.ID)
		if idx, ok := byName[info.Name()]; ok {
			devices[idx].MaxOutputChannels = channels
			devices[idx].IsDefaultOutput = info.IsDefault != 0
			continue
		}
		devices = append(devices, Device{
			Index:             len(devices),
			ID:                info.ID,
			Name:              info.Name(),
			MaxOutputChannels: channels,
			IsDefaultOutput:   info.IsDefault != 0,
		})
	}

	return devices, nil
}

// maxChannels queries the device's full info for its widest channel layout.
// Falls back to stereo when the host refuses the query; miniaudio converts
// channel layouts on open anyway.
func (e *Engine) maxChannels(kind malgo.DeviceType, id malgo.DeviceID) int {
	full, err := e.ctx.DeviceInfo(kind, id, malgo.Shared)
	if err != nil {
		return 2
	}
	channels := 0
	for _, f := range full.Formats {
		if int(f.Channels) > channels {
			channels = int(f.Channels)
		}
	}
	if channels == 0 {
		channels = 2
	}
	return channels
}

// ---- capture ----

// CaptureStream delivers int16 PCM from a capture device. Read blocks until
// the requested byte count is available, which paces the mixer loop at the
// device's real-time rate. Not safe for concurrent readers.
type CaptureStream struct {
	device  *malgo.Device
	frames  chan []byte
	pending []byte
	once    sync.Once
}

// OpenCapture opens dev for int16 capture at the given rate and channel
// count and starts the stream.
func (e *Engine) OpenCapture(dev Device, sampleRate, channels int) (*CaptureStream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	id := dev.ID
	cfg.Capture.DeviceID = id.Pointer()

	s := &CaptureStream{
		// ~1s of headroom at typical 10ms periods before frames are dropped.
		frames: make(chan []byte, 100),
	}

	device, err := malgo.InitDevice(e.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			chunk := make([]byte, len(pInput))
			copy(chunk, pInput)
			select {
			case s.frames <- chunk:
			default:
				// Consumer is behind; drop rather than block the device thread.
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: init capture device %q: %w", dev.Name, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start capture device %q: %w", dev.Name, err)
	}
	s.device = device
	return s, nil
}

// Read fills p completely with captured PCM, blocking until enough audio has
// arrived. Returns io.EOF after Close once buffered audio is drained.
func (s *CaptureStream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(s.pending) == 0 {
			chunk, ok := <-s.frames
			if !ok {
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
			s.pending = chunk
		}
		c := copy(p[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

// Close stops the device and releases it. Safe to call more than once.
func (s *CaptureStream) Close() error {
	s.once.Do(func() {
		if s.device != nil {
			_ = s.device.Stop()
			s.device.Uninit()
		}
		close(s.frames)
	})
	return nil
}

// ---- playback ----

// PlaybackStream accepts int16 PCM writes and feeds them to a playback
// device, emitting silence when starved.
type PlaybackStream struct {
	device *malgo.Device

	mu     sync.Mutex
	buf    []byte
	closed bool
	maxBuf int
}

// OpenPlayback opens dev for int16 playback at the given rate and channel
// count and starts the stream.
func (e *Engine) OpenPlayback(dev Device, sampleRate, channels int) (*PlaybackStream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	id := dev.ID
	cfg.Playback.DeviceID = id.Pointer()

	s := &PlaybackStream{
		// Cap pending audio at one second to bound added latency.
		maxBuf: sampleRate * channels * 2,
	}

	device, err := malgo.InitDevice(e.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) {
			s.mu.Lock()
			n := copy(pOutput, s.buf)
			s.buf = s.buf[n:]
			s.mu.Unlock()
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: init playback device %q: %w", dev.Name, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start playback device %q: %w", dev.Name, err)
	}
	s.device = device
	return s, nil
}

// Write queues PCM for playback. Excess beyond the one-second cap is dropped
// so a stalled device cannot back-pressure the mixer loop.
func (s *PlaybackStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("audio: playback stream is closed")
	}
	if len(s.buf)+len(p) > s.maxBuf {
		return len(p), nil
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Close stops the device and releases it. Safe to call more than once.
func (s *PlaybackStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
	}
	return nil
}
