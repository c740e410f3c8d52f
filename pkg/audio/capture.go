// Package audio provides microphone capture, Opus/Ogg answer encoding,
// question audio playback, and the capped answer recorder.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate is the capture/encode rate in Hz.
	SampleRate = 48000
	// FrameSize is samples per frame (20ms at 48kHz), matching Opus.
	FrameSize = 960
)

// ErrPermission means the microphone is denied or unavailable.
var ErrPermission = errors.New("audio: microphone access denied or not available")

// Microphone captures mono PCM from an input device.
type Microphone struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	buffer     []int16
	deviceName string // empty = system default
	open       bool
}

// NewMicrophone creates a capture device. deviceName may be empty to use
// the system default input. Blocks until PortAudio init has finished.
func NewMicrophone(deviceName string) *Microphone {
	WaitPreInit()
	return &Microphone{
		buffer:     make([]int16, FrameSize),
		deviceName: deviceName,
	}
}

// Open acquires the input device and starts the stream. Failure to open
// the device reports ErrPermission, the capture-side equivalent of a
// denied microphone prompt.
func (m *Microphone) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return nil
	}

	var dev *portaudio.DeviceInfo
	if m.deviceName != "" {
		dev = FindInputDevice(m.deviceName)
	}
	if dev == nil {
		var err error
		dev, err = portaudio.DefaultInputDevice()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = SampleRate
	params.FramesPerBuffer = FrameSize

	stream, err := portaudio.OpenStream(params, m.buffer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}

	m.stream = stream
	m.open = true
	slog.Debug("microphone opened", "device", dev.Name, "rate", SampleRate)
	return nil
}

// ReadFrame blocks until one 20ms frame is captured and returns a copy.
func (m *Microphone) ReadFrame() ([]int16, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return nil, errors.New("audio: microphone not open")
	}
	if err := stream.Read(); err != nil {
		return nil, fmt.Errorf("audio: read frame: %w", err)
	}
	frame := make([]int16, len(m.buffer))
	copy(frame, m.buffer)
	return frame, nil
}

// Stop releases the stream but keeps the device selection; Open may be
// called again for the next recording.
func (m *Microphone) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return
	}
	m.open = false
	if m.stream != nil {
		_ = m.stream.Stop()
		_ = m.stream.Close()
		m.stream = nil
	}
}

// Close releases the stream and the PortAudio runtime.
func (m *Microphone) Close() error {
	m.Stop()
	return portaudio.Terminate()
}
