package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Speaker plays mono PCM to the default output device.
type Speaker struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	buffer     []int16
	sampleRate float64
	open       bool
}

// NewSpeaker creates a playback device at the given rate with frameSize
// samples per write.
func NewSpeaker(sampleRate float64, frameSize int) *Speaker {
	WaitPreInit()
	return &Speaker{
		buffer:     make([]int16, frameSize),
		sampleRate: sampleRate,
	}
}

// Open acquires the default output device and starts the stream.
func (s *Speaker) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("audio: no output device: %w", err)
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.Input.Device = nil
	params.Input.Channels = 0
	params.SampleRate = s.sampleRate
	params.FramesPerBuffer = len(s.buffer)

	stream, err := portaudio.OpenStream(params, s.buffer)
	if err != nil {
		return fmt.Errorf("audio: open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("audio: start playback: %w", err)
	}

	s.stream = stream
	s.open = true
	slog.Debug("playback opened", "device", dev.Name, "rate", s.sampleRate)
	return nil
}

// WriteFrame blocks until one frame has been handed to the device.
func (s *Speaker) WriteFrame(frame []int16) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return errors.New("audio: speaker not open")
	}
	if len(frame) != len(s.buffer) {
		return fmt.Errorf("audio: frame size mismatch: got %d, want %d", len(frame), len(s.buffer))
	}
	copy(s.buffer, frame)
	if err := stream.Write(); err != nil {
		return fmt.Errorf("audio: write frame: %w", err)
	}
	return nil
}

// Close releases the output stream.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.open = false
	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		s.stream = nil
	}
}
