package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotInitialized means Start was called before Initialize succeeded.
var ErrNotInitialized = errors.New("audio: recorder not initialized")

// ErrAlreadyRecording means Start was called mid-recording.
var ErrAlreadyRecording = errors.New("audio: already recording")

// inputDevice is the capture surface the recorder drives. *Microphone is
// the production implementation.
type inputDevice interface {
	Open() error
	ReadFrame() ([]int16, error)
	Stop()
	Close() error
}

var _ inputDevice = (*Microphone)(nil)

// Recorder captures a single spoken answer as an Ogg/Opus blob. A
// recording is capped at MaxDuration: when the cap is reached the
// recorder stops itself and hands the blob to OnComplete. Whether the
// stop was manual or forced, OnComplete fires exactly once per recording.
type Recorder struct {
	mu        sync.Mutex
	mic       inputDevice
	enc       *Encoder
	ogg       *oggWriter
	timer     *time.Timer
	stopCh    chan struct{}
	wg        sync.WaitGroup
	ready     bool
	recording bool
	completed bool

	// MaxDuration is the hard cap on one recording.
	MaxDuration time.Duration

	// OnComplete receives the finished blob (manual stop or cap).
	OnComplete func(blob []byte)

	// OnLevel receives the RMS level of each captured frame, for a VU meter.
	OnLevel func(rms float64)
}

// NewRecorder creates a recorder using the named input device ("" for
// the system default).
func NewRecorder(deviceName string, maxDuration time.Duration) *Recorder {
	return &Recorder{
		mic:         NewMicrophone(deviceName),
		MaxDuration: maxDuration,
	}
}

// Initialize requests microphone access by opening the input device
// once. Returns ErrPermission when the device is denied or unavailable.
func (r *Recorder) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}
	if err := r.mic.Open(); err != nil {
		return err
	}
	r.mic.Stop()
	r.ready = true
	return nil
}

// Start begins capturing. Fails if Initialize has not succeeded.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return ErrNotInitialized
	}
	if r.recording {
		return ErrAlreadyRecording
	}
	if err := r.mic.Open(); err != nil {
		return err
	}
	enc, err := NewEncoder()
	if err != nil {
		r.mic.Stop()
		return err
	}

	r.enc = enc
	r.ogg = newOggWriter(uint32(time.Now().UnixNano()))
	r.stopCh = make(chan struct{})
	r.recording = true
	r.completed = false

	r.wg.Add(1)
	go r.captureLoop(r.stopCh)

	if r.MaxDuration > 0 {
		r.timer = time.AfterFunc(r.MaxDuration, func() {
			slog.Info("recording cap reached, stopping", "cap", r.MaxDuration)
			r.Stop()
		})
	}
	return nil
}

// captureLoop reads frames until stopped, encoding as it goes. The loop
// also exits when the stream is torn down under it and ReadFrame errors.
func (r *Recorder) captureLoop(stop <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}

		pcm, err := r.mic.ReadFrame()
		if err != nil {
			slog.Debug("capture read ended", "err", err)
			return
		}
		if r.OnLevel != nil {
			r.OnLevel(RMS(pcm))
		}

		packet, err := r.enc.Encode(pcm)
		if err != nil {
			slog.Debug("encode error", "err", err)
			continue
		}
		r.ogg.WritePacket(packet, FrameSize)
	}
}

// Stop ends the recording and returns the Ogg blob, or nil if nothing is
// recording. The blob is also delivered through OnComplete.
func (r *Recorder) Stop() []byte {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	close(r.stopCh)
	r.mic.Stop()
	r.mu.Unlock()

	// Wait for the capture loop before touching the writer.
	r.wg.Wait()

	r.mu.Lock()
	blob := r.ogg.Finalize()
	r.ogg = nil
	r.enc = nil
	alreadyDone := r.completed
	r.completed = true
	r.mu.Unlock()

	if !alreadyDone && r.OnComplete != nil {
		r.OnComplete(blob)
	}
	return blob
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Cleanup releases the audio device unconditionally. Call it on every
// exit path so the device handle never leaks.
func (r *Recorder) Cleanup() {
	r.Stop()
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
	if err := r.mic.Close(); err != nil {
		slog.Debug("microphone close", "err", err)
	}
}
