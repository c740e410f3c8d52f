package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

const (
	opusBitrate = 64000 // 64 kbps, plenty for speech transcription
)

// Encoder wraps an Opus encoder tuned for voice.
type Encoder struct {
	enc *opus.Encoder
	buf []byte // reusable output buffer
}

// NewEncoder creates a mono voice encoder at the package sample rate.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: new encoder: %w", err)
	}
	_ = enc.SetBitrate(opusBitrate)
	_ = enc.SetComplexity(5)

	return &Encoder{
		enc: enc,
		buf: make([]byte, 1024), // max Opus frame size
	}, nil
}

// Encode encodes one PCM frame to an Opus packet.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}
