package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Player downloads and plays question audio. The service serves TTS
// clips as MP3; they are decoded to PCM and fed to the output device.
type Player struct {
	http *http.Client
}

// NewPlayer creates a question audio player.
func NewPlayer() *Player {
	return &Player{http: &http.Client{Timeout: 30 * time.Second}}
}

const playerFrameSize = 1024

// Play fetches the clip at url and plays it to completion, or until ctx
// is cancelled.
func (p *Player) Play(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("audio: fetch question audio: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("audio: fetch question audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio: fetch question audio: status %d", resp.StatusCode)
	}

	dec, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		return fmt.Errorf("audio: decode question audio: %w", err)
	}

	speaker := NewSpeaker(float64(dec.SampleRate()), playerFrameSize)
	if err := speaker.Open(); err != nil {
		return err
	}
	defer speaker.Close()

	// go-mp3 always yields 16-bit little-endian stereo; downmix to the
	// mono output frame by frame.
	raw := make([]byte, playerFrameSize*4)
	frame := make([]int16, playerFrameSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(dec, raw)
		if n == 0 {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("audio: read question audio: %w", err)
		}
		// Zero-pad a short tail so the last frame keeps the fixed size.
		for i := n; i < len(raw); i++ {
			raw[i] = 0
		}
		for i := 0; i < playerFrameSize; i++ {
			left := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
			right := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
			frame[i] = int16((int32(left) + int32(right)) / 2)
		}
		if werr := speaker.WriteFrame(frame); werr != nil {
			return werr
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
	}
}
