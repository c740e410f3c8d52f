package audio

import (
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	preInitOnce sync.Once
	preInitDone = make(chan struct{})
)

// PreInit starts PortAudio initialization in the background. Call it at
// startup so the slow device enumeration overlaps with login instead of
// delaying the first recording. NewMicrophone waits for it to finish.
func PreInit() {
	preInitOnce.Do(func() {
		go func() {
			if err := portaudio.Initialize(); err != nil {
				slog.Error("portaudio init failed", "err", err)
			}
			close(preInitDone)
		}()
	})
}

// WaitPreInit blocks until the background PreInit completes, triggering
// it first if nobody has.
func WaitPreInit() {
	PreInit()
	<-preInitDone
}

// Device describes an audio device for selection UIs.
type Device struct {
	Name      string
	IsDefault bool
}

// ListInputDevices returns the available microphones.
func ListInputDevices() ([]Device, error) {
	WaitPreInit()

	defaultIn, _ := portaudio.DefaultInputDevice()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var result []Device
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				Name:      d.Name,
				IsDefault: defaultIn != nil && d.Name == defaultIn.Name,
			})
		}
	}
	return result, nil
}

// FindInputDevice returns the input device matching name, or nil.
func FindInputDevice(name string) *portaudio.DeviceInfo {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d
		}
	}
	return nil
}
