package audiolib

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var portaudioInitOnce sync.Once
var portaudioInitErr error

func ensurePortaudio() error {
	portaudioInitOnce.Do(func() {
		portaudioInitErr = portaudio.Initialize()
	})
	return portaudioInitErr
}

// Devices enumerates output-capable devices via portaudio, matching the
// native library's device list (index, name, whether it's the host
// default).
func (b *BeepLibrary) Devices() ([]DeviceInfo, error) {
	if err := ensurePortaudio(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	defaultOut, _ := portaudio.DefaultOutputDevice()

	var out []DeviceInfo
	for i, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, DeviceInfo{
			ID:      i,
			Name:    d.Name,
			Enabled: true,
			Default: defaultOut != nil && d.Name == defaultOut.Name,
		})
	}
	return out, nil
}

// CurrentDeviceInfo reports the device currently bound via InitDevice, or
// the host default if InitDevice used DeviceDefault (-1).
func (b *BeepLibrary) CurrentDeviceInfo() (DeviceInfo, error) {
	devices, err := b.Devices()
	if err != nil {
		return DeviceInfo{}, err
	}

	b.mu.Lock()
	want := b.deviceID
	b.mu.Unlock()

	if want >= 0 {
		for _, d := range devices {
			if d.ID == want {
				return d, nil
			}
		}
		return DeviceInfo{}, fmt.Errorf("device %d not found", want)
	}

	for _, d := range devices {
		if d.Default {
			return d, nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return DeviceInfo{}, fmt.Errorf("no output devices available")
}
