// Package audiosettings is the sole persistence boundary for AudioSettings:
// device, sample rate, buffer, network, and volume configuration for the
// playback engine. Settings are loaded once at startup, mutated only through
// Store.Update, and written back atomically (temp file + rename).
package audiosettings

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// DeviceDefault is the sentinel device_id meaning "system default device".
const DeviceDefault = -1

// Settings is the persisted, process-wide audio configuration record.
type Settings struct {
	DeviceID        int     `json:"device_id"`
	SampleRate      uint32  `json:"sample_rate"`
	HasUserOverride bool    `json:"has_user_override"`
	BitDepth        uint32  `json:"bit_depth"`
	ExclusiveMode   bool    `json:"exclusive_mode"`
	OutputChannels  uint32  `json:"output_channels"`
	Volume          float32 `json:"volume"`
	Muted           bool    `json:"muted"`
	VolumeBeforeMute float32 `json:"volume_before_mute"`
	BufferSizeMs    uint32  `json:"buffer_size_ms"`
	NetTimeoutMs    uint32  `json:"net_timeout_ms"`
	NetBufferMs     uint32  `json:"net_buffer_ms"`
	AdditionalBufferWaitMs uint64 `json:"additional_buffer_wait_ms"`
}

// Default returns the factory-default settings record.
func Default() Settings {
	return Settings{
		DeviceID:               DeviceDefault,
		SampleRate:              44100,
		HasUserOverride:         false,
		BitDepth:                16,
		ExclusiveMode:           false,
		OutputChannels:          2,
		Volume:                  0.5,
		Muted:                   false,
		VolumeBeforeMute:        0.5,
		BufferSizeMs:            1024,
		NetTimeoutMs:            15000,
		NetBufferMs:             15000,
		AdditionalBufferWaitMs:  200,
	}
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampU64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate clamps every numeric field to its declared range in place.
// Validate(Validate(x)) == Validate(x).
func (s *Settings) Validate() {
	s.SampleRate = clampU32(s.SampleRate, 8000, 384000)

	switch {
	case s.BitDepth == 16 || s.BitDepth == 24 || s.BitDepth == 32:
		// already valid
	case s.BitDepth < 20:
		s.BitDepth = 16
	case s.BitDepth < 28:
		s.BitDepth = 24
	default:
		s.BitDepth = 32
	}

	s.OutputChannels = clampU32(s.OutputChannels, 1, 8)
	s.Volume = clampF32(s.Volume, 0, 1)
	s.VolumeBeforeMute = clampF32(s.VolumeBeforeMute, 0, 1)
	s.BufferSizeMs = clampU32(s.BufferSizeMs, 10, 10000)
	s.NetTimeoutMs = clampU32(s.NetTimeoutMs, 1000, 120000)
	s.NetBufferMs = clampU32(s.NetBufferMs, 1000, 120000)
	s.AdditionalBufferWaitMs = clampU64(s.AdditionalBufferWaitMs, 0, 5000)
}

// AppliedVolume returns the gain that should reach the audio library: zero
// when muted, the configured volume otherwise.
func (s Settings) AppliedVolume() float32 {
	if s.Muted {
		return 0
	}
	return s.Volume
}

// Store owns the on-disk AudioSettings record.
type Store struct {
	mu   sync.Mutex
	path string
	cur  Settings
}

// Open loads settings from path, falling back to defaults (and logging) on
// any read or parse error. path's parent directory is created lazily on
// first Update, not here.
func Open(path string) *Store {
	s := &Store{path: path, cur: Default()}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[audiosettings] settings file not found at %s, using defaults", path)
		return s
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("[audiosettings] failed to parse settings file %s: %v, using defaults", path, err)
		return s
	}

	loaded.Validate()
	s.cur = loaded
	log.Printf("[audiosettings] loaded settings from %s", path)
	return s
}

// Snapshot returns a value copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update runs mutate against a copy of the current settings, validates the
// result, persists it atomically, and commits it as the new current value.
// mutate must not retain the pointer it receives.
func (s *Store) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	mutate(&next)
	next.Validate()

	if err := s.saveLocked(next); err != nil {
		return s.cur, err
	}

	s.cur = next
	return s.cur, nil
}

func (s *Store) saveLocked(settings Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".audio_settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp settings file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename settings file into place: %w", err)
	}

	log.Printf("[audiosettings] saved settings to %s", s.path)
	return nil
}
