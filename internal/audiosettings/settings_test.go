package audiosettings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateIdempotent(t *testing.T) {
	s := Settings{
		SampleRate:             1,
		BitDepth:               19,
		OutputChannels:         99,
		Volume:                 5,
		VolumeBeforeMute:       -1,
		BufferSizeMs:           1,
		NetTimeoutMs:           1,
		NetBufferMs:            999999,
		AdditionalBufferWaitMs: 99999,
	}
	s.Validate()
	once := s
	s.Validate()
	if s != once {
		t.Fatalf("Validate not idempotent: %+v vs %+v", once, s)
	}

	if s.SampleRate < 8000 || s.SampleRate > 384000 {
		t.Errorf("sample rate out of range: %d", s.SampleRate)
	}
	if s.BitDepth != 16 && s.BitDepth != 24 && s.BitDepth != 32 {
		t.Errorf("bit depth not snapped: %d", s.BitDepth)
	}
	if s.OutputChannels < 1 || s.OutputChannels > 8 {
		t.Errorf("output channels out of range: %d", s.OutputChannels)
	}
	if s.Volume < 0 || s.Volume > 1 {
		t.Errorf("volume out of range: %v", s.Volume)
	}
	if s.BufferSizeMs < 10 || s.BufferSizeMs > 10000 {
		t.Errorf("buffer size out of range: %d", s.BufferSizeMs)
	}
	if s.NetTimeoutMs < 1000 || s.NetTimeoutMs > 120000 {
		t.Errorf("net timeout out of range: %d", s.NetTimeoutMs)
	}
	if s.NetBufferMs < 1000 || s.NetBufferMs > 120000 {
		t.Errorf("net buffer out of range: %d", s.NetBufferMs)
	}
	if s.AdditionalBufferWaitMs > 5000 {
		t.Errorf("additional buffer wait out of range: %d", s.AdditionalBufferWaitMs)
	}
}

func TestBitDepthBands(t *testing.T) {
	cases := map[uint32]uint32{
		16: 16, 24: 24, 32: 32,
		19: 16, 20: 24, 27: 24, 28: 32, 1: 16, 40: 32,
	}
	for in, want := range cases {
		s := Settings{BitDepth: in, OutputChannels: 2, SampleRate: 44100}
		s.Validate()
		if s.BitDepth != want {
			t.Errorf("BitDepth(%d) = %d, want %d", in, s.BitDepth, want)
		}
	}
}

func TestMutedAppliesZeroGain(t *testing.T) {
	s := Default()
	s.Volume = 0.8
	s.Muted = true
	if got := s.AppliedVolume(); got != 0 {
		t.Errorf("AppliedVolume() with muted = %v, want 0", got)
	}
	s.Muted = false
	if got := s.AppliedVolume(); got != 0.8 {
		t.Errorf("AppliedVolume() = %v, want 0.8", got)
	}
}

func TestStoreLoadMissingUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	store := Open(filepath.Join(dir, "audio_settings.json"))
	got := store.Snapshot()
	if got != Default() {
		t.Errorf("Open() on missing file = %+v, want defaults %+v", got, Default())
	}
}

func TestStoreUpdatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_settings.json")

	store := Open(path)
	updated, err := store.Update(func(s *Settings) {
		s.Volume = 0.25
		s.SampleRate = 48000
		s.HasUserOverride = true
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Volume != 0.25 || updated.SampleRate != 48000 {
		t.Fatalf("Update() returned %+v", updated)
	}

	reloaded := Open(path)
	got := reloaded.Snapshot()
	if got.Volume != 0.25 || got.SampleRate != 48000 || !got.HasUserOverride {
		t.Errorf("reloaded settings = %+v, want volume 0.25 sampleRate 48000 override true", got)
	}
}

func TestStoreUpdateClampsBeforeSave(t *testing.T) {
	dir := t.TempDir()
	store := Open(filepath.Join(dir, "audio_settings.json"))
	updated, err := store.Update(func(s *Settings) {
		s.SampleRate = 10
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want clamped to 8000", updated.SampleRate)
	}
}

func TestStoreCorruptFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio_settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := Open(path)
	if got := store.Snapshot(); got != Default() {
		t.Errorf("Open() on corrupt file = %+v, want defaults", got)
	}
}
