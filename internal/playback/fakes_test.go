package playback

import (
	"context"
	"sync"

	"github.com/freely-audio/core/internal/audiolib"
	"github.com/freely-audio/core/internal/torrentengine"
)

// fakeLibrary is a minimal in-memory audiolib.Library for engine tests. It
// never touches real audio hardware: Play/Pause/Stop only flip bookkeeping
// state, and streams report a fixed, test-controlled duration/position.
type fakeLibrary struct {
	mu      sync.Mutex
	streams map[audiolib.StreamHandle]*fakeStream
	next    audiolib.StreamHandle

	devices []audiolib.DeviceInfo

	initDeviceErr error
	createErr     error
}

type fakeStream struct {
	lengthBytes int64
	position    int64
	state       audiolib.ActiveState
	volume      float32
	sampleRate  uint32
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		streams: make(map[audiolib.StreamHandle]*fakeStream),
		devices: []audiolib.DeviceInfo{{ID: 0, Name: "fake-default", Enabled: true, Default: true}},
	}
}

func (f *fakeLibrary) Load(candidatePaths []string) error { return nil }
func (f *fakeLibrary) VerifySentinel() error               { return nil }
func (f *fakeLibrary) LoadPlugins() []error                { return nil }

func (f *fakeLibrary) InitDevice(deviceID int, sampleRate uint32, flags int) error {
	return f.initDeviceErr
}
func (f *fakeLibrary) Free() {}

func (f *fakeLibrary) SetConfig(option audiolib.ConfigOption, value uint32) {}
func (f *fakeLibrary) SetConfigPtr(option string, value string)             {}

func (f *fakeLibrary) newStream(lengthBytes int64, sampleRate uint32) (audiolib.StreamHandle, audiolib.ChannelInfo, error) {
	if f.createErr != nil {
		return 0, audiolib.ChannelInfo{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	h := f.next
	f.streams[h] = &fakeStream{lengthBytes: lengthBytes, sampleRate: sampleRate, volume: 1}
	return h, audiolib.ChannelInfo{Codec: "mp3", SampleRate: sampleRate, Channels: 2}, nil
}

// fakeStreamSeconds is the fixed stream length the fake reports: long
// enough (600s) that tests can seek well past a shrunk "buffered so far"
// length without hitting the duration clamp.
const fakeStreamSeconds = 600

func (f *fakeLibrary) CreateStreamFile(path string) (audiolib.StreamHandle, audiolib.ChannelInfo, error) {
	return f.newStream(44100*fakeStreamSeconds, 44100)
}

func (f *fakeLibrary) CreateStreamURL(ctx context.Context, url string, offsetBytes int64, sink audiolib.CaptureSink) (audiolib.StreamHandle, audiolib.ChannelInfo, error) {
	if sink != nil {
		_, _ = sink.Write(make([]byte, 1024))
		sink.Finish()
	}
	return f.newStream(44100*fakeStreamSeconds, 44100)
}

func (f *fakeLibrary) FreeStream(h audiolib.StreamHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.streams, h)
}

func (f *fakeLibrary) Play(h audiolib.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streams[h]; ok {
		s.state = audiolib.StatePlaying
	}
	return nil
}

func (f *fakeLibrary) Pause(h audiolib.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streams[h]; ok {
		s.state = audiolib.StatePaused
	}
	return nil
}

func (f *fakeLibrary) Stop(h audiolib.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streams[h]; ok {
		s.state = audiolib.StateStopped
	}
	return nil
}

func (f *fakeLibrary) ActiveState(h audiolib.StreamHandle) audiolib.ActiveState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok {
		return audiolib.StateStopped
	}
	return s.state
}

func (f *fakeLibrary) GetPosition(h audiolib.StreamHandle) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok {
		return 0, audiolib.ErrInvalidPosition
	}
	return s.position, nil
}

func (f *fakeLibrary) SetPosition(h audiolib.StreamHandle, bytePos int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok {
		return audiolib.ErrInvalidPosition
	}
	if bytePos > s.lengthBytes {
		return audiolib.ErrSeekNotAvailable
	}
	s.position = bytePos
	return nil
}

func (f *fakeLibrary) BytesToSeconds(h audiolib.StreamHandle, bytePos int64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok || s.sampleRate == 0 {
		return 0
	}
	return float64(bytePos) / float64(s.sampleRate)
}

func (f *fakeLibrary) SecondsToBytes(h audiolib.StreamHandle, seconds float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok {
		return 0, audiolib.ErrInvalidPosition
	}
	return int64(seconds * float64(s.sampleRate)), nil
}

func (f *fakeLibrary) SetAttributeVolume(h audiolib.StreamHandle, volume float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streams[h]; ok {
		s.volume = volume
	}
	return nil
}

func (f *fakeLibrary) ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (f *fakeLibrary) Devices() ([]audiolib.DeviceInfo, error) { return f.devices, nil }
func (f *fakeLibrary) CurrentDeviceInfo() (audiolib.DeviceInfo, error) {
	return f.devices[0], nil
}

func (f *fakeLibrary) FilePosition(h audiolib.StreamHandle, kind audiolib.FilePositionKind) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok {
		return 0, audiolib.ErrInvalidPosition
	}
	switch kind {
	case audiolib.FilePosSize, audiolib.FilePosEnd:
		return s.lengthBytes, nil
	case audiolib.FilePosCurrent:
		return s.position, nil
	default:
		return 0, nil
	}
}

func (f *fakeLibrary) ChannelInfo(h audiolib.StreamHandle) (audiolib.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[h]
	if !ok {
		return audiolib.ChannelInfo{}, audiolib.ErrInvalidPosition
	}
	return audiolib.ChannelInfo{Codec: "mp3", SampleRate: s.sampleRate, Channels: 2}, nil
}

func (f *fakeLibrary) Tags(h audiolib.StreamHandle, kind string) (map[string]string, error) {
	return map[string]string{}, nil
}

// fakeTorrentEngine is a deterministic torrentengine.Engine for gating
// tests: Progress always reports the configured verified/total split.
type fakeTorrentEngine struct {
	verified, total int64
}

func (f *fakeTorrentEngine) Progress(ctx context.Context, infoHash string, fileIndex uint32) (torrentengine.Progress, error) {
	return torrentengine.Progress{VerifiedBytes: f.verified, Total: f.total}, nil
}
