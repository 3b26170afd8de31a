// Package audiolib is the thin capability surface over the native audio
// stack the playback engine drives: device init, stream creation from a
// file or a URL (with an optional capture sink standing in for the native
// library's download callback), transport control, attributes, and
// file-position queries. It is implemented concretely on top of
// github.com/gopxl/beep for decode/output and github.com/gordonklaus/portaudio
// for device enumeration, rather than a dynamically loaded native library —
// see DESIGN.md for why.
package audiolib

import (
	"context"
	"errors"
)

// Seek-family sentinel errors SetPosition returns, mirroring the native
// library's translated seek error codes so the playback engine can branch
// on them without depending on this backend's concrete error type.
var (
	// ErrSeekNotAvailable means the target byte position is not yet
	// buffered/downloaded; the caller should treat this as "try again
	// later" rather than a hard failure.
	ErrSeekNotAvailable = errors.New("audiolib: seek position not available")
	// ErrInvalidPosition means bytePos is out of the stream's valid range.
	ErrInvalidPosition = errors.New("audiolib: invalid seek position")
	// ErrNotFile means the stream does not support seeking at all.
	ErrNotFile = errors.New("audiolib: stream does not support seeking")
)

// StreamHandle identifies one active stream. The zero value is never a
// valid handle.
type StreamHandle uint64

// ActiveState mirrors the native library's channel activity states.
type ActiveState int

const (
	StateStopped ActiveState = iota
	StatePlaying
	StateStalled
	StatePaused
)

// FilePositionKind enumerates the stream file-position counters a capture
// can be queried for.
type FilePositionKind int

const (
	FilePosCurrent FilePositionKind = iota
	FilePosDownload
	FilePosEnd
	FilePosStart
	FilePosConnected
	FilePosSize
	FilePosAsyncBuf
	FilePosAsyncBufLen
)

// DeviceInfo describes one enumerable output device.
type DeviceInfo struct {
	ID      int
	Name    string
	Enabled bool
	Default bool
}

// ChannelInfo is the format information a stream reports once opened.
type ChannelInfo struct {
	Codec         string
	SampleRate    uint32
	Channels      uint32
	BitsPerSample uint32
}

// ConfigOption enumerates the integer configuration knobs the engine sets
// before device init (buffer size, network timeout, network buffer).
type ConfigOption int

const (
	ConfigBufferMs ConfigOption = iota
	ConfigNetTimeoutMs
	ConfigNetBufferMs
)

// CaptureSink receives bytes as they arrive from a URL-backed stream's
// underlying transfer, standing in for the native library's pinned
// user-pointer download callback. Write is called with each chunk in
// order; Finish is called exactly once, after the final chunk, standing in
// for the native library's (nil, 0) end-of-download callback. Finish must
// be called even on transfer error so callers always reach a terminal
// finalize-or-discard decision.
type CaptureSink interface {
	Write(p []byte) (n int, err error)
	Finish()
}

// noopSink discards bytes; used when a URL stream is opened without capture
// (e.g. file:// sources never reach here, and callers that truly do not
// want capture pass this).
type noopSink struct{}

func (noopSink) Write(p []byte) (int, error) { return len(p), nil }
func (noopSink) Finish()                     {}

// NoopSink returns a CaptureSink that discards all bytes.
func NoopSink() CaptureSink { return noopSink{} }

// Library is the capability interface the playback engine depends on.
type Library interface {
	Load(candidatePaths []string) error
	VerifySentinel() error
	LoadPlugins() []error

	InitDevice(deviceID int, sampleRate uint32, flags int) error
	Free()

	SetConfig(option ConfigOption, value uint32)
	SetConfigPtr(option string, value string)

	CreateStreamFile(path string) (StreamHandle, ChannelInfo, error)
	CreateStreamURL(ctx context.Context, url string, offsetBytes int64, sink CaptureSink) (StreamHandle, ChannelInfo, error)
	FreeStream(h StreamHandle)

	Play(h StreamHandle) error
	Pause(h StreamHandle) error
	Stop(h StreamHandle) error
	ActiveState(h StreamHandle) ActiveState

	GetPosition(h StreamHandle) (int64, error)
	SetPosition(h StreamHandle, bytePos int64) error
	BytesToSeconds(h StreamHandle, bytePos int64) float64
	SecondsToBytes(h StreamHandle, seconds float64) (int64, error)

	SetAttributeVolume(h StreamHandle, volume float32) error

	ErrorText(err error) string

	Devices() ([]DeviceInfo, error)
	CurrentDeviceInfo() (DeviceInfo, error)

	FilePosition(h StreamHandle, kind FilePositionKind) (int64, error)
	ChannelInfo(h StreamHandle) (ChannelInfo, error)
	Tags(h StreamHandle, kind string) (map[string]string, error)
}
