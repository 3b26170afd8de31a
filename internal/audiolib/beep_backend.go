package audiolib

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
)

// volumeBase matches the teacher's mkVolume mapping: Base 2, Volume =
// (vol-1)*5 for vol in (0,1], Silent for vol<=0.
const volumeBase = 2

type streamEntry struct {
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	format   beep.Format
	body     io.ReadCloser // non-nil for URL streams, for Stop to close the transfer
	sink     CaptureSink
}

// BeepLibrary implements Library on top of gopxl/beep (decode + output) and
// gordonklaus/portaudio (device enumeration). There is exactly one process
// -wide output device, matching the native library's single-output model.
type BeepLibrary struct {
	mu          sync.Mutex
	initialized bool
	sampleRate  beep.SampleRate
	deviceID    int

	bufferMs     uint32
	netTimeoutMs uint32
	netBufferMs  uint32
	userAgent    string

	nextHandle StreamHandle
	streams    map[StreamHandle]*streamEntry

	httpClient *http.Client
}

// NewBeepLibrary returns an unloaded BeepLibrary.
func NewBeepLibrary() *BeepLibrary {
	return &BeepLibrary{
		streams:      make(map[StreamHandle]*streamEntry),
		bufferMs:     1024,
		netTimeoutMs: 15000,
		netBufferMs:  15000,
		httpClient:   &http.Client{},
	}
}

// Load is the capability surface's library-load step. The native original
// tries several relative paths to find a shared library; this backend has
// no shared library to find (beep/portaudio are linked in), so Load only
// marks the library as loaded and always succeeds.
func (b *BeepLibrary) Load(candidatePaths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// VerifySentinel checks that Load succeeded.
func (b *BeepLibrary) VerifySentinel() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return fmt.Errorf("library not loaded")
	}
	return nil
}

// LoadPlugins is a no-op: beep's mp3 decoder has no optional codec plugins.
// Kept as a method so the engine's init sequence matches the capability
// surface unconditionally.
func (b *BeepLibrary) LoadPlugins() []error { return nil }

var speakerInitOnce sync.Once
var speakerInitErr error
var speakerInitRate beep.SampleRate

// InitDevice initializes the output device at the given sample rate. The
// first call, and the first call after Free, initializes the speaker; any
// other call is treated as ALREADY (success, no-op). If such a call asks
// for a different sample rate, the mismatch is logged and the device keeps
// running at the rate it was initialized with.
func (b *BeepLibrary) InitDevice(deviceID int, sampleRate uint32, flags int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rate := beep.SampleRate(sampleRate)
	b.deviceID = deviceID

	var err error
	speakerInitOnce.Do(func() {
		bufSize := rate.N(time.Duration(b.bufferMs) * time.Millisecond)
		speakerInitErr = speaker.Init(rate, bufSize)
		speakerInitRate = rate
		log.Printf("[audiolib] speaker.Init(%d, %d)", rate, bufSize)
	})
	err = speakerInitErr

	if err == nil {
		b.sampleRate = speakerInitRate
		if speakerInitRate != rate {
			log.Printf("[audiolib] device running at %d Hz, requested %d Hz", speakerInitRate, rate)
		}
	}
	return err
}

// Free releases the output device.
func (b *BeepLibrary) Free() {
	b.mu.Lock()
	defer b.mu.Unlock()
	speaker.Close()
	speakerInitOnce = sync.Once{}
	b.initialized = false
}

func (b *BeepLibrary) SetConfig(option ConfigOption, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch option {
	case ConfigBufferMs:
		b.bufferMs = value
	case ConfigNetTimeoutMs:
		b.netTimeoutMs = value
		b.httpClient.Timeout = time.Duration(value) * time.Millisecond
	case ConfigNetBufferMs:
		b.netBufferMs = value
	}
}

func (b *BeepLibrary) SetConfigPtr(option string, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if option == "net_agent" {
		b.userAgent = value
	}
}

func (b *BeepLibrary) allocHandle() StreamHandle {
	b.nextHandle++
	return b.nextHandle
}

// CreateStreamFile opens and decodes a local MP3 file.
func (b *BeepLibrary) CreateStreamFile(path string) (StreamHandle, ChannelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, ChannelInfo{}, fmt.Errorf("open %s: %w", path, err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return 0, ChannelInfo{}, fmt.Errorf("decode %s: %w", path, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.allocHandle()
	b.streams[h] = &streamEntry{streamer: streamer, format: format}

	return h, ChannelInfo{Codec: "mp3", SampleRate: uint32(format.SampleRate), Channels: uint32(format.NumChannels)}, nil
}

// CreateStreamURL opens a remote MP3 stream starting at offsetBytes (for
// resume), decoding it as it downloads and teeing every chunk through sink.
// sink.Finish is called once the transfer body reaches EOF or errors.
func (b *BeepLibrary) CreateStreamURL(ctx context.Context, url string, offsetBytes int64, sink CaptureSink) (StreamHandle, ChannelInfo, error) {
	if sink == nil {
		sink = NoopSink()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, ChannelInfo{}, fmt.Errorf("build request: %w", err)
	}
	if offsetBytes > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offsetBytes, 10)+"-")
	}
	b.mu.Lock()
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	client := b.httpClient
	b.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		sink.Finish()
		return 0, ChannelInfo{}, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		sink.Finish()
		return 0, ChannelInfo{}, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	teed := &teeCaptureReader{r: resp.Body, sink: sink}

	streamer, format, err := mp3.Decode(teed)
	if err != nil {
		resp.Body.Close()
		sink.Finish()
		return 0, ChannelInfo{}, fmt.Errorf("decode stream %s: %w", url, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.allocHandle()
	b.streams[h] = &streamEntry{streamer: streamer, format: format, body: resp.Body, sink: sink}

	return h, ChannelInfo{Codec: "mp3", SampleRate: uint32(format.SampleRate), Channels: uint32(format.NumChannels)}, nil
}

// teeCaptureReader tees every Read into sink.Write and calls sink.Finish
// exactly once, on the first EOF or error.
type teeCaptureReader struct {
	r        io.Reader
	sink     CaptureSink
	finished bool
}

func (t *teeCaptureReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if _, werr := t.sink.Write(p[:n]); werr != nil {
			log.Printf("[audiolib] capture sink write error (ignored, stream keeps flowing): %v", werr)
		}
	}
	if err != nil && !t.finished {
		t.finished = true
		t.sink.Finish()
	}
	return n, err
}

func (b *BeepLibrary) FreeStream(h StreamHandle) {
	b.mu.Lock()
	entry, ok := b.streams[h]
	if ok {
		delete(b.streams, h)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	_ = entry.streamer.Close()
	if entry.body != nil {
		_ = entry.body.Close()
	}
}

func mkVolume(ctrl *beep.Ctrl, vol float32) *effects.Volume {
	v := &effects.Volume{Streamer: ctrl, Base: volumeBase}
	if vol <= 0 {
		v.Silent = true
	} else {
		v.Volume = float64(vol-1) * 5
	}
	return v
}

func (b *BeepLibrary) Play(h StreamHandle) error {
	b.mu.Lock()
	entry, ok := b.streams[h]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown stream handle")
	}

	var source beep.Streamer = entry.streamer
	if entry.format.SampleRate != b.sampleRate && b.sampleRate != 0 {
		source = beep.Resample(4, entry.format.SampleRate, b.sampleRate, entry.streamer)
	}
	entry.ctrl = &beep.Ctrl{Streamer: source, Paused: false}
	if entry.volume == nil {
		entry.volume = mkVolume(entry.ctrl, 1)
	} else {
		entry.volume.Streamer = entry.ctrl
	}
	b.mu.Unlock()

	speaker.Play(entry.volume)
	return nil
}

func (b *BeepLibrary) Pause(h StreamHandle) error {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok || entry.ctrl == nil {
		return fmt.Errorf("unknown or unstarted stream handle")
	}
	speaker.Lock()
	entry.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (b *BeepLibrary) Stop(h StreamHandle) error {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown stream handle")
	}
	if entry.ctrl != nil {
		speaker.Lock()
		entry.ctrl.Paused = true
		speaker.Unlock()
	}
	return nil
}

func (b *BeepLibrary) ActiveState(h StreamHandle) ActiveState {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok || entry.ctrl == nil {
		return StateStopped
	}
	speaker.Lock()
	paused := entry.ctrl.Paused
	speaker.Unlock()
	if paused {
		return StatePaused
	}
	return StatePlaying
}

func (b *BeepLibrary) GetPosition(h StreamHandle) (int64, error) {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown stream handle")
	}
	speaker.Lock()
	pos := entry.streamer.Position()
	speaker.Unlock()
	return int64(pos), nil
}

// SetPosition seeks to bytePos, translating beep's error into one of the
// seek-family sentinels so callers can branch on them the way the native
// library's seek error codes are branched on.
func (b *BeepLibrary) SetPosition(h StreamHandle, bytePos int64) error {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown stream handle")
	}

	if bytePos < 0 {
		return ErrInvalidPosition
	}

	speaker.Lock()
	length := entry.streamer.Len()
	speaker.Unlock()

	if bytePos > length {
		if entry.body != nil {
			// A URL stream: the target is simply not downloaded/decoded
			// yet, not an invalid position.
			return ErrSeekNotAvailable
		}
		return ErrInvalidPosition
	}

	speaker.Lock()
	err := entry.streamer.Seek(int(bytePos))
	speaker.Unlock()
	if err != nil {
		if entry.body != nil {
			return ErrSeekNotAvailable
		}
		return ErrInvalidPosition
	}
	return nil
}

func (b *BeepLibrary) BytesToSeconds(h StreamHandle, bytePos int64) float64 {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return entry.format.SampleRate.D(int(bytePos)).Seconds()
}

func (b *BeepLibrary) SecondsToBytes(h StreamHandle, seconds float64) (int64, error) {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown stream handle")
	}
	return int64(entry.format.SampleRate.N(secondsToDuration(seconds))), nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func (b *BeepLibrary) SetAttributeVolume(h StreamHandle, volume float32) error {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown stream handle")
	}
	speaker.Lock()
	if entry.volume == nil {
		entry.volume = mkVolume(entry.ctrl, volume)
	} else if volume <= 0 {
		entry.volume.Silent = true
	} else {
		entry.volume.Silent = false
		entry.volume.Volume = float64(volume-1) * 5
	}
	speaker.Unlock()
	return nil
}

func (b *BeepLibrary) ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (b *BeepLibrary) FilePosition(h StreamHandle, kind FilePositionKind) (int64, error) {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown stream handle")
	}
	switch kind {
	case FilePosCurrent, FilePosSize:
		speaker.Lock()
		defer speaker.Unlock()
		return int64(entry.streamer.Len()), nil
	default:
		return 0, fmt.Errorf("file position kind %d not tracked by this backend", kind)
	}
}

func (b *BeepLibrary) ChannelInfo(h StreamHandle) (ChannelInfo, error) {
	b.mu.Lock()
	entry, ok := b.streams[h]
	b.mu.Unlock()
	if !ok {
		return ChannelInfo{}, fmt.Errorf("unknown stream handle")
	}
	return ChannelInfo{
		Codec:      "mp3",
		SampleRate: uint32(entry.format.SampleRate),
		Channels:   uint32(entry.format.NumChannels),
	}, nil
}

// Tags is not implemented by this backend: gopxl/beep's mp3 decoder does
// not expose ID3 metadata. Returning an empty map (not an error) matches
// the capability surface's "best effort" framing for metadata queries.
func (b *BeepLibrary) Tags(h StreamHandle, kind string) (map[string]string, error) {
	return map[string]string{}, nil
}
