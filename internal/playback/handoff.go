package playback

import (
	"strings"
	"time"

	"github.com/freely-audio/core/internal/coreerr"
)

// handoffSteps and handoffStepDelay are the gapless handoff's crossfade
// schedule: 20 steps of 8ms each.
const (
	handoffSteps     = 20
	handoffStepDelay = 8 * time.Millisecond
)

// HandoffToCacheFile performs the gapless handoff: when a remote stream's
// capture has produced a valid file during playback (e.g. on
// cache:download:complete), this opens a new file-based stream at the
// current position with volume 0, crossfades it up to the user's target
// volume while fading the old stream down, then retires the old stream.
func (e *Engine) HandoffToCacheFile(cachedPath string) error {
	e.mu.Lock()
	if !e.st.hasStream {
		e.mu.Unlock()
		return coreerr.New(coreerr.KindPlaybackStart, "no active stream to hand off from")
	}
	oldHandle := e.st.streamHandle
	position := time.Duration(0)
	if bytePos, err := e.lib.GetPosition(oldHandle); err == nil {
		position = time.Duration(e.lib.BytesToSeconds(oldHandle, bytePos) * float64(time.Second))
	}
	settings := e.settings.Snapshot()
	e.mu.Unlock()

	newHandle, info, err := e.lib.CreateStreamFile(strings.TrimPrefix(cachedPath, "file://"))
	if err != nil {
		return coreerr.Wrap(coreerr.KindStreamCreate, e.lib.ErrorText(err), err)
	}

	if err := e.lib.SetAttributeVolume(newHandle, 0); err != nil {
		e.lib.FreeStream(newHandle)
		return err
	}
	if bytePos, err := e.lib.SecondsToBytes(newHandle, position.Seconds()); err == nil {
		_ = e.lib.SetPosition(newHandle, bytePos)
	}
	if err := e.lib.Play(newHandle); err != nil {
		e.lib.FreeStream(newHandle)
		return coreerr.Wrap(coreerr.KindPlaybackStart, e.lib.ErrorText(err), err)
	}

	target := settings.AppliedVolume()
	for step := 1; step <= handoffSteps; step++ {
		fraction := float32(step) / float32(handoffSteps)
		_ = e.lib.SetAttributeVolume(newHandle, target*fraction)
		_ = e.lib.SetAttributeVolume(oldHandle, target*(1-fraction))
		time.Sleep(handoffStepDelay)
	}

	e.lib.Stop(oldHandle)
	e.lib.FreeStream(oldHandle)

	e.mu.Lock()
	e.st.streamHandle = newHandle
	e.st.hasStream = true
	e.st.url = "file://" + strings.TrimPrefix(cachedPath, "file://")
	e.st.codec = info.Codec
	e.st.sampleRate = info.SampleRate
	e.st.bitsPerSample = info.BitsPerSample
	if e.st.capture != nil {
		e.st.capture.close()
		e.st.capture = nil
	}
	st := e.snapshotStatusLocked()
	e.mu.Unlock()

	e.emitStatus(st)
	return nil
}
