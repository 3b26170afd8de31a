package playback

import (
	"time"

	"github.com/freely-audio/core/internal/audiolib"
)

// Status returns the current transport status. Position is computed from
// the library's current byte position; on error, 0.
func (e *Engine) Status() Status {
	e.mu.Lock()
	e.refreshEndOfTrackLocked()
	st := e.snapshotStatusLocked()
	e.mu.Unlock()
	return st
}

// snapshotStatusLocked builds a Status value from current state. Caller
// must hold e.mu.
func (e *Engine) snapshotStatusLocked() Status {
	var position time.Duration
	if e.st.hasStream {
		if bytePos, err := e.lib.GetPosition(e.st.streamHandle); err == nil {
			position = time.Duration(e.lib.BytesToSeconds(e.st.streamHandle, bytePos) * float64(time.Second))
		}
	}

	st := Status{
		URL:           e.st.url,
		Playing:       e.st.playing,
		Position:      position,
		Ended:         e.st.ended,
		Codec:         e.st.codec,
		SampleRate:    e.st.sampleRate,
		BitsPerSample: e.st.bitsPerSample,
	}
	if e.st.hasDuration {
		d := e.st.duration
		st.Duration = &d
	}
	if e.st.lastError != nil {
		st.Error = e.st.lastError.Error()
	}
	return st
}

// refreshEndOfTrackLocked implements end-of-track detection. "current ==
// end-of-download" alone never means end-of-track; it means the decoder
// has caught up to the downloaded bytes and is stalling for more. A
// transition to ended=true fires exactly once per stream. Caller must hold
// e.mu.
func (e *Engine) refreshEndOfTrackLocked() {
	if !e.st.playing || e.st.ended || !e.st.hasStream {
		return
	}

	naturalEnd := false
	if e.st.hasDuration && e.st.duration >= 2*time.Second {
		if bytePos, err := e.lib.GetPosition(e.st.streamHandle); err == nil {
			position := time.Duration(e.lib.BytesToSeconds(e.st.streamHandle, bytePos) * float64(time.Second))
			if position >= e.st.duration-100*time.Millisecond {
				naturalEnd = true
			}
		}
	}

	libraryStopped := e.lib.ActiveState(e.st.streamHandle) == audiolib.StateStopped
	withinStartupGrace := e.st.hasStartedAt && nowFunc().Sub(e.st.startedAt) < startupGrace

	if naturalEnd || (libraryStopped && !withinStartupGrace) {
		e.st.playing = false
		e.st.ended = true
		e.markEndOfTrackLocked()
	}
}

// markEndOfTrackLocked runs the capture finalize step once a stream ends
// naturally (an explicit Stop runs the same finalize step itself).
// Caller must hold e.mu; the finalize itself is dispatched on its own
// goroutine so the lock is never held across filesystem I/O.
func (e *Engine) markEndOfTrackLocked() {
	if e.st.capture == nil {
		return
	}
	e.finalizeCaptureLocked()
}

// startStatusTimer launches the 500ms background status timer. It stops
// itself once playing, hasStream, or !ended no longer all hold, so
// terminal status is never masked by a stale tick.
func (e *Engine) startStatusTimer() {
	e.mu.Lock()
	if e.st.statusStop != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.st.statusStop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.mu.Lock()
				if !e.st.playing || !e.st.hasStream || e.st.ended {
					e.st.statusStop = nil
					e.mu.Unlock()
					return
				}
				e.refreshEndOfTrackLocked()
				st := e.snapshotStatusLocked()
				shouldStop := !e.st.playing || e.st.ended
				e.mu.Unlock()

				e.emitStatus(st)
				if shouldStop {
					e.mu.Lock()
					e.st.statusStop = nil
					e.mu.Unlock()
					return
				}
			}
		}
	}()
}
