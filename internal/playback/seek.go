package playback

import (
	"errors"
	"time"

	"github.com/freely-audio/core/internal/audiolib"
	"github.com/freely-audio/core/internal/coreerr"
	"github.com/freely-audio/core/internal/historystore"
)

// seekEpsilon is the "close enough, skip the seek" tolerance.
const seekEpsilon = 100 * time.Millisecond

// SeekResult is what Seek returns on success.
type SeekResult struct {
	Skipped bool // already within seekEpsilon of the target
	Warning bool // set_position returned NOT_AVAILABLE; clock was restarted
}

// Seek clamps posSeconds to [0, duration] when duration is known (else
// [0, +inf)), converts to bytes, and attempts set_position, branching on
// the seek-family error the audio library binding reports.
func (e *Engine) Seek(posSeconds float64) (SeekResult, error) {
	e.mu.Lock()

	if !e.st.hasStream {
		e.mu.Unlock()
		return SeekResult{}, coreerr.New(coreerr.KindSeekError, "no active stream")
	}

	target := time.Duration(posSeconds * float64(time.Second))
	if target < 0 {
		target = 0
	}
	if e.st.hasDuration && target > e.st.duration {
		target = e.st.duration
	}

	handle := e.st.streamHandle
	var currentPos time.Duration
	if bytePos, err := e.lib.GetPosition(handle); err == nil {
		currentPos = time.Duration(e.lib.BytesToSeconds(handle, bytePos) * float64(time.Second))
	}

	if abs(target-currentPos) < seekEpsilon {
		e.mu.Unlock()
		return SeekResult{Skipped: true}, nil
	}
	e.mu.Unlock()

	bytePos, err := e.lib.SecondsToBytes(handle, target.Seconds())
	if err != nil {
		return SeekResult{}, coreerr.Wrap(coreerr.KindInvalidPosition, "convert seek target to bytes", err)
	}

	err = e.lib.SetPosition(handle, bytePos)
	switch {
	case err == nil:
		e.recordHistory(historystore.EventSeek, target, "")
		return SeekResult{}, nil

	case errors.Is(err, audiolib.ErrSeekNotAvailable):
		e.mu.Lock()
		e.st.seekOffset = target
		e.st.startedAt = nowFunc()
		e.st.hasStartedAt = true
		e.st.accumulatedPaused = 0
		e.mu.Unlock()
		return SeekResult{Warning: true}, nil

	case errors.Is(err, audiolib.ErrInvalidPosition):
		return SeekResult{}, coreerr.Wrap(coreerr.KindInvalidPosition, "seek target out of range", err)

	case errors.Is(err, audiolib.ErrNotFile):
		return SeekResult{}, coreerr.Wrap(coreerr.KindSeekNotSupported, "stream does not support seeking", err)

	default:
		// Generic failure: report it but do not invalidate the stream.
		return SeekResult{}, coreerr.Wrap(coreerr.KindSeekError, e.lib.ErrorText(err), err)
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
