package playback

import (
	"log"
	"os"

	"github.com/freely-audio/core/internal/audiocache"
)

// flushThreshold is the number of bytes written since the last flush at
// which the capture file is synced, rather than relying on the final close.
const flushThreshold = 100 * 1024

// captureState is the pinned, heap-owned state behind a streaming
// capture's download callback. It is created once per stream and never
// reallocated for the stream's lifetime; the callback touches only this
// struct and never calls back into the engine or the cache.
type captureState struct {
	key audiocache.Key

	partPath string
	file     *os.File

	skipRemaining   int64
	downloadedBytes int64
	totalBytes      *int64
	downloadComplete bool

	sinceFlush int64
}

// openCapture opens the capture file for key at partPath, implementing the
// resume protocol: if a sibling .part already exists, it is opened for
// append and skip_remaining is set to its current length so the stream can
// always be requested from byte 0 and the caller drops the pre-existing
// prefix as it arrives (robust against servers that ignore Range). If no
// .part exists, a fresh one is created.
func openCapture(key audiocache.Key, partPath string, total *int64) (*captureState, error) {
	var existing int64
	if info, err := os.Stat(partPath); err == nil {
		existing = info.Size()
	}

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &captureState{
		key:             key,
		partPath:        partPath,
		file:            f,
		skipRemaining:   existing,
		downloadedBytes: existing,
		totalBytes:      total,
	}, nil
}

// Write implements audiolib.CaptureSink. It is invoked by the audio library
// binding with each chunk of bytes as they arrive from the underlying
// transfer, in order, on the library's own callback goroutine.
func (c *captureState) Write(p []byte) (int, error) {
	n := len(p)

	if c.skipRemaining > 0 {
		if int64(len(p)) <= c.skipRemaining {
			c.skipRemaining -= int64(len(p))
			return n, nil
		}
		p = p[c.skipRemaining:]
		c.skipRemaining = 0
	}

	if len(p) > 0 {
		written, err := c.file.Write(p)
		if err != nil {
			// Per-callback I/O errors are swallowed with a best-effort log;
			// the stream must keep flowing.
			log.Printf("[playback] capture write error for %s: %v", c.partPath, err)
			return n, nil
		}
		c.downloadedBytes += int64(written)
		c.sinceFlush += int64(written)
		if c.sinceFlush >= flushThreshold {
			_ = c.file.Sync()
			c.sinceFlush = 0
		}
	}
	return n, nil
}

// Finish implements audiolib.CaptureSink, standing in for the native
// library's (nil, 0) end-of-download callback. It marks the capture
// complete and flushes the file; the actual finalize-or-discard decision
// happens on end-of-track or stop, not here, so out-of-order
// callback/transport events remain safe.
func (c *captureState) Finish() {
	c.downloadComplete = true
	if c.file != nil {
		_ = c.file.Sync()
	}
}

func (c *captureState) close() {
	if c.file != nil {
		_ = c.file.Close()
	}
}
