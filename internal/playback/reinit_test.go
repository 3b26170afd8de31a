package playback

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReinitPreservingPlaybackRestoresPauseAndPosition(t *testing.T) {
	eng, lib, _ := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	os.WriteFile(path, []byte("x"), 0o644)

	if err := eng.SimplePlay("file://" + path); err != nil {
		t.Fatal(err)
	}

	eng.mu.Lock()
	handle := eng.st.streamHandle
	eng.mu.Unlock()

	// Simulate having played to 10s before a device settings change forces
	// a reinit.
	lib.mu.Lock()
	lib.streams[handle].position = 44100 * 10
	lib.mu.Unlock()

	if err := eng.Pause(); err != nil {
		t.Fatal(err)
	}

	if err := eng.ReinitPreservingPlayback(); err != nil {
		t.Fatal(err)
	}

	st := eng.Status()
	if st.Playing {
		t.Error("expected playback to remain paused after reinit")
	}

	pos := st.Position.Seconds()
	if pos < 9.5 || pos > 10.5 {
		t.Errorf("expected restored position near 10s, got %v", pos)
	}
}
