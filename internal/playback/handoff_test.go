package playback

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHandoffToCacheFileSwapsActiveStream(t *testing.T) {
	eng, lib, _ := newTestEngine(t)
	dir := t.TempDir()

	remote := filepath.Join(dir, "remote.mp3")
	os.WriteFile(remote, []byte("x"), 0o644)
	if err := eng.SimplePlay("file://" + remote); err != nil {
		t.Fatal(err)
	}

	eng.mu.Lock()
	oldHandle := eng.st.streamHandle
	eng.mu.Unlock()

	cached := filepath.Join(dir, "cached.mp3")
	os.WriteFile(cached, []byte("y"), 0o644)

	if err := eng.HandoffToCacheFile(cached); err != nil {
		t.Fatal(err)
	}

	eng.mu.Lock()
	newHandle := eng.st.streamHandle
	newURL := eng.st.url
	eng.mu.Unlock()

	if newHandle == oldHandle {
		t.Error("expected a new stream handle after handoff")
	}
	if newURL != "file://"+cached {
		t.Errorf("expected url to point at cached file, got %q", newURL)
	}

	lib.mu.Lock()
	_, stillOpen := lib.streams[oldHandle]
	lib.mu.Unlock()
	if stillOpen {
		t.Error("expected old stream to be freed after handoff")
	}

	st := eng.Status()
	if !st.Playing {
		t.Error("expected playback to continue after handoff")
	}
}
