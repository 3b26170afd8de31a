package playback

import (
	"testing"
	"time"
)

func TestDedupeWindowCachedExpiresAfter500ms(t *testing.T) {
	eng := &Engine{st: newState()}
	base := time.Now()
	nowFunc = func() time.Time { return base }
	defer func() { nowFunc = time.Now }()

	if dup := eng.checkDedupeLocked("k1", true, "trackA", "http", "hashA", nil); dup {
		t.Fatal("first start should never be a dedupe")
	}

	nowFunc = func() time.Time { return base.Add(400 * time.Millisecond) }
	if dup := eng.checkDedupeLocked("k1", true, "trackA", "http", "hashA", nil); !dup {
		t.Error("expected dedupe within the 500ms cached window")
	}

	nowFunc = func() time.Time { return base.Add(600 * time.Millisecond) }
	if dup := eng.checkDedupeLocked("k1", true, "trackA", "http", "hashA", nil); dup {
		t.Error("expected no dedupe past the 500ms cached window")
	}
}

func TestDedupeWindowUncachedIsLonger(t *testing.T) {
	eng := &Engine{st: newState()}
	base := time.Now()
	nowFunc = func() time.Time { return base }
	defer func() { nowFunc = time.Now }()

	eng.checkDedupeLocked("k2", false, "trackB", "http", "hashB", nil)

	nowFunc = func() time.Time { return base.Add(800 * time.Millisecond) }
	if dup := eng.checkDedupeLocked("k2", false, "trackB", "http", "hashB", nil); !dup {
		t.Error("expected dedupe within the 1000ms uncached window")
	}

	nowFunc = func() time.Time { return base.Add(1200 * time.Millisecond) }
	if dup := eng.checkDedupeLocked("k2", false, "trackB", "http", "hashB", nil); dup {
		t.Error("expected no dedupe past the 1000ms uncached window")
	}
}

func TestDedupeDistinctKeysDoNotSuppress(t *testing.T) {
	eng := &Engine{st: newState()}
	if dup := eng.checkDedupeLocked("a", true, "trackA", "http", "hashA", nil); dup {
		t.Fatal("unexpected dedupe for first key a")
	}
	if dup := eng.checkDedupeLocked("b", true, "trackB", "http", "hashB", nil); dup {
		t.Fatal("distinct key b should not be suppressed by key a's recency")
	}
}

// TestDedupeCurrentlyPlayingSuppressesRegardlessOfWindow covers the
// currently-playing half of the rule: a duplicate start for the exact
// track that is actively playing right now must be suppressed even if the
// last recorded start for its composite key is well outside either
// window.
func TestDedupeCurrentlyPlayingSuppressesRegardlessOfWindow(t *testing.T) {
	eng := &Engine{st: newState()}
	base := time.Now()
	nowFunc = func() time.Time { return base }
	defer func() { nowFunc = time.Now }()

	eng.st.playing = true
	eng.st.trackID = "trackA"
	eng.st.sourceType = "http"
	eng.st.sourceHash = "hashA"

	// Simulate the key's last recorded start being long past both windows.
	eng.st.recent["k1"] = recentStart{at: base.Add(-time.Hour), hadCache: false}

	if dup := eng.checkDedupeLocked("k1", false, "trackA", "http", "hashA", nil); !dup {
		t.Error("expected dedupe for a track that is currently playing, regardless of elapsed time")
	}
}

func TestDedupeCurrentlyPlayingDifferentFileIndexNotSuppressed(t *testing.T) {
	eng := &Engine{st: newState()}
	idx1 := uint32(1)
	idx2 := uint32(2)

	eng.st.playing = true
	eng.st.trackID = "trackA"
	eng.st.sourceType = "torrent"
	eng.st.sourceHash = "hashA"
	eng.st.fileIndex = &idx1

	if dup := eng.checkDedupeLocked("k1", false, "trackA", "torrent", "hashA", &idx2); dup {
		t.Error("expected no dedupe when file index differs even though the rest of identity matches")
	}
}
