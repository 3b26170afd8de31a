// Package audiocache implements the bounded, content-addressed on-disk
// audio cache: a JSON index, LRU+age eviction, a negative-lookup cache, and
// the finalize-or-discard protocol that promotes a ".part" capture file
// into a permanent entry.
package audiocache

import (
	"fmt"
	"strings"
)

// Key is the cache's identity tuple: (track_id, source_type, source_hash,
// file_index?).
type Key struct {
	TrackID    string
	SourceType string
	SourceHash string
	FileIndex  *uint32
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Filename is the pure, deterministic on-disk base name for this key:
// sanitize(track_id) + "_" + source_type + "_" + sanitize(source_hash),
// with "_f<index>" appended when FileIndex is set. Identical keys always
// produce byte-identical filenames.
func (k Key) Filename() string {
	base := sanitize(k.TrackID) + "_" + k.SourceType + "_" + sanitize(k.SourceHash)
	if k.FileIndex != nil {
		base += fmt.Sprintf("_f%d", *k.FileIndex)
	}
	return base
}

// PartFilename is Filename with the ".part" suffix used for in-progress
// captures.
func (k Key) PartFilename() string {
	return k.Filename() + ".part"
}

func (k Key) String() string { return k.Filename() }
