package resolver

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

var youtubeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
var youtubeVParamRe = regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`)

func fnv64aHex(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DeriveSourceHash computes the composite key's source_hash component for
// sourceType/sourceValue, per the play-with-source algorithm's step 1:
//   - youtube: the 11-character video id, extracted from a bare id or a
//     "v=" query parameter.
//   - torrent: the lowercase info-hash from a magnet xt=urn:btih:, or the
//     value itself lowercased if it is already a bare hash.
//   - http: the first 16 hex characters of an FNV-1a 64-bit hash of the URL.
//   - local: the first 16 hex characters of an FNV-1a 64-bit hash of the
//     path.
//   - otherwise: the first 8 hex characters of an FNV-1a 64-bit hash of the
//     value.
func DeriveSourceHash(sourceType SourceType, sourceValue string) string {
	switch sourceType {
	case SourceYouTube:
		if youtubeIDRe.MatchString(sourceValue) {
			return sourceValue
		}
		if m := youtubeVParamRe.FindStringSubmatch(sourceValue); m != nil {
			return m[1]
		}
		return truncate(fnv64aHex(sourceValue), 11)
	case SourceTorrent:
		hash, err := InfoHashFromMagnetOrValue(sourceValue)
		if err != nil {
			return strings.ToLower(sourceValue)
		}
		return hash
	case SourceHTTP:
		return truncate(fnv64aHex(sourceValue), 16)
	case SourceLocal:
		return truncate(fnv64aHex(sourceValue), 16)
	default:
		return truncate(fnv64aHex(sourceValue), 8)
	}
}
