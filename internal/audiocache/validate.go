package audiocache

import "bytes"

// errorSentinels are substrings that show up in plain-text error bodies
// some resolvers return in place of audio (e.g. YouTube's "Video
// unavailable" HTML fragment).
var errorSentinels = [][]byte{
	[]byte("Video unavailable"),
	[]byte("ERROR"),
	[]byte("Error 404"),
	[]byte("<Error>"),
}

// ValidateContent inspects up to the first 8192 bytes of a captured prefix
// and reports whether it looks like real audio rather than an error page.
// It is permissive: the absence of a positive signal (an "ftyp" box) is not
// itself a rejection reason, only its presence is informative.
func ValidateContent(prefix []byte) (ok bool, reason string) {
	if len(prefix) < int(MinFinalizeBytes) {
		return false, "captured prefix too small"
	}

	head := prefix
	if len(head) > 8192 {
		head = head[:8192]
	}

	lower := bytes.ToLower(head)
	if bytes.Contains(lower, []byte("<!doctype html")) || bytes.Contains(lower, []byte("<html")) {
		return false, "captured prefix looks like an HTML document"
	}

	for _, sentinel := range errorSentinels {
		if bytes.Contains(head, sentinel) {
			return false, "captured prefix contains a known error sentinel"
		}
	}

	// Positive-but-not-required signal: an ISO base media file box ("ftyp")
	// within the first 64 bytes indicates an MP4/M4A container. Its absence
	// does not fail validation.
	_ = hasFtypBox(head)

	return true, ""
}

func hasFtypBox(head []byte) bool {
	limit := 64
	if len(head) < limit {
		limit = len(head)
	}
	return bytes.Contains(head[:limit], []byte("ftyp"))
}
