package bridge

import "strings"

// ExtractClientID resolves the client identity used as a rate-limit
// key only — never for authorization. It checks headers in order and
// falls back to the raw peer address: X-Forwarded-For (first comma
// token) -> X-Real-IP -> CF-Connecting-IP -> peerAddr.
func ExtractClientID(headerFunc func(string) string, peerAddr string) string {
	if v := firstToken(headerFunc("X-Forwarded-For")); isUsable(v) {
		return v
	}
	if v := strings.TrimSpace(headerFunc("X-Real-IP")); isUsable(v) {
		return v
	}
	if v := strings.TrimSpace(headerFunc("CF-Connecting-IP")); isUsable(v) {
		return v
	}
	return peerAddr
}

func firstToken(v string) string {
	if idx := strings.IndexByte(v, ','); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}

func isUsable(v string) bool {
	return v != "" && !strings.EqualFold(v, "unknown")
}
