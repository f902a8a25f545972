package bridge

import "testing"

func headerMap(m map[string]string) func(string) string {
	return func(name string) string { return m[name] }
}

func TestExtractClientID_PrefersForwardedFor(t *testing.T) {
	headers := headerMap(map[string]string{
		"X-Forwarded-For":  "203.0.113.5, 70.41.3.18, 150.172.238.178",
		"X-Real-IP":        "198.51.100.2",
		"CF-Connecting-IP": "192.0.2.9",
	})
	got := ExtractClientID(headers, "peer:1")
	if got != "203.0.113.5" {
		t.Errorf("ExtractClientID() = %q, want first X-Forwarded-For entry", got)
	}
}

func TestExtractClientID_FallsBackToRealIP(t *testing.T) {
	headers := headerMap(map[string]string{
		"X-Real-IP":        "198.51.100.2",
		"CF-Connecting-IP": "192.0.2.9",
	})
	got := ExtractClientID(headers, "peer:1")
	if got != "198.51.100.2" {
		t.Errorf("ExtractClientID() = %q, want X-Real-IP", got)
	}
}

func TestExtractClientID_FallsBackToCFConnectingIP(t *testing.T) {
	headers := headerMap(map[string]string{
		"CF-Connecting-IP": "192.0.2.9",
	})
	got := ExtractClientID(headers, "peer:1")
	if got != "192.0.2.9" {
		t.Errorf("ExtractClientID() = %q, want CF-Connecting-IP", got)
	}
}

func TestExtractClientID_FallsBackToPeerAddr(t *testing.T) {
	got := ExtractClientID(headerMap(nil), "peer:1")
	if got != "peer:1" {
		t.Errorf("ExtractClientID() = %q, want peerAddr", got)
	}
}

func TestExtractClientID_RejectsUnknown(t *testing.T) {
	headers := headerMap(map[string]string{
		"X-Forwarded-For": "unknown",
		"X-Real-IP":       "Unknown",
	})
	got := ExtractClientID(headers, "peer:1")
	if got != "peer:1" {
		t.Errorf("ExtractClientID() = %q, want peerAddr when all headers say unknown", got)
	}
}

func TestExtractClientID_RejectsEmptyHeaders(t *testing.T) {
	headers := headerMap(map[string]string{
		"X-Forwarded-For": "   ",
		"X-Real-IP":       "",
	})
	got := ExtractClientID(headers, "peer:1")
	if got != "peer:1" {
		t.Errorf("ExtractClientID() = %q, want peerAddr when headers are blank", got)
	}
}
