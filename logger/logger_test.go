package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"harness_token", "abc", "version_id", "v1", "Password", "pw", "dangling"})
	if len(out) != 7 {
		t.Fatalf("len: want=7 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("token: want redacted got=%v", out[1])
	}
	if out[3] != "v1" {
		t.Fatalf("version_id: want=v1 got=%v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Fatalf("password: want redacted got=%v", out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("dangling key: want kept got=%v", out[6])
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "test"} {
		log, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		log.With("mode", mode).Debug("hello")
	}
}
