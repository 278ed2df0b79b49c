package utils

import (
	"testing"
	"time"
)

func TestSafeEnv(t *testing.T) {
	const key = "_INTAKE_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestEnvList(t *testing.T) {
	const key = "_INTAKE_TEST_LIST"
	t.Setenv(key, " a@x.io, ,b@x.io ,")
	got := EnvList(key)
	if len(got) != 2 || got[0] != "a@x.io" || got[1] != "b@x.io" {
		t.Fatalf("unexpected list %q", got)
	}
	t.Setenv(key, "")
	if EnvList(key) != nil {
		t.Fatalf("expected nil for empty")
	}
}

func TestEnvDuration(t *testing.T) {
	const key = "_INTAKE_TEST_DURATION"
	cases := map[string]time.Duration{
		"":      time.Minute,
		"90":    90 * time.Second,
		"2h":    2 * time.Hour,
		"bogus": time.Minute,
		"-5m":   time.Minute,
	}
	for raw, want := range cases {
		t.Setenv(key, raw)
		if got := EnvDuration(key, time.Minute); got != want {
			t.Fatalf("%q: got %v want %v", raw, got, want)
		}
	}
}

func TestEnvInt64(t *testing.T) {
	const key = "_INTAKE_TEST_INT"
	t.Setenv(key, "1048576")
	if got := EnvInt64(key, 1); got != 1048576 {
		t.Fatalf("got %d", got)
	}
	t.Setenv(key, "x")
	if got := EnvInt64(key, 7); got != 7 {
		t.Fatalf("got %d", got)
	}
}
