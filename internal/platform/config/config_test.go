package config

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR_SUFFIX", "45s")
	t.Setenv("TEST_DUR_BARE", "30")
	t.Setenv("TEST_DUR_BAD", "soon")

	if d := GetEnvDuration("TEST_DUR_SUFFIX", time.Minute); d != 45*time.Second {
		t.Errorf("suffixed value: got %v", d)
	}
	// Bare integers read as seconds for compatibility with older configs.
	if d := GetEnvDuration("TEST_DUR_BARE", time.Minute); d != 30*time.Second {
		t.Errorf("bare value: got %v", d)
	}
	if d := GetEnvDuration("TEST_DUR_BAD", time.Minute); d != time.Minute {
		t.Errorf("invalid value should fall back: got %v", d)
	}
	if d := GetEnvDuration("TEST_DUR_UNSET", time.Minute); d != time.Minute {
		t.Errorf("unset value should fall back: got %v", d)
	}
}

func TestGetEnvFloatAndBool(t *testing.T) {
	t.Setenv("TEST_FLOAT", "92.5")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BOOL_BAD", "yep")

	if f := GetEnvFloat("TEST_FLOAT", 80); f != 92.5 {
		t.Errorf("got %v", f)
	}
	if f := GetEnvFloat("TEST_FLOAT_UNSET", 80); f != 80 {
		t.Errorf("got %v", f)
	}
	if !GetEnvBool("TEST_BOOL", false) {
		t.Error("true not parsed")
	}
	if GetEnvBool("TEST_BOOL_BAD", false) {
		t.Error("garbage should fall back")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	s := FromEnv()
	if s.Port != "8000" {
		t.Errorf("port default: got %s", s.Port)
	}
	if s.RetentionDays != 30 {
		t.Errorf("retention default: got %d", s.RetentionDays)
	}
	if s.MonitorInterval != 5*time.Second || s.GracePeriod != 10*time.Second {
		t.Errorf("supervisor defaults: %+v", s)
	}
	if s.DiskThreshold != 90 {
		t.Errorf("disk threshold default: got %v", s.DiskThreshold)
	}
}
