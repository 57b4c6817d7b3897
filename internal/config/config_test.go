package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.StorageKey != "poker_hands_v1" {
		t.Fatalf("unexpected storage key %q", cfg.StorageKey)
	}
	if cfg.AnalysisTimeout != 60*time.Second {
		t.Fatalf("unexpected analysis timeout %s", cfg.AnalysisTimeout)
	}
	if cfg.Location == nil {
		t.Fatalf("expected location to be resolved")
	}
}

func TestLoadTrimsTrailingSlashFromBaseURL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("analysis.base_url", "https://coach.example.com/ ")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.AnalysisBaseURL != "https://coach.example.com" {
		t.Fatalf("unexpected base url %q", cfg.AnalysisBaseURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value any
	}{
		{name: "empty-database-path", key: "database.path", value: " "},
		{name: "empty-storage-key", key: "storage.key", value: ""},
		{name: "relative-base-url", key: "analysis.base_url", value: "poker-proxy"},
		{name: "short-timeout", key: "analysis.timeout", value: "10ms"},
		{name: "unknown-timezone", key: "clock.timezone", value: "Mars/Olympus"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected error for %s=%v", testCase.key, testCase.value)
			}
		})
	}
}
