package config

import (
	"testing"
)

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE", "memory")
	t.Setenv("SEED_TABLES", " 1, 2 ,,3 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" || cfg.Store != "memory" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := cfg.SeedTables; len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("seed tables = %v", got)
	}
}

func TestGetEnvDefault(t *testing.T) {
	if got := GetEnv("NUDGEEQ_TEST_UNSET_KEY", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(""); len(got) != 0 {
		t.Fatalf("splitList(\"\") = %v", got)
	}
	if got := splitList("24"); len(got) != 1 || got[0] != "24" {
		t.Fatalf("splitList(\"24\") = %v", got)
	}
}
