package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Matching.K != 10 || cfg.Matching.TopN != 3 || cfg.Matching.BatchSize != 10 {
		t.Fatalf("unexpected matching defaults: %+v", cfg.Matching)
	}
	if cfg.Matching.Threshold != 70 {
		t.Fatalf("expected threshold 70, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.LLMTimeout != 90*time.Second {
		t.Fatalf("unexpected llm timeout %v", cfg.Matching.LLMTimeout)
	}
	if cfg.Index.Backend != "memory" || cfg.Index.Retain != 2 || cfg.Index.BuildTimeout != 10*time.Minute {
		t.Fatalf("unexpected index defaults: %+v", cfg.Index)
	}
	if len(cfg.Matching.OpsContacts) != 0 {
		t.Fatalf("expected no ops contacts, got %v", cfg.Matching.OpsContacts)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("INDEX_BACKEND", "Qdrant")
	t.Setenv("MATCH_THRESHOLD", "55.5")
	t.Setenv("MATCH_OPS_CONTACTS", "ops@example.com, , recruiting@example.com")
	t.Setenv("MATCH_CALL_TIMEOUT", "5s")
	t.Setenv("INDEX_BUILD_TIMEOUT", "90s")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected port override, got %q", cfg.Server.Port)
	}
	if cfg.Index.Backend != "qdrant" {
		t.Fatalf("expected lower-cased backend, got %q", cfg.Index.Backend)
	}
	if cfg.Matching.Threshold != 55.5 {
		t.Fatalf("expected threshold override, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.CallTimeout != 5*time.Second {
		t.Fatalf("expected call timeout override, got %v", cfg.Matching.CallTimeout)
	}
	if cfg.Index.BuildTimeout != 90*time.Second {
		t.Fatalf("expected build timeout override, got %v", cfg.Index.BuildTimeout)
	}
	want := []string{"ops@example.com", "recruiting@example.com"}
	if len(cfg.Matching.OpsContacts) != len(want) {
		t.Fatalf("unexpected ops contacts %v", cfg.Matching.OpsContacts)
	}
	for i := range want {
		if cfg.Matching.OpsContacts[i] != want[i] {
			t.Fatalf("unexpected ops contacts %v", cfg.Matching.OpsContacts)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("matching:\n  top_n: 5\nindex:\n  retain: 4\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Matching.TopN != 5 || cfg.Index.Retain != 4 {
		t.Fatalf("config file values not applied: %+v %+v", cfg.Matching, cfg.Index)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "backend", key: "INDEX_BACKEND", val: "faiss"},
		{name: "retain", key: "INDEX_RETAIN", val: "0"},
		{name: "k", key: "MATCH_K", val: "0"},
		{name: "top n", key: "MATCH_TOP_N", val: "-1"},
		{name: "batch size", key: "MATCH_BATCH_SIZE", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := load(viper.New()); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Host: "db", Port: "5433", User: "u", Password: "p", DBName: "n"}}
	want := "host=db port=5433 user=u password=p dbname=n sslmode=disable"
	if got := cfg.GetDatabaseDSN(); got != want {
		t.Fatalf("GetDatabaseDSN() = %q, want %q", got, want)
	}
}
