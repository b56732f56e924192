package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://qeek:qeek@db:5432/qeek?sslmode=disable")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ALLOW_SEEDING", "true")

	cfgPath := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost:5432/qeek"
redisAddr: "localhost:6379"
logLevel: "info"
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL != "postgres://qeek:qeek@db:5432/qeek?sslmode=disable" {
		t.Errorf("DATABASE_URL override not applied: %q", cfg.DatabaseURL)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("OPENAI_API_KEY override not applied: %q", cfg.OpenAIAPIKey)
	}
	if !cfg.AllowSeeding {
		t.Error("ALLOW_SEEDING=true not applied")
	}
	if cfg.GenerationModel != "gpt-4o" {
		t.Errorf("default generation model = %q, want gpt-4o", cfg.GenerationModel)
	}
	if cfg.AITimeout != "15s" {
		t.Errorf("default aiTimeout = %q, want 15s", cfg.AITimeout)
	}
	if cfg.SessionStrategy != SessionStrategyRedis {
		t.Errorf("default session strategy = %q, want redis", cfg.SessionStrategy)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadRequiresPortAndDatabase(t *testing.T) {
	cfgPath := writeConfig(t, `
logLevel: "info"
redisAddr: "localhost:6379"
`)
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("err = %v, want missing port", err)
	}

	cfgPath = writeConfig(t, `
port: "8080"
redisAddr: "localhost:6379"
`)
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "databaseURL is required") {
		t.Fatalf("err = %v, want missing databaseURL", err)
	}
}

func TestLoadSessionStrategyValidation(t *testing.T) {
	cfgPath := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost:5432/qeek"
sessionStrategy: "jwt"
`)
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "jwtSecret is required") {
		t.Fatalf("err = %v, want missing jwtSecret", err)
	}

	cfgPath = writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost:5432/qeek"
sessionStrategy: "cookie"
`)
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "unknown sessionStrategy") {
		t.Fatalf("err = %v, want unknown strategy", err)
	}
}

func TestParseDurations(t *testing.T) {
	ttl, err := ParseSessionTTL("24h")
	if err != nil || ttl != 24*time.Hour {
		t.Fatalf("ParseSessionTTL = %v, %v", ttl, err)
	}
	timeout, err := ParseAITimeout("15s")
	if err != nil || timeout != 15*time.Second {
		t.Fatalf("ParseAITimeout = %v, %v", timeout, err)
	}
	if _, err := ParseAITimeout("soon"); err == nil {
		t.Fatal("invalid duration accepted")
	}
	if d, err := ParseResourceCacheTTL(""); err != nil || d != 0 {
		t.Fatalf("empty TTL should parse to zero, got %v, %v", d, err)
	}
}
