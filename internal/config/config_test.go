package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icemeta/internal/domain"
)

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	t.Setenv("META_DB_PATH", "/tmp/test.sqlite")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("REALM", "acme")
	t.Setenv("PERSISTENCE_STRATEGY", "atomic")
	t.Setenv("TASK_TIMEOUT_MILLIS", "60000")
	t.Setenv("CREDENTIAL_DURATION", "30m")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.sqlite", cfg.MetaDBPath)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "acme", cfg.Realm)
	assert.Equal(t, StrategyAtomic, cfg.Strategy)
	assert.Equal(t, int64(60000), cfg.TaskTimeoutMillis)
	assert.Equal(t, 30*time.Minute, cfg.CredentialDuration)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("META_DB_PATH", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("REALM", "")
	t.Setenv("PERSISTENCE_STRATEGY", "")
	t.Setenv("ENCRYPTION_KEY", "")
	t.Setenv("ADMIN_JWT_SECRET", "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "icemeta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "default", cfg.Realm)
	assert.Equal(t, StrategyTransactional, cfg.Strategy)
	assert.Equal(t, domain.DefaultTaskTimeoutMillis, cfg.TaskTimeoutMillis)
	assert.Equal(t, insecureDefaultKey, cfg.EncryptionKey)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NotEmpty(t, cfg.Warnings)
}

func TestLoadFromEnv_InvalidStrategy(t *testing.T) {
	t.Setenv("PERSISTENCE_STRATEGY", "optimistic")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERSISTENCE_STRATEGY")
}

func TestLoadFromEnv_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ENCRYPTION_KEY", "")
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestLoadFromEnv_ProductionRejectsCORSWildcard(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ENCRYPTION_KEY", "1111111111111111111111111111111111111111111111111111111111111111")
	t.Setenv("ADMIN_JWT_SECRET", "supersecret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR", "": "INFO",
	} {
		cfg := Config{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel().String(), "level %q", level)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	err := LoadDotEnv("/nonexistent/.env")
	if err != nil {
		t.Errorf("expected no error for missing .env, got: %v", err)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_KEY=test_value\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_KEY"); val != "test_value" {
		t.Errorf("TEST_KEY = %q, want %q", val, "test_value")
	}
	_ = os.Unsetenv("TEST_KEY")
}

func TestLoadDotEnv_SkipsComments(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("# comment\nTEST_COMMENT_KEY=value\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_COMMENT_KEY"); val != "value" {
		t.Errorf("TEST_COMMENT_KEY = %q, want %q", val, "value")
	}
	_ = os.Unsetenv("TEST_COMMENT_KEY")
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_PRECEDENCE_KEY", "from_env")

	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_PRECEDENCE_KEY=from_file\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_PRECEDENCE_KEY"); val != "from_env" {
		t.Errorf("TEST_PRECEDENCE_KEY = %q, want %q (env precedence)", val, "from_env")
	}
}
