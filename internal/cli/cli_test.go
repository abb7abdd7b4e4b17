package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"recruiterrm/internal/config"
	"recruiterrm/internal/secrets"
)

func newTestStore(t *testing.T) *secrets.Store {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	return &secrets.Store{Open: func() (keyring.Keyring, error) { return ring, nil }}
}

func TestResolveSecretsFromKeyring(t *testing.T) {
	t.Setenv(config.EnvPrefix+"_AUTH_PASSWORD", "")
	t.Setenv(config.EnvPrefix+"_COMPLETION_API_KEY", "")
	store := newTestStore(t)
	if err := store.SetPassword("me@example.com", "imap-secret"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.SetAPIKey("https://api.openai.com/v1", "sk-test"); err != nil {
		t.Fatalf("set api key: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Auth.Username = "me@example.com"

	got, err := resolveSecrets(cfg, store)
	if err != nil {
		t.Fatalf("resolve secrets: %v", err)
	}
	if got.Auth.Password != "imap-secret" || got.Auth.PasswordSource != "keyring" {
		t.Fatalf("unexpected password resolution: %q from %q", got.Auth.Password, got.Auth.PasswordSource)
	}
	if got.Completion.APIKey != "sk-test" || got.Completion.APIKeySource != "keyring" {
		t.Fatalf("unexpected api key resolution: %q from %q", got.Completion.APIKey, got.Completion.APIKeySource)
	}
}

func TestResolveSecretsPrefersConfiguredValues(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPassword("me@example.com", "from-keyring"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Auth.Username = "me@example.com"
	cfg.Auth.Password = "from-env"
	cfg.Completion.APIKey = "sk-env"
	t.Setenv(config.EnvPrefix+"_AUTH_PASSWORD", "from-env")
	t.Setenv(config.EnvPrefix+"_COMPLETION_API_KEY", "")
	os.Unsetenv(config.EnvPrefix + "_COMPLETION_API_KEY")

	got, err := resolveSecrets(cfg, store)
	if err != nil {
		t.Fatalf("resolve secrets: %v", err)
	}
	if got.Auth.Password != "from-env" || got.Auth.PasswordSource != "env" {
		t.Fatalf("expected env password, got %q from %q", got.Auth.Password, got.Auth.PasswordSource)
	}
	if got.Completion.APIKeySource != "config" {
		t.Fatalf("expected config api key source, got %q", got.Completion.APIKeySource)
	}
}

func TestResolveSecretsSkipsAPIKeyWhenBypassing(t *testing.T) {
	store := &secrets.Store{Open: func() (keyring.Keyring, error) {
		t.Fatalf("keyring should not be opened")
		return nil, nil
	}}

	cfg := config.DefaultConfig()
	cfg.Completion.Bypass = true

	got, err := resolveSecrets(cfg, store)
	if err != nil {
		t.Fatalf("resolve secrets: %v", err)
	}
	if got.Completion.APIKey != "" {
		t.Fatalf("expected no api key, got %q", got.Completion.APIKey)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "WARN")
	ctx := context.Background()

	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should be disabled at warn level")
	}
	logger.Warn("careful", "folder", "Recruitment")
	if !strings.Contains(buf.String(), "folder=Recruitment") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}

	if !newLogger(&buf, "nonsense").Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("unknown level should fall back to info")
	}
	if !newLogger(&buf, "debug").Enabled(ctx, slog.LevelDebug) {
		t.Fatalf("debug level should enable debug")
	}
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"unexpected"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}
