package cli

import (
	"errors"
	"os"

	"recruiterrm/internal/config"
	"recruiterrm/internal/secrets"
)

// loadConfig resolves secrets in order: environment, config file, keyring.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	return resolveSecrets(cfg, secrets.NewStore())
}

func resolveSecrets(cfg config.Config, store *secrets.Store) (config.Config, error) {
	if _, ok := os.LookupEnv(config.EnvPrefix + "_AUTH_PASSWORD"); ok && cfg.Auth.Password != "" {
		cfg.Auth.PasswordSource = "env"
	} else if cfg.Auth.Password != "" {
		cfg.Auth.PasswordSource = "config"
	} else if cfg.Auth.Username != "" {
		password, err := store.Password(cfg.Auth.Username)
		switch {
		case err == nil:
			cfg.Auth.Password = password
			cfg.Auth.PasswordSource = "keyring"
		case !errors.Is(err, secrets.ErrSecretNotFound):
			return cfg, err
		}
	}

	if cfg.Completion.Bypass {
		return cfg, nil
	}
	if _, ok := os.LookupEnv(config.EnvPrefix + "_COMPLETION_API_KEY"); ok && cfg.Completion.APIKey != "" {
		cfg.Completion.APIKeySource = "env"
	} else if cfg.Completion.APIKey != "" {
		cfg.Completion.APIKeySource = "config"
	} else if cfg.Completion.BaseURL != "" {
		apiKey, err := store.APIKey(cfg.Completion.BaseURL)
		switch {
		case err == nil:
			cfg.Completion.APIKey = apiKey
			cfg.Completion.APIKeySource = "keyring"
		case !errors.Is(err, secrets.ErrSecretNotFound):
			return cfg, err
		}
	}

	return cfg, nil
}
