package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "RECRUITERRM"

var ErrBypassRequiresDryRun = errors.New("completion.bypass can only be used with run.dry_run to avoid sending replies with canned data")

type Config struct {
	IMAP       IMAPConfig       `mapstructure:"imap" yaml:"imap"`
	SMTP       SMTPConfig       `mapstructure:"smtp" yaml:"smtp"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Identity   IdentityConfig   `mapstructure:"identity" yaml:"identity"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox" yaml:"mailbox"`
	Completion CompletionConfig `mapstructure:"completion" yaml:"completion"`
	Run        RunConfig        `mapstructure:"run" yaml:"run"`
	Journal    JournalConfig    `mapstructure:"journal" yaml:"journal"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

type IMAPConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	TLS                bool   `mapstructure:"tls" yaml:"tls"`
	StartTLS           bool   `mapstructure:"starttls" yaml:"starttls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type SMTPConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	TLS                bool   `mapstructure:"tls" yaml:"tls"`
	StartTLS           bool   `mapstructure:"starttls" yaml:"starttls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type AuthConfig struct {
	Username       string `mapstructure:"username" yaml:"username"`
	Password       string `mapstructure:"password" yaml:"password"`
	PasswordSource string `mapstructure:"-" yaml:"-"`
}

// IdentityConfig is who the replies come from.
type IdentityConfig struct {
	Email     string `mapstructure:"email" yaml:"email"`
	Signature string `mapstructure:"signature" yaml:"signature"`
}

type MailboxConfig struct {
	RecruiterFolder string `mapstructure:"recruiter_folder" yaml:"recruiter_folder"`
	DoneFolder      string `mapstructure:"done_folder" yaml:"done_folder"`
	SentFolder      string `mapstructure:"sent_folder" yaml:"sent_folder"`
}

type CompletionConfig struct {
	APIKey       string `mapstructure:"api_key" yaml:"api_key"`
	APIKeySource string `mapstructure:"-" yaml:"-"`
	Organization string `mapstructure:"organization" yaml:"organization"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	Model        string `mapstructure:"model" yaml:"model"`
	MaxTokens    int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	Bypass       bool   `mapstructure:"bypass" yaml:"bypass"`
}

type RunConfig struct {
	DryRun      bool          `mapstructure:"dry_run" yaml:"dry_run"`
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
}

// JournalConfig enables the sqlite reply journal when Path is set.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		IMAP: IMAPConfig{
			Port:     993,
			TLS:      true,
			StartTLS: false,
		},
		SMTP: SMTPConfig{
			Port:     465,
			TLS:      true,
			StartTLS: false,
		},
		Mailbox: MailboxConfig{
			RecruiterFolder: "Recruitment",
			DoneFolder:      "Recruitment/Done",
			SentFolder:      "Sent",
		},
		Completion: CompletionConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 60,
		},
		Run: RunConfig{
			DryRun:      true,
			GracePeriod: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Identity.Email == "" {
		cfg.Identity.Email = cfg.Auth.Username
	}

	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := EnsureDir(); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.Auth.Password != "" {
		masked.Auth.Password = "****"
	}
	if masked.Completion.APIKey != "" {
		masked.Completion.APIKey = "****"
	}
	return masked
}

// setDefaults registers every key so that AutomaticEnv can bind it even
// when no config file is present.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.tls", cfg.IMAP.TLS)
	v.SetDefault("imap.starttls", cfg.IMAP.StartTLS)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)

	v.SetDefault("smtp.host", cfg.SMTP.Host)
	v.SetDefault("smtp.port", cfg.SMTP.Port)
	v.SetDefault("smtp.tls", cfg.SMTP.TLS)
	v.SetDefault("smtp.starttls", cfg.SMTP.StartTLS)
	v.SetDefault("smtp.insecure_skip_verify", cfg.SMTP.InsecureSkipVerify)

	v.SetDefault("auth.username", cfg.Auth.Username)
	v.SetDefault("auth.password", cfg.Auth.Password)

	v.SetDefault("identity.email", cfg.Identity.Email)
	v.SetDefault("identity.signature", cfg.Identity.Signature)

	v.SetDefault("mailbox.recruiter_folder", cfg.Mailbox.RecruiterFolder)
	v.SetDefault("mailbox.done_folder", cfg.Mailbox.DoneFolder)
	v.SetDefault("mailbox.sent_folder", cfg.Mailbox.SentFolder)

	v.SetDefault("completion.api_key", cfg.Completion.APIKey)
	v.SetDefault("completion.organization", cfg.Completion.Organization)
	v.SetDefault("completion.base_url", cfg.Completion.BaseURL)
	v.SetDefault("completion.model", cfg.Completion.Model)
	v.SetDefault("completion.max_tokens", cfg.Completion.MaxTokens)
	v.SetDefault("completion.bypass", cfg.Completion.Bypass)

	v.SetDefault("run.dry_run", cfg.Run.DryRun)
	v.SetDefault("run.grace_period", cfg.Run.GracePeriod)

	v.SetDefault("journal.path", cfg.Journal.Path)
	v.SetDefault("log.level", cfg.Log.Level)
}

func Validate(cfg Config) error {
	if err := ValidateIMAP(cfg); err != nil {
		return err
	}
	if err := ValidateRun(cfg); err != nil {
		return err
	}
	if cfg.Run.DryRun {
		return nil
	}
	return ValidateSMTP(cfg)
}

func ValidateIMAP(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password is required")
	}
	return nil
}

func ValidateSMTP(cfg Config) error {
	if cfg.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password is required")
	}
	return nil
}

// ValidateRun checks the settings the responder needs beyond the mail
// transports.
func ValidateRun(cfg Config) error {
	if cfg.Identity.Email == "" {
		return fmt.Errorf("identity.email is required")
	}
	if cfg.Mailbox.RecruiterFolder == "" {
		return fmt.Errorf("mailbox.recruiter_folder is required")
	}
	if cfg.Mailbox.DoneFolder == "" {
		return fmt.Errorf("mailbox.done_folder is required")
	}
	if cfg.Mailbox.RecruiterFolder == cfg.Mailbox.DoneFolder {
		return fmt.Errorf("mailbox.done_folder must differ from mailbox.recruiter_folder")
	}
	if cfg.Completion.Bypass {
		if !cfg.Run.DryRun {
			return ErrBypassRequiresDryRun
		}
		return nil
	}
	if cfg.Completion.APIKey == "" {
		return fmt.Errorf("completion.api_key is required")
	}
	if cfg.Completion.BaseURL == "" {
		return fmt.Errorf("completion.base_url is required")
	}
	if !cfg.Run.DryRun && cfg.Mailbox.SentFolder == "" {
		return fmt.Errorf("mailbox.sent_folder is required")
	}
	return nil
}
