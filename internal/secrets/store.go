package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"recruiterrm/internal/config"
)

const (
	keyringPasswordEnv = config.EnvPrefix + "_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = config.EnvPrefix + "_KEYRING_BACKEND"  //nolint:gosec // env var name, not a credential

	backendAuto = "auto"

	// keyringOpenTimeout bounds keyring.Open on Linux, where D-Bus
	// SecretService can hang if gnome-keyring is installed but not running.
	keyringOpenTimeout = 5 * time.Second
)

var (
	ErrSecretNotFound = errors.New("secret not found")

	errMissingKey     = errors.New("missing secret key")
	errMissingValue   = errors.New("missing secret value")
	errNoTTY          = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidBackend = errors.New("invalid keyring backend")
	errKeyringTimeout = errors.New("keyring connection timed out")
)

// Store reads and writes credentials through an OS keyring.
type Store struct {
	Open func() (keyring.Keyring, error)
}

func NewStore() *Store {
	return &Store{Open: openKeyring}
}

func (s *Store) ring() (keyring.Keyring, error) {
	open := s.Open
	if open == nil {
		open = openKeyring
	}
	return open()
}

func (s *Store) Set(key string, value []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errMissingKey
	}
	if len(value) == 0 {
		return errMissingValue
	}

	ring, err := s.ring()
	if err != nil {
		return err
	}

	item := keyring.Item{Key: key, Data: value, Label: config.AppName}
	if err := ring.Set(item); err != nil {
		return wrapKeychainError(fmt.Errorf("store secret: %w", err))
	}
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errMissingKey
	}

	ring, err := s.ring()
	if err != nil {
		return nil, err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, wrapKeychainError(fmt.Errorf("read secret: %w", err))
	}
	return item.Data, nil
}

func (s *Store) SetPassword(username, password string) error {
	return s.Set(PasswordKey(username), []byte(password))
}

func (s *Store) Password(username string) (string, error) {
	data, err := s.Get(PasswordKey(username))
	return string(data), err
}

// SetAPIKey stores the completion API key for an endpoint.
func (s *Store) SetAPIKey(baseURL, apiKey string) error {
	return s.Set(APIKeyKey(baseURL), []byte(apiKey))
}

func (s *Store) APIKey(baseURL string) (string, error) {
	data, err := s.Get(APIKeyKey(baseURL))
	return string(data), err
}

func PasswordKey(username string) string {
	user := normalize(username)
	if user == "" {
		return ""
	}
	return "auth:password:" + user
}

func APIKeyKey(baseURL string) string {
	endpoint := strings.TrimSuffix(normalize(baseURL), "/")
	if endpoint == "" {
		return ""
	}
	return "completion:api_key:" + endpoint
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveBackend picks the keyring backend from the environment, then the
// config file's top-level keyring_backend key, then "auto".
func ResolveBackend() (string, error) {
	if v := normalize(os.Getenv(keyringBackendEnv)); v != "" {
		return v, nil
	}

	path, err := config.ConfigPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path) //nolint:gosec // config path is trusted
	if err != nil {
		if os.IsNotExist(err) {
			return backendAuto, nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}

	var file struct {
		KeyringBackend string `yaml:"keyring_backend"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("parse config %s: %w", path, err)
	}
	if v := normalize(file.KeyringBackend); v != "" {
		return v, nil
	}
	return backendAuto, nil
}

func allowedBackends(backend, goos, dbusAddr string) ([]keyring.BackendType, error) {
	switch backend {
	case "", backendAuto:
		// Headless Linux has no SecretService to talk to.
		if goos == "linux" && dbusAddr == "" {
			return []keyring.BackendType{keyring.FileBackend}, nil
		}
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "secret-service":
		return []keyring.BackendType{keyring.SecretServiceBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain, secret-service, or file)", errInvalidBackend, backend)
	}
}

func filePasswordFunc(password string, passwordSet, isTTY bool) keyring.PromptFunc {
	// An empty passphrase set on purpose is valid.
	if passwordSet {
		return keyring.FixedStringPrompt(password)
	}
	if isTTY {
		return keyring.TerminalPrompt
	}
	return func(string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
	}
}

func openKeyring() (keyring.Keyring, error) {
	dir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, err
	}

	backend, err := ResolveBackend()
	if err != nil {
		return nil, fmt.Errorf("resolve keyring backend: %w", err)
	}

	dbusAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	backends, err := allowedBackends(backend, runtime.GOOS, dbusAddr)
	if err != nil {
		return nil, err
	}

	password, passwordSet := os.LookupEnv(keyringPasswordEnv)
	cfg := keyring.Config{
		ServiceName:              config.AppName,
		KeychainTrustApplication: false,
		AllowedBackends:          backends,
		FileDir:                  dir,
		FilePasswordFunc:         filePasswordFunc(password, passwordSet, term.IsTerminal(int(os.Stdin.Fd()))),
	}

	if runtime.GOOS == "linux" && backend == backendAuto && dbusAddr != "" {
		return openWithTimeout(cfg, keyringOpenTimeout)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

func openWithTimeout(cfg keyring.Config, timeout time.Duration) (keyring.Keyring, error) {
	type result struct {
		ring keyring.Keyring
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		ring, err := keyring.Open(cfg)
		ch <- result{ring, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("open keyring: %w", res.err)
		}
		return res.ring, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v; set %s=file and %s=<password> to use encrypted file storage instead",
			errKeyringTimeout, timeout, keyringBackendEnv, keyringPasswordEnv)
	}
}

// wrapKeychainError adds unlock guidance when the macOS keychain is locked.
func wrapKeychainError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "User interaction is not allowed") {
		return fmt.Errorf("%w\n\nYour macOS keychain is locked. To unlock it, run:\n  security unlock-keychain ~/Library/Keychains/login.keychain-db", err)
	}
	return err
}
