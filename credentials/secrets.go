// Package credentials provides access to the secrets simplot needs, such as
// the password of the redis server events are published to.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "simplot"

	// RedisPasswordAccount is the keyring account holding the redis password.
	RedisPasswordAccount = "redis-password"

	// EnvRedisPassword overrides the keyring when set.
	EnvRedisPassword = "SIMPLOT_REDIS_PASSWORD"
)

// Password sources accepted in configuration.
const (
	SourceAuto    = "auto"
	SourceEnv     = "env"
	SourceKeyring = "keyring"
	SourceNone    = "none"
)

var (
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")

	// ErrSecretNotFound indicates no secret is stored.
	ErrSecretNotFound = errors.New("secret not found")
)

// SecretProvider returns a secret from some backing store.
type SecretProvider interface {
	// Get returns the secret, or ErrSecretNotFound.
	Get() (string, error)

	// Description returns a human-readable description of the store.
	Description() string
}

// KeyringProvider stores a secret in the system keyring
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
type KeyringProvider struct {
	mu      sync.Mutex
	account string
}

// NewKeyringProvider creates a KeyringProvider for account.
func NewKeyringProvider(account string) *KeyringProvider {
	return &KeyringProvider{account: account}
}

// Get retrieves the secret from the keyring.
func (p *KeyringProvider) Get() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	secret, err := keyring.Get(keyringService, p.account)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("%w: keyring account %s", ErrSecretNotFound, p.account)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return secret, nil
}

// Set stores the secret in the keyring, replacing any existing value.
func (p *KeyringProvider) Set(secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if secret == "" {
		return errors.New("secret must not be empty")
	}
	if err := keyring.Set(keyringService, p.account, secret); err != nil {
		return fmt.Errorf("%w: storing secret: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes the secret. Deleting a missing secret is not an error.
func (p *KeyringProvider) Delete() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := keyring.Delete(keyringService, p.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Description returns a description of this provider.
func (p *KeyringProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// EnvProvider reads a secret from an environment variable.
// This is primarily for CI environments.
type EnvProvider struct {
	envVar string
}

// NewEnvProvider creates an EnvProvider that reads envVar.
func NewEnvProvider(envVar string) *EnvProvider {
	return &EnvProvider{envVar: envVar}
}

// Get returns the value of the environment variable.
func (p *EnvProvider) Get() (string, error) {
	secret := os.Getenv(p.envVar)
	if secret == "" {
		return "", fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, p.envVar)
	}
	return secret, nil
}

// Description returns a description of this provider.
func (p *EnvProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// RedisPasswordProvider returns the provider for the given password source.
// The auto source prefers SIMPLOT_REDIS_PASSWORD and falls back to the
// keyring. The none source returns a nil provider.
func RedisPasswordProvider(source string) (SecretProvider, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", SourceAuto:
		if os.Getenv(EnvRedisPassword) != "" {
			return NewEnvProvider(EnvRedisPassword), nil
		}
		return NewKeyringProvider(RedisPasswordAccount), nil
	case SourceEnv:
		return NewEnvProvider(EnvRedisPassword), nil
	case SourceKeyring:
		return NewKeyringProvider(RedisPasswordAccount), nil
	case SourceNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown password source %q (valid: auto, env, keyring, none)", source)
	}
}

// RedisPassword resolves the redis password for source. A missing secret
// yields an empty password so that unauthenticated servers work without
// setup.
func RedisPassword(source string) (string, error) {
	provider, err := RedisPasswordProvider(source)
	if err != nil || provider == nil {
		return "", err
	}

	secret, err := provider.Get()
	if errors.Is(err, ErrSecretNotFound) {
		return "", nil
	}
	return secret, err
}

// IsKeyringAvailable checks if the system keyring is accessible.
func IsKeyringAvailable() bool {
	_, err := NewKeyringProvider(RedisPasswordAccount).Get()
	return err == nil || errors.Is(err, ErrSecretNotFound)
}

// MaskSecret returns a masked version of the secret for display.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
