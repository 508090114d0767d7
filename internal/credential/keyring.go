package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "mailbuddy"

// Keys under which the secrets are stored.
const (
	EmailPassword = "email-password"
	OpenAIAPIKey  = "openai-api-key"
)

// Environment variables that take precedence over the keyring.
const (
	EmailPasswordEnv = "MAILBUDDY_EMAIL_PASSWORD"
	OpenAIAPIKeyEnv  = "OPENAI_API_KEY"
)

// ErrNotSet is returned by Resolve when neither the environment nor the
// keyring holds a value.
var ErrNotSet = errors.New("credential not set")

// open is replaced in tests.
var open = openKeyring

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailbuddy/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailbuddy-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotSet)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Label: "mailbuddy " + key,
		Data:  []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Resolve returns the secret from envVar if set, otherwise from the
// keyring under key.
func Resolve(key, envVar string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}

	v, err := Get(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotSet)
	}
	return v, nil
}
