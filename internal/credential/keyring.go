package credential

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/99designs/keyring"
)

const serviceName = "bhconnect"

// Ring stores session values in the operating system keyring. Unlike the
// SQLite backend it survives terminal restarts.
type Ring struct {
	ring keyring.Keyring
}

// Open returns a Ring backed by the first available system keyring,
// falling back to an encrypted file under configDir.
func Open(configDir string) (*Ring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(configDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("bhconnect-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Ring{ring: ring}, nil
}

// New wraps an existing keyring, e.g. keyring.NewArrayKeyring in tests.
func New(ring keyring.Keyring) *Ring {
	return &Ring{ring: ring}
}

// Get retrieves a value by key. ok is false when the key is absent.
func (r *Ring) Get(key string) (string, bool, error) {
	item, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), true, nil
}

// SetMany stores every pair in key order. Keyrings have no transactions,
// so when a write fails the keys already written are removed again and a
// reader sees no pair at all rather than a mismatched one.
func (r *Ring) SetMany(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i, key := range keys {
		err := r.ring.Set(keyring.Item{
			Key:  key,
			Data: []byte(values[key]),
		})
		if err != nil {
			err = fmt.Errorf("setting credential %q: %w", key, err)
			if rbErr := r.DeleteMany(keys[:i]...); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
	}
	return nil
}

// DeleteMany removes each key, ignoring keys that are already gone.
func (r *Ring) DeleteMany(keys ...string) error {
	for _, key := range keys {
		err := r.ring.Remove(key)
		if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}
	return nil
}
