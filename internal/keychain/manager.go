// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain keeps taproom secrets in the OS credential store: the
// database DSN and the generation API key. Environment variables take
// precedence over stored values so CI and containers never need a keyring.
package keychain

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "taproom"

// Keys used for storing secrets in the OS keychain.
const (
	KeyDBDSN  = "db_dsn"
	KeyAPIKey = "generation_api_key"
)

// Environment variables consulted before the keychain, in order.
var (
	DSNEnv    = []string{"TAPROOM_DSN", "DATABASE_URL"}
	APIKeyEnv = []string{"GEMINI_API_KEY", "TAPROOM_API_KEY"}
)

// ErrNotFound is returned when a secret is neither in the environment nor
// in the keychain.
var ErrNotFound = errors.New("secret not found")

var (
	globalManager *Manager
	mu            sync.Mutex
)

// Manager provides thread-safe access to the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// NewManager opens the native keyring for this platform.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewWithRing wraps an already opened keyring.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the process-wide manager, opening it on first use.
// A failed open is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

// openRing opens the OS keyring using native platform backends only. There
// is no file fallback.
func openRing() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName: ServiceName,
		PassPrefix:  ServiceName,
	}
	switch runtime.GOOS {
	case "darwin":
		cfg.AllowedBackends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		cfg.AllowedBackends = []keyring.BackendType{keyring.WinCredBackend}
		cfg.WinCredPrefix = ServiceName
	case "linux":
		cfg.AllowedBackends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
		cfg.LibSecretCollectionName = ServiceName
	default:
		return nil, errors.New("secure storage not supported on this OS")
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, errors.New("no OS keychain available; set " + DSNEnv[0] + " and " + APIKeyEnv[0] + " instead")
	}
	return ring, nil
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, err := m.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if len(it.Data) == 0 {
		return "", ErrNotFound
	}
	return string(it.Data), nil
}

func (m *Manager) remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// SaveDBDSN stores the database DSN.
func (m *Manager) SaveDBDSN(dsn string) error { return m.set(KeyDBDSN, dsn) }

// LoadDBDSN retrieves the stored database DSN.
func (m *Manager) LoadDBDSN() (string, error) { return m.get(KeyDBDSN) }

// SaveAPIKey stores the generation API key.
func (m *Manager) SaveAPIKey(key string) error { return m.set(KeyAPIKey, key) }

// LoadAPIKey retrieves the stored generation API key.
func (m *Manager) LoadAPIKey() (string, error) { return m.get(KeyAPIKey) }

// ClearDB removes the stored DSN.
func (m *Manager) ClearDB() error { return m.remove(KeyDBDSN) }

// ClearAll removes every taproom secret.
func (m *Manager) ClearAll() error {
	return errors.Join(m.remove(KeyDBDSN), m.remove(KeyAPIKey))
}

// Source says where a resolved secret came from.
type Source string

const (
	SourceEnv      Source = "env"
	SourceKeychain Source = "keychain"
)

// ResolveDSN returns the DSN from the environment or, failing that, from m.
// m may be nil when no keychain could be opened.
func ResolveDSN(m *Manager) (string, Source, error) {
	return resolve(DSNEnv, m, (*Manager).LoadDBDSN)
}

// ResolveAPIKey returns the generation API key from the environment or m.
func ResolveAPIKey(m *Manager) (string, Source, error) {
	return resolve(APIKeyEnv, m, (*Manager).LoadAPIKey)
}

func resolve(envs []string, m *Manager, load func(*Manager) (string, error)) (string, Source, error) {
	for _, name := range envs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, SourceEnv, nil
		}
	}
	if m == nil {
		return "", "", ErrNotFound
	}
	v, err := load(m)
	if err != nil {
		return "", "", err
	}
	return v, SourceKeychain, nil
}
