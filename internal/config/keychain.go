package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const apiTokenAccount = "api_token"

// Keychain reads and writes secrets in the platform secret store.
type Keychain struct{}

func NewKeychain() *Keychain { return &Keychain{} }

func (*Keychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (*Keychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// SecretStore is the read/write side of the keychain.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// GetAPIToken returns the bearer token guarding the HTTP API, generating
// and storing one on first use.
func GetAPIToken(kc SecretStore) (string, error) {
	if tok, err := kc.Get(Service, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(Service, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
