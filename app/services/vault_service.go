package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	vault "github.com/hashicorp/vault/api"
	"github.com/trafficlab/traffic-api/config"
)

// Secret store error constants
var (
	ErrSecretNotFound  = errors.New("secret not found")
	ErrSecretMalformed = errors.New("secret payload is malformed")
)

// SecretStore resolves named secrets into raw credential payloads.
// Integrations reference secrets by name so rotation happens in the store
// without touching integration rows.
type SecretStore interface {
	GetSecret(ctx context.Context, name string) (map[string]any, error)
	HealthCheck(ctx context.Context) error
}

// VaultSecretStore implements SecretStore on HashiCorp Vault KV v2
type VaultSecretStore struct {
	client    *vault.Client
	mountPath string
}

// NewVaultSecretStore creates a secret store backed by Vault
func NewVaultSecretStore(cfg config.VaultConfig) (SecretStore, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		vaultCfg.Timeout = cfg.Timeout
	}

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultSecretStore{
		client:    client,
		mountPath: cfg.MountPath,
	}, nil
}

// GetSecret reads the latest version of a named secret
func (s *VaultSecretStore) GetSecret(ctx context.Context, name string) (map[string]any, error) {
	secret, err := s.client.KVv2(s.mountPath).Get(ctx, name)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	if secret == nil || len(secret.Data) == 0 {
		return nil, ErrSecretMalformed
	}

	return secret.Data, nil
}

// HealthCheck verifies the Vault server is reachable and unsealed
func (s *VaultSecretStore) HealthCheck(ctx context.Context) error {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

// MockSecretStore serves secrets from an in-memory map
type MockSecretStore struct {
	Secrets map[string]map[string]any
}

func NewMockSecretStore() *MockSecretStore {
	return &MockSecretStore{Secrets: make(map[string]map[string]any)}
}

func (s *MockSecretStore) GetSecret(ctx context.Context, name string) (map[string]any, error) {
	secret, ok := s.Secrets[name]
	if !ok {
		log.Printf("mock secret store: %s not found", name)
		return nil, ErrSecretNotFound
	}
	return secret, nil
}

func (s *MockSecretStore) HealthCheck(ctx context.Context) error {
	return nil
}
