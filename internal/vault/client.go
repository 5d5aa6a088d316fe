// Package vault resolves upstream provider API keys from HashiCorp Vault.
// When Vault is disabled the client degrades to an in-memory store so local
// development works from environment variables alone.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/quantgens/quantgens-server/config"
)

// Known provider names.
const (
	ProviderPolygon    = "polygon"
	ProviderExa        = "exa"
	ProviderOpenRouter = "openrouter"
)

// ProviderKey is one upstream credential stored in Vault.
type ProviderKey struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]*ProviderKey // provider -> key cache
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*ProviderKey),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*ProviderKey),
	}, nil
}

// StoreProviderKey stores a provider credential in Vault
func (c *Client) StoreProviderKey(ctx context.Context, key ProviderKey) error {
	if !c.config.Enabled {
		// Store in local cache only (for development/testing)
		c.mu.Lock()
		c.cache[key.Provider] = &key
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"provider": key.Provider,
			"api_key":  key.APIKey,
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(key.Provider), secretData)
	if err != nil {
		return fmt.Errorf("failed to store provider key in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[key.Provider] = &key
	c.mu.Unlock()

	return nil
}

// GetProviderKey retrieves a provider credential from Vault
func (c *Client) GetProviderKey(ctx context.Context, provider string) (*ProviderKey, error) {
	// Check cache first
	c.mu.RLock()
	if cached, ok := c.cache[provider]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("provider key not found and vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider key from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("provider key not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	key := &ProviderKey{
		Provider: getString(data, "provider"),
		APIKey:   getString(data, "api_key"),
	}
	if key.Provider == "" {
		key.Provider = provider
	}

	c.mu.Lock()
	c.cache[provider] = key
	c.mu.Unlock()

	return key, nil
}

// DeleteProviderKey deletes a provider credential from Vault
func (c *Client) DeleteProviderKey(ctx context.Context, provider string) error {
	c.mu.Lock()
	delete(c.cache, provider)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	_, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(provider))
	if err != nil {
		return fmt.Errorf("failed to delete provider key from vault: %w", err)
	}

	return nil
}

// ResolveKey returns the Vault-stored key for a provider, falling back to the
// given environment value when Vault has nothing.
func (c *Client) ResolveKey(ctx context.Context, provider, envValue string) string {
	key, err := c.GetProviderKey(ctx, provider)
	if err != nil || key.APIKey == "" {
		return envValue
	}
	return key.APIKey
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*ProviderKey)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path for a provider
func (c *Client) secretPath(provider string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, provider)
}

// metadataPath returns the KV v2 metadata path for a provider
func (c *Client) metadataPath(provider string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, provider)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
