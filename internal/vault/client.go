package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"trading-dashboard/config"
)

const healthTimeout = 2 * time.Second

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]string
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose reads return no secrets.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// ReadSecrets reads the dashboard secret from the KV v2 mount and returns its
// string fields. Results are cached after the first successful read.
func (c *Client) ReadSecrets(ctx context.Context) (map[string]string, error) {
	if !c.config.Enabled {
		return map[string]string{}, nil
	}

	c.mu.RLock()
	if c.cache != nil {
		out := copySecrets(c.cache)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %s not found", c.secretPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	out := make(map[string]string, len(data))
	for key := range data {
		if s := getString(data, key); s != "" {
			out[key] = s
		}
	}

	c.mu.Lock()
	c.cache = out
	c.mu.Unlock()

	return copySecrets(out), nil
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

// GetStats reports the Vault connection for the health endpoint
func (c *Client) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"enabled": c.config.Enabled,
		"healthy": true,
	}
	if !c.config.Enabled {
		return stats
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		stats["healthy"] = false
		stats["error"] = err.Error()
	}

	c.mu.RLock()
	stats["cached"] = c.cache != nil
	c.mu.RUnlock()
	return stats
}

// secretPath returns the KV v2 data path of the dashboard secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

// Helper functions
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func copySecrets(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
