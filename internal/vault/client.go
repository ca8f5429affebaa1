// Package vault fetches DNSE feed credentials from HashiCorp Vault, so
// deployments can avoid putting the password in the environment.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Credentials are the DNSE Lightspeed login stored in Vault.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Config holds Vault connection settings. An empty address disables the
// client.
type Config struct {
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// Client wraps the HashiCorp Vault client for credential lookup.
type Client struct {
	client *api.Client
	cfg    Config
}

// NewClient creates a Vault client. Returns nil (no error) when Vault is
// not configured.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "dnse"
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, cfg: cfg}, nil
}

// FetchCredentials reads the DNSE login from the KV v2 store.
func (c *Client) FetchCredentials(ctx context.Context) (*Credentials, error) {
	if c == nil {
		return nil, fmt.Errorf("vault not configured")
	}

	path := fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := &Credentials{
		Username: getString(data, "username"),
		Password: getString(data, "password"),
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("incomplete credentials at %s", path)
	}
	return creds, nil
}

// Health checks the Vault connection.
func (c *Client) Health(context.Context) error {
	if c == nil {
		return nil
	}
	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
