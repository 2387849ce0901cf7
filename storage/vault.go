package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

// VaultBackend implements a keyed storage backend on a HashiCorp Vault KV v2 mount.
// Values are stored base64 encoded under the "content" field.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "wallets/0xabc")
//   - token: Vault token, may be empty when clientCert is used
//   - clientCert: optional TLS client certificate for cert auth
func NewVaultBackend(address, mountPath, dataPath, token string, clientCert *tls.Certificate, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	if clientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{*clientCert}},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Keys are path-escaped so a key never creates nested secrets.
func (b *VaultBackend) secretPath(kind, key string) string {
	return path.Join(b.mountPath, kind, b.dataPath, url.PathEscape(key))
}

// Get reads the latest version of the secret stored under key.
func (b *VaultBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	p := b.secretPath("data", key)

	secret, err := b.client.Logical().ReadWithContext(ctx, p)
	if err != nil {
		b.log.Error("Failed to read from Vault", slog.String("path", p), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// Deleted versions come back with nil data.
		return nil, interfaces.ErrContentNotFound
	}
	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data at %s", p)
	}
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Debug("Fetched content from Vault",
		slog.String("path", p),
		slog.Duration("duration", time.Since(start)))
	return decoded, nil
}

// Put writes a new version of the secret stored under key.
func (b *VaultBackend) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	p := b.secretPath("data", key)

	_, err := b.client.Logical().WriteWithContext(ctx, p, map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		b.log.Error("Failed to write to Vault", slog.String("path", p), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in Vault",
		slog.String("path", p),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// List reads the metadata listing of the data path and filters by prefix.
func (b *VaultBackend) List(ctx context.Context, prefix string) ([]string, error) {
	p := path.Join(b.mountPath, "metadata", b.dataPath)
	secret, err := b.client.Logical().ListWithContext(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	var keys []string
	for _, item := range raw {
		name, ok := item.(string)
		if !ok || strings.HasSuffix(name, "/") {
			continue
		}
		key, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Available checks that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}
	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}
