package storage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

// StorageBackendFactory creates keyed storage backends from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: logger}
}

// BackendFor creates a storage backend from a location.
//
// Supported schemes:
//   - file:///absolute/path or file://./relative/path
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=minio:9000
//   - ipfs://host:port/mfs/root?timeout=30s
//   - vault://host:port/mount/path?tls=false (token from VAULT_TOKEN)
//   - memory://
func (sf *StorageBackendFactory) BackendFor(location interfaces.StorageBackendLocation) (interfaces.KVBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "file":
		return sf.createFileBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of locations.
// Locations that fail to produce a backend are skipped with a warning.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.KVBackend, error) {
	backends := make([]interfaces.KVBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.BackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.KVBackend, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc)
	}

	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.KVBackend, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in s3 URI", interfaces.ErrInvalidLocationURI)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
	} else {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if accessKey == "" {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations will fail")
	}

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.KVBackend, error) {
	host, port, found := strings.Cut(loc.Host, ":")
	if !found || port == "" {
		port = "5001"
	}
	if host == "" {
		host = "localhost"
	}

	timeout := 30 * time.Second
	if raw := loc.GetParam("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ipfs timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, loc.Path, timeout, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.KVBackend, error) {
	mount, dataPath, _ := strings.Cut(strings.TrimPrefix(loc.Path, "/"), "/")
	if loc.Host == "" || mount == "" {
		return nil, fmt.Errorf("%w: vault URI needs host and mount", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if loc.GetParam("tls") == "false" {
		scheme = "http"
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, loc.Host), mount, dataPath, os.Getenv("VAULT_TOKEN"), nil, sf.log)
}
