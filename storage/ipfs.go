package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

// IPFSBackend implements a keyed storage backend in the mutable file system (MFS)
// of an IPFS node. Keys are path-escaped into a single MFS directory so listing
// needs one call.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the node API at host:port.
// root is the MFS directory holding the values.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	if root == "" {
		root = "/proof-credential-registry"
	}
	root = "/" + strings.Trim(root, "/")

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		timeout:     timeout,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}, nil
}

func (b *IPFSBackend) mfsPath(key string) string {
	return path.Join(b.root, url.PathEscape(key))
}

// Get reads the value stored under key from MFS.
func (b *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	p := b.mfsPath(key)

	reader, err := b.shell.FilesRead(ctx, p)
	if err != nil {
		if isMFSNotFound(err) {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read from IPFS",
			slog.String("path", p),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", p),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Put writes data under key, replacing any previous value.
func (b *IPFSBackend) Put(ctx context.Context, key string, data []byte) error {
	p := b.mfsPath(key)
	err := b.shell.FilesWrite(ctx, p, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		b.log.Error("Failed to write to IPFS", slog.String("path", p), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in IPFS", slog.String("path", p), slog.Int("size", len(data)))
	return nil
}

// List returns the sorted keys under the MFS root that start with prefix.
func (b *IPFSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := b.shell.FilesLs(ctx, b.root)
	if err != nil {
		if isMFSNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	var keys []string
	for _, entry := range entries {
		key, err := url.PathUnescape(entry.Name)
		if err != nil {
			b.log.Warn("Skipping undecodable MFS entry", slog.String("name", entry.Name))
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func isMFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "file does not exist") || strings.Contains(msg, "no link named")
}
