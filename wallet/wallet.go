// Package wallet stores minted credentials locally on top of a keyed storage backend.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

const keyPrefix = "credentials/"

// Wallet implements interfaces.Wallet. Each credential is a JSON document at
// credentials/<id>.
type Wallet struct {
	mu      sync.Mutex
	backend interfaces.KVBackend
	log     *slog.Logger
}

func New(backend interfaces.KVBackend, log *slog.Logger) *Wallet {
	if log == nil {
		log = slog.Default()
	}
	return &Wallet{backend: backend, log: log}
}

func credentialKey(id interfaces.CredentialID) string {
	return keyPrefix + strconv.FormatUint(uint64(id), 10)
}

// Put stores the credential. An identical stored credential is left untouched,
// a differing one is replaced.
func (w *Wallet) Put(ctx context.Context, credential interfaces.Credential) error {
	if credential.ID == 0 {
		return fmt.Errorf("%w: credential id", interfaces.ErrEmptyInput)
	}
	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := credentialKey(credential.ID)
	existing, err := w.backend.Get(ctx, key)
	switch {
	case err == nil && bytes.Equal(existing, data):
		return nil
	case err == nil:
		w.log.Warn("replacing stored credential", "credential_id", credential.ID, "backend", w.backend.Name())
	case !errors.Is(err, interfaces.ErrContentNotFound):
		return fmt.Errorf("read credential %d: %w", credential.ID, err)
	}

	if err := w.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store credential %d: %w", credential.ID, err)
	}
	w.log.Debug("credential stored", "credential_id", credential.ID, "event_id", credential.EventID)
	return nil
}

// Get returns the stored credential or interfaces.ErrNotFound.
func (w *Wallet) Get(ctx context.Context, id interfaces.CredentialID) (interfaces.Credential, error) {
	data, err := w.backend.Get(ctx, credentialKey(id))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return interfaces.Credential{}, fmt.Errorf("%w: credential %d", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return interfaces.Credential{}, fmt.Errorf("read credential %d: %w", id, err)
	}
	return decode(data)
}

// List returns every stored credential ordered by id. Undecodable entries are skipped.
func (w *Wallet) List(ctx context.Context) ([]interfaces.Credential, error) {
	keys, err := w.backend.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	credentials := make([]interfaces.Credential, 0, len(keys))
	for _, key := range keys {
		if _, err := strconv.ParseUint(strings.TrimPrefix(key, keyPrefix), 10, 64); err != nil {
			continue
		}
		data, err := w.backend.Get(ctx, key)
		if errors.Is(err, interfaces.ErrContentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		credential, err := decode(data)
		if err != nil {
			w.log.Warn("skipping undecodable credential", "key", key, "err", err)
			continue
		}
		credentials = append(credentials, credential)
	}

	sort.Slice(credentials, func(i, j int) bool { return credentials[i].ID < credentials[j].ID })
	return credentials, nil
}

func decode(data []byte) (interfaces.Credential, error) {
	var credential interfaces.Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return interfaces.Credential{}, fmt.Errorf("decode credential: %w", err)
	}
	return credential, nil
}
