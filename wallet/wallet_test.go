package wallet

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func credential(id uint64, event string) interfaces.Credential {
	return interfaces.Credential{
		ID:          interfaces.CredentialID(id),
		ProofID:     interfaces.ProofID(id),
		Owner:       interfaces.Principal{0x01},
		EventID:     event,
		MetadataRef: "ipfs://img",
		MintedAt:    time.Unix(1700000000, 0).UTC(),
	}
}

func TestWalletPutGetList(t *testing.T) {
	ctx := context.Background()
	w := New(storage.NewMemoryBackend(), testLogger())

	for _, id := range []uint64{10, 2, 1} {
		require.NoError(t, w.Put(ctx, credential(id, "eth-summit")))
	}

	got, err := w.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, credential(2, "eth-summit"), got)

	_, err = w.Get(ctx, 3)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	list, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []interfaces.CredentialID{1, 2, 10}, []interfaces.CredentialID{list[0].ID, list[1].ID, list[2].ID})
}

func TestWalletPutIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{MemoryBackend: storage.NewMemoryBackend()}
	w := New(backend, testLogger())

	c := credential(1, "eth-summit")
	require.NoError(t, w.Put(ctx, c))
	require.NoError(t, w.Put(ctx, c))
	assert.Equal(t, 1, backend.puts)

	c.MetadataRef = "ipfs://other"
	require.NoError(t, w.Put(ctx, c))
	assert.Equal(t, 2, backend.puts)

	list, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ipfs://other", list[0].MetadataRef)
}

func TestWalletRejectsZeroID(t *testing.T) {
	w := New(storage.NewMemoryBackend(), testLogger())
	err := w.Put(context.Background(), interfaces.Credential{})
	assert.ErrorIs(t, err, interfaces.ErrEmptyInput)
}

func TestWalletSkipsForeignKeys(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, "credentials/notes", []byte("hello")))
	require.NoError(t, backend.Put(ctx, "credentials/7", []byte("{broken")))

	w := New(backend, testLogger())
	require.NoError(t, w.Put(ctx, credential(3, "devcon")))

	list, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, interfaces.CredentialID(3), list[0].ID)
}

func TestWalletFileBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	w := New(backend, testLogger())
	require.NoError(t, w.Put(ctx, credential(1, "eth-summit")))
	require.NoError(t, w.Put(ctx, credential(2, "devcon")))

	reopened := New(backend, testLogger())
	list, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "devcon", list[1].EventID)
}

func TestWalletBackendFailure(t *testing.T) {
	w := New(failingBackend{}, testLogger())
	err := w.Put(context.Background(), credential(1, "eth-summit"))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	_, err = w.List(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

type countingBackend struct {
	*storage.MemoryBackend
	puts int
}

func (c *countingBackend) Put(ctx context.Context, key string, data []byte) error {
	c.puts++
	return c.MemoryBackend.Put(ctx, key, data)
}

type failingBackend struct{}

func (failingBackend) Put(context.Context, string, []byte) error { return interfaces.ErrBackendUnavailable }
func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, interfaces.ErrBackendUnavailable
}
func (failingBackend) List(context.Context, string) ([]string, error) {
	return nil, interfaces.ErrBackendUnavailable
}
func (failingBackend) Available(context.Context) bool { return false }
func (failingBackend) Name() string                   { return "failing" }
func (failingBackend) LocationURI() string            { return "failing://" }
