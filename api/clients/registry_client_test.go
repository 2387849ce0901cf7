package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/proof-credential-registry/api"
	"github.com/ruteri/proof-credential-registry/api/registryhandler"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/ledger/memledger"
	"github.com/ruteri/proof-credential-registry/registry"
	"github.com/ruteri/proof-credential-registry/service"
	"github.com/ruteri/proof-credential-registry/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = interfaces.Principal{0xaa}
	alice = interfaces.Principal{0x01}
)

func newServer(t *testing.T) (*httptest.Server, *memledger.Ledger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := memledger.New(registry.NewRegistry(owner, logger), logger, memledger.WithBlockInterval(5*time.Millisecond),
		// Fixed block time so a resubmission commits to the same digest.
		memledger.WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	l.Start()
	tr := tracker.New(tracker.Config{PollInterval: 2 * time.Millisecond}, l, nil, logger)
	svc := service.New(service.Config{}, l, tr, nil, nil, logger)

	mux := chi.NewRouter()
	registryhandler.NewHandler(svc, logger).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
		tr.Close()
		l.Close()
	})
	return srv, l
}

func TestRegistryClientRoundTrip(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	admin := NewRegistryClient(srv.URL, owner)
	handle, err := admin.SetEventMetadata(ctx, interfaces.EventMetadata{EventID: "eth-summit", DisplayName: "ETH Summit", ImageRef: "ipfs://img"})
	require.NoError(t, err)
	status, err := admin.Wait(ctx, handle, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, interfaces.StateConfirmed, status.State)

	client := NewRegistryClient(srv.URL, alice)
	handle, err = client.SubmitProof(ctx, "eth-summit", []byte("proofA"), nil)
	require.NoError(t, err)

	status, err = client.Wait(ctx, handle, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateConfirmed, status.State)

	polled, err := client.Status(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, status.State, polled.State)

	refreshed, err := client.Refresh(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, status.State, refreshed.State)

	record, err := client.Proof(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "eth-summit", record.EventID)

	ids, err := client.UserProofs(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ProofID{1}, ids)

	ids, err = client.EventProofs(ctx, "eth-summit")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ProofID{1}, ids)

	total, err := client.TotalProofs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	valid, err := client.HasValidProofForEvent(ctx, alice, "eth-summit")
	require.NoError(t, err)
	assert.True(t, valid)

	md, err := client.EventMetadata(ctx, "eth-summit")
	require.NoError(t, err)
	assert.Equal(t, "ETH Summit", md.DisplayName)

	creds, err := client.WalletView(ctx, alice)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "ipfs://img", creds[0].MetadataRef)

	local, err := client.LocalWallet(ctx)
	require.NoError(t, err)
	assert.Empty(t, local)

	// Second identical submission reverts on execution.
	dup, err := client.SubmitProof(ctx, "eth-summit", []byte("proofA"), nil)
	require.NoError(t, err)
	status, err = client.Wait(ctx, dup, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateFailed, status.State)
}

func TestRegistryClientErrors(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	client := NewRegistryClient(srv.URL, alice)

	_, err := client.SubmitProof(ctx, "", []byte("p"), nil)
	assert.ErrorIs(t, err, interfaces.ErrEmptyInput)

	_, err = client.Proof(ctx, 42)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.RequestID)

	_, err = client.Status(ctx, interfaces.SubmissionHandle{0x01})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = NewRegistryClient("http://127.0.0.1:1", alice).TotalProofs(ctx)
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
}

func TestErrorForStatus(t *testing.T) {
	assert.ErrorIs(t, &Error{StatusCode: http.StatusConflict}, interfaces.ErrDuplicateCommitment)
	assert.Nil(t, api.ErrorForStatus(http.StatusTeapot))
}
