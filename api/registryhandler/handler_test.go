package registryhandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/proof-credential-registry/api"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/ledger/memledger"
	"github.com/ruteri/proof-credential-registry/registry"
	"github.com/ruteri/proof-credential-registry/service"
	"github.com/ruteri/proof-credential-registry/storage"
	"github.com/ruteri/proof-credential-registry/tracker"
	"github.com/ruteri/proof-credential-registry/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = interfaces.Principal{0xaa}
	alice = interfaces.Principal{0x01}
)

type testServer struct {
	ledger *memledger.Ledger
	mux    *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := memledger.New(registry.NewRegistry(owner, logger), logger)
	tr := tracker.New(tracker.Config{PollInterval: 2 * time.Millisecond, MaxPollInterval: 10 * time.Millisecond}, l, nil, logger)
	svc := service.New(service.Config{MonitorTimeout: time.Second}, l, tr, wallet.New(storage.NewMemoryBackend(), logger), nil, logger)
	t.Cleanup(func() {
		svc.Close()
		tr.Close()
	})

	mux := chi.NewRouter()
	NewHandler(svc, logger).RegisterRoutes(mux)
	return &testServer{ledger: l, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path string, principal *interfaces.Principal, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if principal != nil {
		req.Header.Set(api.PrincipalHeader, principal.String())
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSubmitAndQuery(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/events/eth-summit", &owner, api.EventMetadataRequest{DisplayName: "ETH Summit", ImageRef: "ipfs://summit"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	s.ledger.Mine()

	w = s.do(t, http.MethodPost, "/api/proofs", &alice, api.SubmitProofRequest{EventID: "eth-summit", ProofData: []byte("proofA")})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	handle := decodeBody[api.HandleResponse](t, w).Handle
	s.ledger.Mine()

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/submissions/%s/wait?timeout=2s", handle), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decodeBody[interfaces.ConfirmationStatus](t, w)
	assert.Equal(t, interfaces.StateConfirmed, status.State)
	require.NotNil(t, status.MintedCredentialID)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/submissions/%s", handle), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, status.State, decodeBody[interfaces.ConfirmationStatus](t, w).State)

	w = s.do(t, http.MethodGet, "/api/proofs/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	record := decodeBody[interfaces.ProofRecord](t, w)
	assert.Equal(t, alice, record.Submitter)
	assert.True(t, record.Valid)

	w = s.do(t, http.MethodGet, "/api/proofs/count", nil, nil)
	assert.Equal(t, uint64(1), decodeBody[api.CountResponse](t, w).Total)

	w = s.do(t, http.MethodGet, "/api/proofs?submitter="+alice.String(), nil, nil)
	assert.Equal(t, []interfaces.ProofID{1}, decodeBody[api.ProofIDsResponse](t, w).ProofIDs)

	w = s.do(t, http.MethodGet, "/api/events/eth-summit/proofs", nil, nil)
	assert.Equal(t, []interfaces.ProofID{1}, decodeBody[api.ProofIDsResponse](t, w).ProofIDs)

	w = s.do(t, http.MethodGet, "/api/events/devcon/proofs", nil, nil)
	assert.Equal(t, []interfaces.ProofID{}, decodeBody[api.ProofIDsResponse](t, w).ProofIDs)

	w = s.do(t, http.MethodGet, "/api/events/eth-summit/valid/"+alice.String(), nil, nil)
	assert.True(t, decodeBody[api.ValidResponse](t, w).Valid)

	w = s.do(t, http.MethodGet, "/api/events/eth-summit", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ETH Summit", decodeBody[interfaces.EventMetadata](t, w).DisplayName)

	w = s.do(t, http.MethodGet, "/api/credentials/"+alice.String(), nil, nil)
	creds := decodeBody[api.CredentialsResponse](t, w).Credentials
	require.Len(t, creds, 1)
	assert.Equal(t, "ipfs://summit", creds[0].MetadataRef)

	w = s.do(t, http.MethodGet, "/api/wallet", nil, nil)
	assert.Len(t, decodeBody[api.CredentialsResponse](t, w).Credentials, 1)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/proofs", &alice, api.SubmitProofRequest{EventID: "eth-summit", ProofData: []byte("proofA")})
	require.Equal(t, http.StatusAccepted, w.Code)
	s.ledger.Mine()

	unknownHandle := interfaces.SubmissionHandle{0x42}

	tests := []struct {
		name      string
		method    string
		path      string
		principal *interfaces.Principal
		body      any
		want      int
	}{
		{"empty event id", http.MethodPost, "/api/proofs", &alice, api.SubmitProofRequest{ProofData: []byte("p")}, http.StatusBadRequest},
		{"empty payload", http.MethodPost, "/api/proofs", &alice, api.SubmitProofRequest{EventID: "eth-summit"}, http.StatusBadRequest},
		{"missing principal", http.MethodPost, "/api/proofs", nil, api.SubmitProofRequest{EventID: "e", ProofData: []byte("p")}, http.StatusForbidden},
		{"malformed body", http.MethodPost, "/api/proofs", &alice, "not an object", http.StatusBadRequest},
		{"unknown proof", http.MethodGet, "/api/proofs/99", nil, nil, http.StatusNotFound},
		{"proof id zero", http.MethodGet, "/api/proofs/0", nil, nil, http.StatusNotFound},
		{"non numeric proof id", http.MethodGet, "/api/proofs/abc", nil, nil, http.StatusNotFound},
		{"unknown event metadata", http.MethodGet, "/api/events/devcon", nil, nil, http.StatusNotFound},
		{"unmonitored handle", http.MethodGet, "/api/submissions/" + unknownHandle.String(), nil, nil, http.StatusNotFound},
		{"bad handle", http.MethodGet, "/api/submissions/xyz", nil, nil, http.StatusBadRequest},
		{"bad wait timeout", http.MethodPost, "/api/submissions/" + unknownHandle.String() + "/wait?timeout=soon", nil, nil, http.StatusBadRequest},
		{"wait times out", http.MethodPost, "/api/submissions/" + unknownHandle.String() + "/wait?timeout=20ms", nil, nil, http.StatusGatewayTimeout},
		{"bad submitter", http.MethodGet, "/api/proofs?submitter=0x12", nil, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.principal, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeBody[api.ErrorResponse](t, w).Error)
		})
	}
}

func TestValidationRequiresValidator(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.ledger.Registry().SetAutoAccept(owner, false))

	w := s.do(t, http.MethodPost, "/api/proofs", &alice, api.SubmitProofRequest{EventID: "devcon", ProofData: []byte("proofB")})
	require.Equal(t, http.StatusAccepted, w.Code)
	s.ledger.Mine()

	// Authorization is enforced on execution, the broadcast itself is accepted.
	w = s.do(t, http.MethodPost, "/api/proofs/1/validate", &alice, api.ValidateProofRequest{IsValid: true})
	require.Equal(t, http.StatusAccepted, w.Code)
	denied := decodeBody[api.HandleResponse](t, w).Handle

	w = s.do(t, http.MethodPost, "/api/proofs/1/validate", &owner, api.ValidateProofRequest{IsValid: true})
	require.Equal(t, http.StatusAccepted, w.Code)
	accepted := decodeBody[api.HandleResponse](t, w).Handle
	s.ledger.Mine()

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/submissions/%s/wait", denied), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody[interfaces.ConfirmationStatus](t, w)
	assert.Equal(t, interfaces.StateFailed, status.State)
	assert.Contains(t, status.FailureReason, "not a validator")

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/submissions/%s/refresh", accepted), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, interfaces.StateConfirmed, decodeBody[interfaces.ConfirmationStatus](t, w).State)

	w = s.do(t, http.MethodGet, "/api/credentials/"+alice.String(), nil, nil)
	assert.Len(t, decodeBody[api.CredentialsResponse](t, w).Credentials, 1)
}

func TestLedgerUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.ledger.SetAvailable(false)

	w := s.do(t, http.MethodPost, "/api/proofs", &alice, api.SubmitProofRequest{EventID: "eth-summit", ProofData: []byte("proofA")})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/api/proofs/count", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{interfaces.ErrEmptyEventID, http.StatusBadRequest},
		{interfaces.ErrInvalidProofID, http.StatusNotFound},
		{interfaces.ErrUnauthorized, http.StatusForbidden},
		{interfaces.ErrDuplicateCommitment, http.StatusConflict},
		{interfaces.ErrInsufficientResources, http.StatusPaymentRequired},
		{interfaces.ErrSubmissionRejected, http.StatusUnprocessableEntity},
		{interfaces.ErrLedgerUnavailable, http.StatusServiceUnavailable},
		{interfaces.ErrPollingTimeout, http.StatusGatewayTimeout},
		{interfaces.ErrAlreadyMinted, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", interfaces.ErrDuplicateCommitment), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, api.StatusCode(tt.err))
		})
	}
}
