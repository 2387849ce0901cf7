package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/proof-credential-registry/api"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

// RegistryClient talks to a registry server on behalf of one principal.
type RegistryClient struct {
	// ServerAddr is the base URL of the registry server
	ServerAddr string

	// Principal is sent in the principal header on mutating requests
	Principal interfaces.Principal

	HTTPClient *http.Client
}

func NewRegistryClient(serverAddr string, principal interfaces.Principal) *RegistryClient {
	return &RegistryClient{
		ServerAddr: strings.TrimSuffix(serverAddr, "/"),
		Principal:  principal,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry returned %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
}

// Unwrap maps the status code back to the domain sentinel.
func (e *Error) Unwrap() error {
	return api.ErrorForStatus(e.StatusCode)
}

func (c *RegistryClient) SubmitProof(ctx context.Context, eventID string, proofData, witness []byte) (interfaces.SubmissionHandle, error) {
	var resp api.HandleResponse
	err := c.do(ctx, http.MethodPost, "/api/proofs", api.SubmitProofRequest{EventID: eventID, ProofData: proofData, Witness: witness}, &resp)
	return resp.Handle, err
}

func (c *RegistryClient) ValidateProof(ctx context.Context, id interfaces.ProofID, isValid bool) (interfaces.SubmissionHandle, error) {
	var resp api.HandleResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/proofs/%d/validate", id), api.ValidateProofRequest{IsValid: isValid}, &resp)
	return resp.Handle, err
}

func (c *RegistryClient) SetEventMetadata(ctx context.Context, md interfaces.EventMetadata) (interfaces.SubmissionHandle, error) {
	var resp api.HandleResponse
	err := c.do(ctx, http.MethodPut, "/api/events/"+url.PathEscape(md.EventID), api.EventMetadataRequest{
		DisplayName: md.DisplayName,
		Description: md.Description,
		ImageRef:    md.ImageRef,
		Location:    md.Location,
		EventDate:   md.EventDate,
	}, &resp)
	return resp.Handle, err
}

func (c *RegistryClient) Proof(ctx context.Context, id interfaces.ProofID) (interfaces.ProofRecord, error) {
	var record interfaces.ProofRecord
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/proofs/%d", id), nil, &record)
	return record, err
}

func (c *RegistryClient) UserProofs(ctx context.Context, submitter interfaces.Principal) ([]interfaces.ProofID, error) {
	var resp api.ProofIDsResponse
	err := c.do(ctx, http.MethodGet, "/api/proofs?submitter="+submitter.String(), nil, &resp)
	return resp.ProofIDs, err
}

func (c *RegistryClient) EventProofs(ctx context.Context, eventID string) ([]interfaces.ProofID, error) {
	var resp api.ProofIDsResponse
	err := c.do(ctx, http.MethodGet, "/api/events/"+url.PathEscape(eventID)+"/proofs", nil, &resp)
	return resp.ProofIDs, err
}

func (c *RegistryClient) TotalProofs(ctx context.Context) (uint64, error) {
	var resp api.CountResponse
	err := c.do(ctx, http.MethodGet, "/api/proofs/count", nil, &resp)
	return resp.Total, err
}

func (c *RegistryClient) HasValidProofForEvent(ctx context.Context, submitter interfaces.Principal, eventID string) (bool, error) {
	var resp api.ValidResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/events/%s/valid/%s", url.PathEscape(eventID), submitter), nil, &resp)
	return resp.Valid, err
}

func (c *RegistryClient) EventMetadata(ctx context.Context, eventID string) (interfaces.EventMetadata, error) {
	var md interfaces.EventMetadata
	err := c.do(ctx, http.MethodGet, "/api/events/"+url.PathEscape(eventID), nil, &md)
	return md, err
}

func (c *RegistryClient) Status(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error) {
	var status interfaces.ConfirmationStatus
	err := c.do(ctx, http.MethodGet, "/api/submissions/"+handle.String(), nil, &status)
	return status, err
}

func (c *RegistryClient) Refresh(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error) {
	var status interfaces.ConfirmationStatus
	err := c.do(ctx, http.MethodPost, "/api/submissions/"+handle.String()+"/refresh", nil, &status)
	return status, err
}

// Wait asks the server to block until handle is terminal or timeout elapses.
func (c *RegistryClient) Wait(ctx context.Context, handle interfaces.SubmissionHandle, timeout time.Duration) (interfaces.ConfirmationStatus, error) {
	path := "/api/submissions/" + handle.String() + "/wait"
	if timeout > 0 {
		path += "?timeout=" + url.QueryEscape(timeout.String())
	}
	var status interfaces.ConfirmationStatus
	err := c.do(ctx, http.MethodPost, path, nil, &status)
	return status, err
}

func (c *RegistryClient) WalletView(ctx context.Context, owner interfaces.Principal) ([]interfaces.Credential, error) {
	var resp api.CredentialsResponse
	err := c.do(ctx, http.MethodGet, "/api/credentials/"+owner.String(), nil, &resp)
	return resp.Credentials, err
}

func (c *RegistryClient) LocalWallet(ctx context.Context) ([]interfaces.Credential, error) {
	var resp api.CredentialsResponse
	err := c.do(ctx, http.MethodGet, "/api/wallet", nil, &resp)
	return resp.Credentials, err
}

func (c *RegistryClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, reader)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(api.RequestIDHeader, requestID)
	req.Header.Set(api.PrincipalHeader, c.Principal.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not reach registry: %w", interfaces.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = strconv.Quote(string(respBody))
		}
		return &Error{StatusCode: resp.StatusCode, Message: errResp.Error, RequestID: requestID}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
