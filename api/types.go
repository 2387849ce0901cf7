package api

import (
	"errors"
	"net/http"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

const (
	// PrincipalHeader carries the principal a request acts for.
	PrincipalHeader = "X-Registry-Principal"

	// RequestIDHeader correlates client requests with server logs.
	RequestIDHeader = "X-Request-Id"
)

// SubmitProofRequest is the body of POST /api/proofs. Byte fields are base64 in JSON.
type SubmitProofRequest struct {
	EventID   string `json:"event_id"`
	ProofData []byte `json:"proof_data,omitempty"`
	Witness   []byte `json:"witness,omitempty"`
}

type ValidateProofRequest struct {
	IsValid bool `json:"is_valid"`
}

// EventMetadataRequest is the body of PUT /api/events/{event_id}.
type EventMetadataRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	ImageRef    string `json:"image_ref"`
	Location    string `json:"location"`
	EventDate   string `json:"event_date"`
}

// HandleResponse is returned for every accepted broadcast.
type HandleResponse struct {
	Handle interfaces.SubmissionHandle `json:"handle"`
}

type ProofIDsResponse struct {
	ProofIDs []interfaces.ProofID `json:"proof_ids"`
}

type CountResponse struct {
	Total uint64 `json:"total"`
}

type ValidResponse struct {
	Valid bool `json:"valid"`
}

type CredentialsResponse struct {
	Credentials []interfaces.Credential `json:"credentials"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusCode maps a domain error to the HTTP status the handler reports it with.
func StatusCode(err error) int {
	switch {
	case interfaces.IsDefect(err):
		return http.StatusInternalServerError
	case errors.Is(err, interfaces.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrInvalidProofID), errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrDuplicateCommitment):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrInsufficientResources):
		return http.StatusPaymentRequired
	case errors.Is(err, interfaces.ErrSubmissionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrLedgerUnavailable), errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrPollingTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorForStatus maps a status code returned by the server back to the sentinel
// the client wraps, so callers can use errors.Is across the wire.
func ErrorForStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return interfaces.ErrEmptyInput
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusForbidden:
		return interfaces.ErrUnauthorized
	case http.StatusConflict:
		return interfaces.ErrDuplicateCommitment
	case http.StatusPaymentRequired:
		return interfaces.ErrInsufficientResources
	case http.StatusUnprocessableEntity:
		return interfaces.ErrSubmissionRejected
	case http.StatusServiceUnavailable:
		return interfaces.ErrLedgerUnavailable
	case http.StatusGatewayTimeout:
		return interfaces.ErrPollingTimeout
	default:
		return nil
	}
}
