package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Principal identifies an account that submits proofs, validates them or owns credentials.
type Principal [20]byte

// NewPrincipalFromHex parses a 40-char hex address, with or without 0x prefix.
func NewPrincipalFromHex(addr string) (Principal, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Principal{}, errors.New("invalid principal length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var res Principal
	copy(res[:], addrBytes)
	return res, nil
}

// String returns the checksummed hex representation of the principal.
func (p Principal) String() string {
	return common.Address(p).Hex()
}

// Address converts the principal to a go-ethereum address.
func (p Principal) Address() common.Address {
	return common.Address(p)
}

// IsZero reports whether the principal is the zero address.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := NewPrincipalFromHex(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Commitment is the 32-byte content commitment used as the dedup key for proofs.
type Commitment [32]byte

// NewCommitmentFromHex parses a 64-char hex commitment.
func NewCommitmentFromHex(source string) (Commitment, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return Commitment{}, errors.New("invalid commitment length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Commitment{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var c Commitment
	copy(c[:], hashBytes)
	return c, nil
}

// String returns the 0x-prefixed hex representation.
func (c Commitment) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// Bytes returns the raw 32-byte commitment.
func (c Commitment) Bytes() []byte {
	return c[:]
}

// MarshalText implements encoding.TextMarshaler.
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Commitment) UnmarshalText(text []byte) error {
	parsed, err := NewCommitmentFromHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SubmissionHandle is the client-visible correlation token for one broadcast
// attempt. On EVM ledgers it is the transaction hash.
type SubmissionHandle [32]byte

// NewSubmissionHandleFromHex parses a 64-char hex handle.
func NewSubmissionHandleFromHex(source string) (SubmissionHandle, error) {
	c, err := NewCommitmentFromHex(source)
	if err != nil {
		return SubmissionHandle{}, fmt.Errorf("invalid submission handle: %w", err)
	}
	return SubmissionHandle(c), nil
}

// String returns the 0x-prefixed hex representation.
func (h SubmissionHandle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Hash converts the handle to a go-ethereum hash.
func (h SubmissionHandle) Hash() common.Hash {
	return common.Hash(h)
}

// MarshalText implements encoding.TextMarshaler.
func (h SubmissionHandle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *SubmissionHandle) UnmarshalText(text []byte) error {
	parsed, err := NewSubmissionHandleFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ProofID is the sequence number assigned to an accepted proof. Ids start at 1.
type ProofID uint64

// CredentialID is the sequence number of a minted credential. Ids start at 1.
type CredentialID uint64

// ProofRecord is a single accepted proof submission.
type ProofRecord struct {
	ID          ProofID       `json:"id"`
	Commitment  Commitment    `json:"commitment"`
	EventID     string        `json:"event_id"`
	Submitter   Principal     `json:"submitter"`
	SubmittedAt uint64        `json:"submitted_at"`
	Valid       bool          `json:"valid"`
	Credential  *CredentialID `json:"credential_id,omitempty"`
}

// Minted reports whether a credential is bound to the record.
func (r ProofRecord) Minted() bool {
	return r.Credential != nil
}

// EventMetadata describes an event that proofs are submitted for.
type EventMetadata struct {
	EventID     string `json:"event_id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	ImageRef    string `json:"image_ref"`
	Location    string `json:"location"`
	EventDate   string `json:"event_date"`
}

// Credential is the non-fungible token minted for an accepted proof.
// MetadataRef is a snapshot of the event ImageRef at mint time.
type Credential struct {
	ID          CredentialID `json:"id"`
	ProofID     ProofID      `json:"proof_id"`
	Owner       Principal    `json:"owner"`
	EventID     string       `json:"event_id"`
	MetadataRef string       `json:"metadata_ref"`
	MintedAt    time.Time    `json:"minted_at,omitempty"`
}

// SubmissionState is the lifecycle state of a monitored submission.
type SubmissionState string

const (
	StatePending   SubmissionState = "pending"
	StateConfirmed SubmissionState = "confirmed"
	StateFailed    SubmissionState = "failed"
)

// Terminal reports whether the state is absorbing.
func (s SubmissionState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// ConfirmationStatus is the tracker's view of one submission.
type ConfirmationStatus struct {
	Handle             SubmissionHandle `json:"handle"`
	State              SubmissionState  `json:"state"`
	Confirmations      uint64           `json:"confirmations"`
	ResourceUsed       *uint64          `json:"resource_used,omitempty"`
	FinalizedAt        *uint64          `json:"finalized_at,omitempty"`
	ProofID            *ProofID         `json:"proof_id,omitempty"`
	MintedCredentialID *CredentialID    `json:"minted_credential_id,omitempty"`
	FailureReason      string           `json:"failure_reason,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Terminal reports whether the status has reached Confirmed or Failed.
func (s ConfirmationStatus) Terminal() bool {
	return s.State.Terminal()
}
