package interfaces

import (
	"context"
	"errors"
	"fmt"
)

// OperationKind names a mutating registry operation that can be broadcast to a ledger.
type OperationKind string

const (
	OpSubmitProof      OperationKind = "submit_proof"
	OpValidateProof    OperationKind = "validate_proof"
	OpSetEventMetadata OperationKind = "set_event_metadata"
)

// SubmitProofArgs are the arguments of a submit_proof operation.
// The submitter is the operation sender; the submission time is assigned by the ledger.
type SubmitProofArgs struct {
	EventID   string `json:"event_id"`
	ProofData []byte `json:"proof_data"`
}

// ValidateProofArgs are the arguments of a validate_proof operation.
type ValidateProofArgs struct {
	ProofID ProofID `json:"proof_id"`
	IsValid bool    `json:"is_valid"`
}

// Operation is one broadcastable registry mutation. Exactly one of the
// argument fields matching Kind must be set.
type Operation struct {
	Kind             OperationKind      `json:"kind"`
	Sender           Principal          `json:"sender"`
	SubmitProof      *SubmitProofArgs   `json:"submit_proof,omitempty"`
	ValidateProof    *ValidateProofArgs `json:"validate_proof,omitempty"`
	SetEventMetadata *EventMetadata     `json:"set_event_metadata,omitempty"`
}

var errMalformedOperation = errors.New("malformed operation")

// Validate checks that the argument block matches the operation kind.
func (op Operation) Validate() error {
	switch op.Kind {
	case OpSubmitProof:
		if op.SubmitProof == nil {
			return fmt.Errorf("%w: missing submit_proof arguments", errMalformedOperation)
		}
	case OpValidateProof:
		if op.ValidateProof == nil {
			return fmt.Errorf("%w: missing validate_proof arguments", errMalformedOperation)
		}
	case OpSetEventMetadata:
		if op.SetEventMetadata == nil {
			return fmt.Errorf("%w: missing set_event_metadata arguments", errMalformedOperation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errMalformedOperation, op.Kind)
	}
	return nil
}

// Outcome is the execution result the ledger reports for an included operation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeReverted Outcome = "reverted"
)

// InclusionInfo is the ledger's answer for one submission handle.
type InclusionInfo struct {
	Included     bool
	Height       uint64
	Outcome      Outcome
	ResourceUsed uint64
	RevertReason string
}

// FactKind names an emitted registry side effect.
type FactKind string

const (
	FactProofSubmitted   FactKind = "ProofSubmitted"
	FactProofValidated   FactKind = "ProofValidated"
	FactCredentialMinted FactKind = "CredentialMinted"
	FactEventMetadataSet FactKind = "EventMetadataSet"
)

// Fact is a single entry of a ledger execution log. Fields not relevant for
// Kind are left zero. Principal is the submitter for ProofSubmitted, the owner
// for CredentialMinted and the sender for the other kinds.
type Fact struct {
	Kind         FactKind         `json:"kind"`
	Handle       SubmissionHandle `json:"handle"`
	Height       uint64           `json:"height"`
	Index        uint             `json:"index"`
	ProofID      ProofID          `json:"proof_id,omitempty"`
	CredentialID CredentialID     `json:"credential_id,omitempty"`
	Commitment   Commitment       `json:"commitment,omitempty"`
	EventID      string           `json:"event_id,omitempty"`
	Principal    Principal        `json:"principal"`
	Valid        bool             `json:"valid,omitempty"`
	MetadataRef  string           `json:"metadata_ref,omitempty"`
}

// LogQuery selects facts from an inclusive height range, optionally restricted
// to the facts emitted by a single submission.
type LogQuery struct {
	FromHeight uint64
	ToHeight   uint64
	Handle     *SubmissionHandle
}

// Ledger is the external, authoritative execution substrate.
type Ledger interface {
	// Broadcast submits an operation and returns its handle before inclusion.
	Broadcast(ctx context.Context, op Operation) (SubmissionHandle, error)

	// InclusionInfo reports whether and how the submission was executed.
	InclusionInfo(ctx context.Context, handle SubmissionHandle) (InclusionInfo, error)

	// CurrentHeight returns the height of the latest block.
	CurrentHeight(ctx context.Context) (uint64, error)

	// QueryLog returns the facts matching the query in emission order.
	QueryLog(ctx context.Context, query LogQuery) ([]Fact, error)
}

// CredentialLedger is the credential ownership and enumeration surface.
type CredentialLedger interface {
	BalanceOf(ctx context.Context, owner Principal) (uint64, error)
	AssetAtIndex(ctx context.Context, owner Principal, index uint64) (CredentialID, error)
	AssetRef(ctx context.Context, id CredentialID) (string, error)
}

// RegistryReader exposes the registry's read operations as served by a ledger.
type RegistryReader interface {
	Proof(ctx context.Context, id ProofID) (ProofRecord, error)
	UserProofs(ctx context.Context, submitter Principal) ([]ProofID, error)
	EventProofs(ctx context.Context, eventID string) ([]ProofID, error)
	TotalProofs(ctx context.Context) (uint64, error)
	HasValidProofForEvent(ctx context.Context, submitter Principal, eventID string) (bool, error)
	EventMetadata(ctx context.Context, eventID string) (EventMetadata, error)
}

// ProofGenerator is the optional proof-generation capability.
type ProofGenerator interface {
	// Generate produces a proof payload for eventID from the prover's private witness.
	Generate(ctx context.Context, eventID string, witness []byte) ([]byte, error)

	// Available reports whether a real prover backs this generator.
	Available() bool

	Name() string
}

// StatusSink receives each terminal confirmation status exactly once.
type StatusSink interface {
	Publish(ctx context.Context, status ConfirmationStatus) error
	Close() error
}
