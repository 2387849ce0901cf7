// Package interfaces defines core interfaces and types for the proof credential
// registry, separating interface definitions from implementations.
//
// # Registry Types
//
// ProofRecord: an accepted proof submission, keyed by a sequence id and deduplicated
// by its Commitment.
//
// EventMetadata: descriptive data of an event, including the ImageRef that minted
// credentials snapshot.
//
// Credential: the non-fungible token minted at most once per accepted proof.
//
// # Ledger Interfaces
//
// Ledger: broadcasts Operations, reports InclusionInfo for a SubmissionHandle, and
// serves the ordered Fact log that the confirmation tracker parses for mint events.
//
// CredentialLedger: credential ownership and enumeration (balance, index, ref).
//
// RegistryReader: read operations over the registry state held by a ledger.
//
// # Collaborator Interfaces
//
// KVBackend: keyed blob storage (file, S3, IPFS, Vault, memory) used by the Wallet.
//
// Wallet: local credential store with put, list and get.
//
// ProofGenerator: optional proof-generation capability with a fallback.
//
// StatusSink: receives terminal ConfirmationStatus values.
//
// # Errors
//
// User-facing sentinels (ErrEmptyInput, ErrDuplicateCommitment, ErrInvalidProofID,
// ErrUnauthorized, ErrLedgerUnavailable, ErrInsufficientResources, ErrSubmissionRejected,
// ErrTerminalFailure, ErrPollingTimeout, ErrNotFound) are distinct from defects, which
// all wrap ErrInvariantViolation and indicate a bug.
package interfaces
