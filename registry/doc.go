// Package registry implements the proof commitment registry: a deterministic
// state machine that deduplicates proof submissions by content commitment,
// records validator decisions, and mints at most one credential per accepted proof.
//
// The Registry is the execution core hosted by a ledger. Every mutation is
// applied under a single writer lock so that the dedup check and the insert
// are atomic, and each mutation returns the facts it emitted in order:
//
//	rec, facts, err := reg.SubmitProof("eth-summit", payload, submitter, 100)
//	// facts: ProofSubmitted, CredentialMinted (when auto-accepted)
//
// # Authorization
//
// The registry owner is always a validator. The owner can add and remove other
// validators and switch the default acceptance policy with SetAutoAccept:
//
//   - validateProof and setEventMetadata require a validator
//   - AddValidator, RemoveValidator and SetAutoAccept require the owner
//
// # Credentials
//
// Credentials are minted on acceptance (auto-accept) or on the first transition
// of a record to valid (late validation). A credential snapshots the event's
// ImageRef at mint time. Invalidating a proof never revokes its credential.
//
// Minting a second credential for a proof, or allocating an id twice, is a defect
// reported as interfaces.ErrInvariantViolation; the operation aborts without
// changing state.
package registry
