package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ruteri/proof-credential-registry/commitment"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/metrics"
)

// Registry holds proof records, event metadata and credentials in memory.
// All mutations are serialized by mu; reads take the read lock.
type Registry struct {
	mu  sync.RWMutex
	log *slog.Logger

	owner      interfaces.Principal
	validators map[interfaces.Principal]bool
	autoAccept bool

	proofs       []interfaces.ProofRecord // proofs[i] has id i+1
	byCommitment map[interfaces.Commitment]interfaces.ProofID
	byUser       map[interfaces.Principal][]interfaces.ProofID
	byEvent      map[string][]interfaces.ProofID
	metadata     map[string]interfaces.EventMetadata

	minter *credentialMinter
}

// NewRegistry creates an empty registry owned by owner. New proofs are
// auto-accepted until SetAutoAccept(owner, false) is called.
func NewRegistry(owner interfaces.Principal, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:          log,
		owner:        owner,
		validators:   map[interfaces.Principal]bool{owner: true},
		autoAccept:   true,
		byCommitment: make(map[interfaces.Commitment]interfaces.ProofID),
		byUser:       make(map[interfaces.Principal][]interfaces.ProofID),
		byEvent:      make(map[string][]interfaces.ProofID),
		metadata:     make(map[string]interfaces.EventMetadata),
		minter:       newCredentialMinter(),
	}
}

// SubmitProof accepts a new proof record. When the registry auto-accepts, the
// record is stored valid and a credential is minted in the same operation.
//
// Returns ErrEmptyEventID, ErrEmptyPayload or ErrDuplicateCommitment for
// rejected submissions. On success the returned facts are ProofSubmitted
// followed by CredentialMinted if a credential was issued.
func (r *Registry) SubmitProof(eventID string, proofData []byte, submitter interfaces.Principal, submittedAt uint64) (interfaces.ProofRecord, []interfaces.Fact, error) {
	if eventID == "" {
		return interfaces.ProofRecord{}, nil, interfaces.ErrEmptyEventID
	}
	if len(proofData) == 0 {
		return interfaces.ProofRecord{}, nil, interfaces.ErrEmptyPayload
	}

	c := commitment.Commit(eventID, proofData, submitter, submittedAt)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, found := r.byCommitment[c]; found {
		metrics.DuplicateRejections.Inc()
		r.log.Debug("rejected duplicate commitment", slog.String("commitment", c.String()), "existingProof", existing)
		return interfaces.ProofRecord{}, nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateCommitment, c)
	}

	id := interfaces.ProofID(len(r.proofs) + 1)
	rec := interfaces.ProofRecord{
		ID:          id,
		Commitment:  c,
		EventID:     eventID,
		Submitter:   submitter,
		SubmittedAt: submittedAt,
		Valid:       r.autoAccept,
	}

	facts := []interfaces.Fact{{
		Kind:       interfaces.FactProofSubmitted,
		ProofID:    id,
		Commitment: c,
		EventID:    eventID,
		Principal:  submitter,
	}}

	var credential *interfaces.Credential
	if rec.Valid {
		prepared, err := r.minter.prepare(&rec, r.metadataFor(eventID), submittedAt)
		if err != nil {
			return interfaces.ProofRecord{}, nil, r.defect(err)
		}
		credential = &prepared
	}

	r.proofs = append(r.proofs, rec)
	r.byCommitment[c] = id
	r.byUser[submitter] = append(r.byUser[submitter], id)
	r.byEvent[eventID] = append(r.byEvent[eventID], id)
	metrics.ProofsSubmitted.Inc()

	stored := &r.proofs[id-1]
	if credential != nil {
		facts = append(facts, r.commitMint(stored, *credential))
	}

	r.log.Debug("proof submitted", "proofId", id, slog.String("eventId", eventID), slog.String("submitter", submitter.String()), "minted", credential != nil)
	return cloneRecord(*stored), facts, nil
}

// ValidateProof records a validator decision for proof id. The first transition
// to valid of a record without a credential mints one. Setting valid to false
// never revokes an issued credential.
func (r *Registry) ValidateProof(caller interfaces.Principal, id interfaces.ProofID, isValid bool, at uint64) ([]interfaces.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.validators[caller] {
		return nil, fmt.Errorf("%w: %s is not a validator", interfaces.ErrUnauthorized, caller)
	}

	rec, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrInvalidProofID, id)
	}

	var credential *interfaces.Credential
	if isValid && rec.Credential == nil {
		prepared, err := r.minter.prepare(rec, r.metadataFor(rec.EventID), at)
		if err != nil {
			return nil, r.defect(err)
		}
		credential = &prepared
	}

	rec.Valid = isValid
	facts := []interfaces.Fact{{
		Kind:      interfaces.FactProofValidated,
		ProofID:   id,
		EventID:   rec.EventID,
		Principal: caller,
		Valid:     isValid,
	}}
	if credential != nil {
		facts = append(facts, r.commitMint(rec, *credential))
	}

	r.log.Debug("proof validated", "proofId", id, "valid", isValid, "minted", credential != nil)
	return facts, nil
}

// SetEventMetadata replaces the metadata of an event. Credentials already
// minted keep the ImageRef they were issued with.
func (r *Registry) SetEventMetadata(caller interfaces.Principal, metadata interfaces.EventMetadata) ([]interfaces.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.validators[caller] {
		return nil, fmt.Errorf("%w: %s is not a validator", interfaces.ErrUnauthorized, caller)
	}
	if metadata.EventID == "" {
		return nil, interfaces.ErrEmptyEventID
	}

	r.metadata[metadata.EventID] = metadata
	return []interfaces.Fact{{
		Kind:      interfaces.FactEventMetadataSet,
		EventID:   metadata.EventID,
		Principal: caller,
	}}, nil
}

// commitMint binds a prepared credential and returns its CredentialMinted fact.
// Must be called with mu held.
func (r *Registry) commitMint(rec *interfaces.ProofRecord, credential interfaces.Credential) interfaces.Fact {
	r.minter.commit(rec, credential)
	metrics.CredentialsMinted.Inc()
	r.log.Info("credential minted", "credentialId", credential.ID, "proofId", rec.ID, slog.String("owner", credential.Owner.String()))

	return interfaces.Fact{
		Kind:         interfaces.FactCredentialMinted,
		ProofID:      rec.ID,
		CredentialID: credential.ID,
		EventID:      credential.EventID,
		Principal:    credential.Owner,
		MetadataRef:  credential.MetadataRef,
	}
}

func (r *Registry) defect(err error) error {
	r.log.Error("registry invariant violated", "err", err)
	return err
}

// lookup returns a pointer to the stored record. Must be called with mu held.
func (r *Registry) lookup(id interfaces.ProofID) (*interfaces.ProofRecord, bool) {
	if id == 0 || uint64(id) > uint64(len(r.proofs)) {
		return nil, false
	}
	return &r.proofs[id-1], true
}

func (r *Registry) metadataFor(eventID string) *interfaces.EventMetadata {
	md, ok := r.metadata[eventID]
	if !ok {
		return nil
	}
	return &md
}

func cloneRecord(rec interfaces.ProofRecord) interfaces.ProofRecord {
	if rec.Credential != nil {
		id := *rec.Credential
		rec.Credential = &id
	}
	return rec
}

// GetProof returns a copy of the record with the given id.
func (r *Registry) GetProof(id interfaces.ProofID) (interfaces.ProofRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.lookup(id)
	if !ok {
		return interfaces.ProofRecord{}, fmt.Errorf("%w: %d", interfaces.ErrInvalidProofID, id)
	}
	return cloneRecord(*rec), nil
}

// ProofByCommitment returns the record stored under commitment c.
func (r *Registry) ProofByCommitment(c interfaces.Commitment) (interfaces.ProofRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCommitment[c]
	if !ok {
		return interfaces.ProofRecord{}, fmt.Errorf("%w: commitment %s", interfaces.ErrNotFound, c)
	}
	rec, _ := r.lookup(id)
	return cloneRecord(*rec), nil
}

// GetUserProofs returns the ids of proofs submitted by submitter, in acceptance order.
func (r *Registry) GetUserProofs(submitter interfaces.Principal) []interfaces.ProofID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byUser[submitter])
}

// GetEventProofs returns the ids of proofs submitted for eventID, in acceptance order.
func (r *Registry) GetEventProofs(eventID string) []interfaces.ProofID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byEvent[eventID])
}

func (r *Registry) GetTotalProofs() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.proofs))
}

// HasValidProofForEvent reports whether submitter has a valid record for eventID,
// regardless of whether it was minted.
func (r *Registry) HasValidProofForEvent(submitter interfaces.Principal, eventID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.byUser[submitter] {
		rec := r.proofs[id-1]
		if rec.EventID == eventID && rec.Valid {
			return true
		}
	}
	return false
}

func (r *Registry) GetEventMetadata(eventID string) (interfaces.EventMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, ok := r.metadata[eventID]
	if !ok {
		return interfaces.EventMetadata{}, fmt.Errorf("%w: metadata for event %q", interfaces.ErrNotFound, eventID)
	}
	return md, nil
}

func (r *Registry) GetCredential(id interfaces.CredentialID) (interfaces.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.minter.get(id)
	if !ok {
		return interfaces.Credential{}, fmt.Errorf("%w: credential %d", interfaces.ErrNotFound, id)
	}
	return c, nil
}

// CredentialForProof returns the credential bound to proof id.
func (r *Registry) CredentialForProof(id interfaces.ProofID) (interfaces.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.lookup(id)
	if !ok {
		return interfaces.Credential{}, fmt.Errorf("%w: %d", interfaces.ErrInvalidProofID, id)
	}
	if rec.Credential == nil {
		return interfaces.Credential{}, fmt.Errorf("%w: no credential for proof %d", interfaces.ErrNotFound, id)
	}
	c, _ := r.minter.get(*rec.Credential)
	return c, nil
}

func (r *Registry) OwnerOf(id interfaces.CredentialID) (interfaces.Principal, error) {
	c, err := r.GetCredential(id)
	if err != nil {
		return interfaces.Principal{}, err
	}
	return c.Owner, nil
}

func (r *Registry) TotalCredentials() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minter.total()
}

// BalanceOf returns the number of credentials owned by owner.
func (r *Registry) BalanceOf(owner interfaces.Principal) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.minter.owned(owner)))
}

// CredentialOfOwnerByIndex returns the index-th credential minted to owner.
func (r *Registry) CredentialOfOwnerByIndex(owner interfaces.Principal, index uint64) (interfaces.CredentialID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.minter.owned(owner)
	if index >= uint64(len(owned)) {
		return 0, fmt.Errorf("%w: index %d out of range for %s", interfaces.ErrNotFound, index, owner)
	}
	return owned[index], nil
}

// CredentialRef returns the metadata reference snapshot of credential id.
func (r *Registry) CredentialRef(id interfaces.CredentialID) (string, error) {
	c, err := r.GetCredential(id)
	if err != nil {
		return "", err
	}
	return c.MetadataRef, nil
}

// Owner returns the registry owner.
func (r *Registry) Owner() interfaces.Principal {
	return r.owner
}

func (r *Registry) IsValidator(p interfaces.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validators[p]
}

// ErrOwnerRemoval is returned when the owner is removed from the validator set.
var ErrOwnerRemoval = errors.New("owner cannot be removed from validators")

func (r *Registry) AddValidator(caller, validator interfaces.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("%w: only the owner can add validators", interfaces.ErrUnauthorized)
	}
	r.validators[validator] = true
	r.log.Info("validator added", slog.String("validator", validator.String()))
	return nil
}

func (r *Registry) RemoveValidator(caller, validator interfaces.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("%w: only the owner can remove validators", interfaces.ErrUnauthorized)
	}
	if validator == r.owner {
		return ErrOwnerRemoval
	}
	delete(r.validators, validator)
	r.log.Info("validator removed", slog.String("validator", validator.String()))
	return nil
}

// SetAutoAccept switches the default acceptance policy for new submissions.
func (r *Registry) SetAutoAccept(caller interfaces.Principal, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("%w: only the owner can change the acceptance policy", interfaces.ErrUnauthorized)
	}
	r.autoAccept = enabled
	return nil
}

func (r *Registry) AutoAccept() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.autoAccept
}
