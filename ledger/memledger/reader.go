package memledger

import (
	"context"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

func (l *Ledger) BalanceOf(ctx context.Context, owner interfaces.Principal) (uint64, error) {
	if err := l.checkAvailable(); err != nil {
		return 0, err
	}
	return l.reg.BalanceOf(owner), nil
}

func (l *Ledger) AssetAtIndex(ctx context.Context, owner interfaces.Principal, index uint64) (interfaces.CredentialID, error) {
	if err := l.checkAvailable(); err != nil {
		return 0, err
	}
	return l.reg.CredentialOfOwnerByIndex(owner, index)
}

func (l *Ledger) AssetRef(ctx context.Context, id interfaces.CredentialID) (string, error) {
	if err := l.checkAvailable(); err != nil {
		return "", err
	}
	return l.reg.CredentialRef(id)
}

func (l *Ledger) Proof(ctx context.Context, id interfaces.ProofID) (interfaces.ProofRecord, error) {
	if err := l.checkAvailable(); err != nil {
		return interfaces.ProofRecord{}, err
	}
	return l.reg.GetProof(id)
}

func (l *Ledger) UserProofs(ctx context.Context, submitter interfaces.Principal) ([]interfaces.ProofID, error) {
	if err := l.checkAvailable(); err != nil {
		return nil, err
	}
	return l.reg.GetUserProofs(submitter), nil
}

func (l *Ledger) EventProofs(ctx context.Context, eventID string) ([]interfaces.ProofID, error) {
	if err := l.checkAvailable(); err != nil {
		return nil, err
	}
	return l.reg.GetEventProofs(eventID), nil
}

func (l *Ledger) TotalProofs(ctx context.Context) (uint64, error) {
	if err := l.checkAvailable(); err != nil {
		return 0, err
	}
	return l.reg.GetTotalProofs(), nil
}

func (l *Ledger) HasValidProofForEvent(ctx context.Context, submitter interfaces.Principal, eventID string) (bool, error) {
	if err := l.checkAvailable(); err != nil {
		return false, err
	}
	return l.reg.HasValidProofForEvent(submitter, eventID), nil
}

func (l *Ledger) EventMetadata(ctx context.Context, eventID string) (interfaces.EventMetadata, error) {
	if err := l.checkAvailable(); err != nil {
		return interfaces.EventMetadata{}, err
	}
	return l.reg.GetEventMetadata(eventID)
}
