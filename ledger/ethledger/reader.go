package ethledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

func (l *Ledger) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func toIDs[T ~uint64](values []*big.Int) []T {
	ids := make([]T, 0, len(values))
	for _, v := range values {
		ids = append(ids, T(v.Uint64()))
	}
	return ids
}

func (l *Ledger) Proof(ctx context.Context, id interfaces.ProofID) (interfaces.ProofRecord, error) {
	out, err := l.call(ctx, "getProof", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		if isRevert(err) {
			return interfaces.ProofRecord{}, fmt.Errorf("%w: %d", interfaces.ErrInvalidProofID, id)
		}
		return interfaces.ProofRecord{}, unavailable(err)
	}

	rec := interfaces.ProofRecord{
		ID:          id,
		Commitment:  interfaces.Commitment(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)),
		EventID:     *abi.ConvertType(out[1], new(string)).(*string),
		Submitter:   interfaces.Principal(*abi.ConvertType(out[2], new(common.Address)).(*common.Address)),
		SubmittedAt: (*abi.ConvertType(out[3], new(*big.Int)).(**big.Int)).Uint64(),
		Valid:       *abi.ConvertType(out[4], new(bool)).(*bool),
	}
	if token := *abi.ConvertType(out[5], new(*big.Int)).(**big.Int); token.Sign() > 0 {
		credential := interfaces.CredentialID(token.Uint64())
		rec.Credential = &credential
	}
	return rec, nil
}

func (l *Ledger) UserProofs(ctx context.Context, submitter interfaces.Principal) ([]interfaces.ProofID, error) {
	out, err := l.call(ctx, "getUserProofs", common.Address(submitter))
	if err != nil {
		return nil, unavailable(err)
	}
	return toIDs[interfaces.ProofID](*abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)), nil
}

func (l *Ledger) EventProofs(ctx context.Context, eventID string) ([]interfaces.ProofID, error) {
	out, err := l.call(ctx, "getEventProofs", eventID)
	if err != nil {
		return nil, unavailable(err)
	}
	return toIDs[interfaces.ProofID](*abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)), nil
}

func (l *Ledger) TotalProofs(ctx context.Context) (uint64, error) {
	out, err := l.call(ctx, "getTotalProofs")
	if err != nil {
		return 0, unavailable(err)
	}
	return (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(), nil
}

func (l *Ledger) HasValidProofForEvent(ctx context.Context, submitter interfaces.Principal, eventID string) (bool, error) {
	out, err := l.call(ctx, "hasValidProofForEvent", common.Address(submitter), eventID)
	if err != nil {
		return false, unavailable(err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// EventMetadata returns ErrNotFound when the contract holds no metadata for eventID.
func (l *Ledger) EventMetadata(ctx context.Context, eventID string) (interfaces.EventMetadata, error) {
	out, err := l.call(ctx, "getEventMetadata", eventID)
	if err != nil {
		return interfaces.EventMetadata{}, unavailable(err)
	}

	md := interfaces.EventMetadata{
		EventID:     eventID,
		DisplayName: *abi.ConvertType(out[0], new(string)).(*string),
		Description: *abi.ConvertType(out[1], new(string)).(*string),
		ImageRef:    *abi.ConvertType(out[2], new(string)).(*string),
		Location:    *abi.ConvertType(out[3], new(string)).(*string),
		EventDate:   *abi.ConvertType(out[4], new(string)).(*string),
	}
	if md == (interfaces.EventMetadata{EventID: eventID}) {
		return interfaces.EventMetadata{}, fmt.Errorf("%w: metadata for event %q", interfaces.ErrNotFound, eventID)
	}
	return md, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, owner interfaces.Principal) (uint64, error) {
	out, err := l.call(ctx, "balanceOf", common.Address(owner))
	if err != nil {
		return 0, unavailable(err)
	}
	return (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(), nil
}

func (l *Ledger) AssetAtIndex(ctx context.Context, owner interfaces.Principal, index uint64) (interfaces.CredentialID, error) {
	out, err := l.call(ctx, "tokenOfOwnerByIndex", common.Address(owner), new(big.Int).SetUint64(index))
	if err != nil {
		if isRevert(err) {
			return 0, fmt.Errorf("%w: index %d out of range for %s", interfaces.ErrNotFound, index, owner)
		}
		return 0, unavailable(err)
	}
	return interfaces.CredentialID((*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64()), nil
}

func (l *Ledger) AssetRef(ctx context.Context, id interfaces.CredentialID) (string, error) {
	out, err := l.call(ctx, "tokenURI", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		if isRevert(err) {
			return "", fmt.Errorf("%w: credential %d", interfaces.ErrNotFound, id)
		}
		return "", unavailable(err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}
