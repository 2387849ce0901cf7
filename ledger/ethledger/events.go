package ethledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

type proofSubmittedEvent struct {
	ProofId    *big.Int
	Commitment [32]byte
	EventId    string
	Submitter  common.Address
}

type proofValidatedEvent struct {
	ProofId   *big.Int
	IsValid   bool
	Validator common.Address
}

type credentialMintedEvent struct {
	TokenId     *big.Int
	ProofId     *big.Int
	Owner       common.Address
	EventId     string
	MetadataRef string
}

type eventMetadataSetEvent struct {
	EventId string
	Setter  common.Address
}

// decodeLog maps a contract log to a Fact. ok is false for events the registry
// does not model.
func (l *Ledger) decodeLog(entry types.Log) (fact interfaces.Fact, ok bool, err error) {
	if len(entry.Topics) == 0 {
		return interfaces.Fact{}, false, nil
	}

	fact = interfaces.Fact{
		Handle: interfaces.SubmissionHandle(entry.TxHash),
		Height: entry.BlockNumber,
		Index:  entry.Index,
	}

	switch entry.Topics[0] {
	case l.abi.Events["ProofSubmitted"].ID:
		var ev proofSubmittedEvent
		if err := l.contract.UnpackLog(&ev, "ProofSubmitted", entry); err != nil {
			return interfaces.Fact{}, false, err
		}
		fact.Kind = interfaces.FactProofSubmitted
		fact.ProofID = interfaces.ProofID(ev.ProofId.Uint64())
		fact.Commitment = interfaces.Commitment(ev.Commitment)
		fact.EventID = ev.EventId
		fact.Principal = interfaces.Principal(ev.Submitter)

	case l.abi.Events["ProofValidated"].ID:
		var ev proofValidatedEvent
		if err := l.contract.UnpackLog(&ev, "ProofValidated", entry); err != nil {
			return interfaces.Fact{}, false, err
		}
		fact.Kind = interfaces.FactProofValidated
		fact.ProofID = interfaces.ProofID(ev.ProofId.Uint64())
		fact.Valid = ev.IsValid
		fact.Principal = interfaces.Principal(ev.Validator)

	case l.abi.Events["CredentialMinted"].ID:
		var ev credentialMintedEvent
		if err := l.contract.UnpackLog(&ev, "CredentialMinted", entry); err != nil {
			return interfaces.Fact{}, false, err
		}
		fact.Kind = interfaces.FactCredentialMinted
		fact.CredentialID = interfaces.CredentialID(ev.TokenId.Uint64())
		fact.ProofID = interfaces.ProofID(ev.ProofId.Uint64())
		fact.Principal = interfaces.Principal(ev.Owner)
		fact.EventID = ev.EventId
		fact.MetadataRef = ev.MetadataRef

	case l.abi.Events["EventMetadataSet"].ID:
		var ev eventMetadataSetEvent
		if err := l.contract.UnpackLog(&ev, "EventMetadataSet", entry); err != nil {
			return interfaces.Fact{}, false, err
		}
		fact.Kind = interfaces.FactEventMetadataSet
		fact.EventID = ev.EventId
		fact.Principal = interfaces.Principal(ev.Setter)

	default:
		return interfaces.Fact{}, false, nil
	}
	return fact, true, nil
}
