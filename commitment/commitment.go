// Package commitment computes the content commitment used as the registry's dedup key.
package commitment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"golang.org/x/crypto/sha3"
)

var commitArguments abi.Arguments

func init() {
	stringTy, _ := abi.NewType("string", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)
	uintTy, _ := abi.NewType("uint256", "", nil)

	commitArguments = abi.Arguments{
		{Name: "eventId", Type: stringTy},
		{Name: "proofData", Type: bytesTy},
		{Name: "submitter", Type: addressTy},
		{Name: "submittedAt", Type: uintTy},
	}
}

// Commit returns keccak256(abi.encode(eventID, proofData, submitter, submittedAt)).
//
// Dynamic fields are length-prefixed by the encoding, so no two distinct input
// tuples share a preimage. The submission time is part of the preimage: the same
// payload submitted at a different time yields a different commitment.
func Commit(eventID string, proofData []byte, submitter interfaces.Principal, submittedAt uint64) interfaces.Commitment {
	if proofData == nil {
		proofData = []byte{}
	}

	packed, err := commitArguments.Pack(eventID, proofData, common.Address(submitter), new(big.Int).SetUint64(submittedAt))
	if err != nil {
		// Pack only fails on type mismatches, which the signature above rules out.
		panic("commitment: abi pack: " + err.Error())
	}

	var out interfaces.Commitment
	h := sha3.NewLegacyKeccak256()
	h.Write(packed)
	h.Sum(out[:0])
	return out
}
