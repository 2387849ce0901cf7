// Package prover generates proof payloads from a private witness.
//
// Groth16Generator proves knowledge of a secret bound to an event tag over
// BN254. Fallback passes the witness through unchanged when no proving
// system is configured.
package prover

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

const curveID = ecc.BN254

var ErrInvalidProof = errors.New("invalid proof payload")

// attendanceCircuit asserts Secret*Secret + Tag == Digest. Tag and Digest are public.
type attendanceCircuit struct {
	Secret frontend.Variable
	Tag    frontend.Variable `gnark:",public"`
	Digest frontend.Variable `gnark:",public"`
}

func (c *attendanceCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Add(api.Mul(c.Secret, c.Secret), c.Tag), c.Digest)
	return nil
}

// Groth16Generator holds the compiled circuit and keys from a one-time setup.
type Groth16Generator struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
	log *slog.Logger
}

func NewGroth16Generator(log *slog.Logger) (*Groth16Generator, error) {
	if log == nil {
		log = slog.Default()
	}

	ccs, err := frontend.Compile(curveID.ScalarField(), r1cs.NewBuilder, &attendanceCircuit{})
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}

	log.Info("groth16 prover ready", "constraints", ccs.GetNbConstraints())
	return &Groth16Generator{ccs: ccs, pk: pk, vk: vk, log: log}, nil
}

func eventTag(eventID string) fr.Element {
	var tag fr.Element
	tag.SetBytes(crypto.Keccak256([]byte(eventID)))
	return tag
}

// Generate proves knowledge of the witness for eventID. The payload is the
// length-prefixed proof followed by the binary public witness.
func (g *Groth16Generator) Generate(ctx context.Context, eventID string, secret []byte) ([]byte, error) {
	if eventID == "" {
		return nil, interfaces.ErrEmptyEventID
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: witness", interfaces.ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var s, digest fr.Element
	s.SetBytes(secret)
	tag := eventTag(eventID)
	digest.Square(&s)
	digest.Add(&digest, &tag)

	assignment := &attendanceCircuit{
		Secret: s.BigInt(new(big.Int)),
		Tag:    tag.BigInt(new(big.Int)),
		Digest: digest.BigInt(new(big.Int)),
	}
	fullWitness, err := frontend.NewWitness(assignment, curveID.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}

	proof, err := groth16.Prove(g.ccs, g.pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}
	publicWitness, err := fullWitness.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	publicBytes, err := publicWitness.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize public witness: %w", err)
	}

	payload := make([]byte, 4, 4+proofBuf.Len()+len(publicBytes))
	binary.BigEndian.PutUint32(payload, uint32(proofBuf.Len()))
	payload = append(payload, proofBuf.Bytes()...)
	payload = append(payload, publicBytes...)

	g.log.Debug("proof generated", slog.String("event_id", eventID), slog.Int("size", len(payload)))
	return payload, nil
}

// Verify checks a payload produced by Generate and that its public tag belongs to eventID.
func (g *Groth16Generator) Verify(eventID string, payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("%w: truncated", ErrInvalidProof)
	}
	proofLen := int(binary.BigEndian.Uint32(payload))
	if proofLen > len(payload)-4 {
		return fmt.Errorf("%w: truncated proof", ErrInvalidProof)
	}

	proof := groth16.NewProof(curveID)
	if _, err := proof.ReadFrom(bytes.NewReader(payload[4 : 4+proofLen])); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	publicWitness, err := witness.New(curveID.ScalarField())
	if err != nil {
		return err
	}
	if err := publicWitness.UnmarshalBinary(payload[4+proofLen:]); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	values, ok := publicWitness.Vector().(fr.Vector)
	if !ok || len(values) != 2 {
		return fmt.Errorf("%w: unexpected public witness", ErrInvalidProof)
	}
	tag := eventTag(eventID)
	if !values[0].Equal(&tag) {
		return fmt.Errorf("%w: proof is bound to another event", ErrInvalidProof)
	}

	if err := groth16.Verify(proof, g.vk, publicWitness); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	return nil
}

func (g *Groth16Generator) Available() bool { return true }

func (g *Groth16Generator) Name() string { return "groth16-bn254" }

// Fallback is used when no proving system is configured. The witness is
// submitted as the proof payload.
type Fallback struct{}

func (Fallback) Generate(ctx context.Context, eventID string, witness []byte) ([]byte, error) {
	if len(witness) == 0 {
		return nil, fmt.Errorf("%w: witness", interfaces.ErrEmptyInput)
	}
	return bytes.Clone(witness), nil
}

func (Fallback) Available() bool { return false }

func (Fallback) Name() string { return "passthrough" }

var (
	_ interfaces.ProofGenerator = (*Groth16Generator)(nil)
	_ interfaces.ProofGenerator = Fallback{}
)
