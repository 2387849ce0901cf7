// Package service implements the proof submission flow on top of a ledger:
// broadcast, confirmation tracking, and storing minted credentials in the
// local wallet.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/prover"
	"github.com/ruteri/proof-credential-registry/tracker"
)

// Backend is a ledger that also serves registry and credential reads.
type Backend interface {
	interfaces.Ledger
	interfaces.CredentialLedger
	interfaces.RegistryReader
}

type Config struct {
	// MonitorTimeout bounds background confirmation waits. Zero waits until
	// the submission is terminal or the service closes.
	MonitorTimeout time.Duration
}

// SubmitRequest is one proof submission. When ProofData is empty the
// configured ProofGenerator derives it from Witness.
type SubmitRequest struct {
	EventID   string
	ProofData []byte
	Witness   []byte
	Submitter interfaces.Principal
}

type ProofService struct {
	cfg     Config
	backend Backend
	tracker *tracker.Tracker
	wallet  interfaces.Wallet
	prover  interfaces.ProofGenerator
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the service. wallet may be nil, generator defaults to prover.Fallback.
func New(cfg Config, backend Backend, tr *tracker.Tracker, wallet interfaces.Wallet, generator interfaces.ProofGenerator, log *slog.Logger) *ProofService {
	if log == nil {
		log = slog.Default()
	}
	if generator == nil {
		generator = prover.Fallback{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProofService{
		cfg:     cfg,
		backend: backend,
		tracker: tr,
		wallet:  wallet,
		prover:  generator,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SubmitProof broadcasts a submit_proof operation and starts monitoring it in
// the background. Empty inputs are rejected before anything is broadcast.
func (s *ProofService) SubmitProof(ctx context.Context, req SubmitRequest) (interfaces.SubmissionHandle, error) {
	if req.EventID == "" {
		return interfaces.SubmissionHandle{}, interfaces.ErrEmptyEventID
	}

	payload := req.ProofData
	if len(payload) == 0 && len(req.Witness) > 0 {
		generated, err := s.prover.Generate(ctx, req.EventID, req.Witness)
		if err != nil {
			return interfaces.SubmissionHandle{}, fmt.Errorf("generate proof with %s: %w", s.prover.Name(), err)
		}
		payload = generated
	}
	if len(payload) == 0 {
		return interfaces.SubmissionHandle{}, interfaces.ErrEmptyPayload
	}

	handle, err := s.backend.Broadcast(ctx, interfaces.Operation{
		Kind:        interfaces.OpSubmitProof,
		Sender:      req.Submitter,
		SubmitProof: &interfaces.SubmitProofArgs{EventID: req.EventID, ProofData: payload},
	})
	if err != nil {
		return interfaces.SubmissionHandle{}, err
	}

	s.log.Info("proof submitted",
		slog.String("handle", handle.String()),
		slog.String("event_id", req.EventID),
		slog.String("submitter", req.Submitter.String()))
	s.watch(handle)
	return handle, nil
}

// ValidateProof broadcasts a validate_proof operation on behalf of caller.
func (s *ProofService) ValidateProof(ctx context.Context, caller interfaces.Principal, id interfaces.ProofID, isValid bool) (interfaces.SubmissionHandle, error) {
	handle, err := s.backend.Broadcast(ctx, interfaces.Operation{
		Kind:          interfaces.OpValidateProof,
		Sender:        caller,
		ValidateProof: &interfaces.ValidateProofArgs{ProofID: id, IsValid: isValid},
	})
	if err != nil {
		return interfaces.SubmissionHandle{}, err
	}
	s.watch(handle)
	return handle, nil
}

// SetEventMetadata broadcasts a set_event_metadata operation on behalf of caller.
func (s *ProofService) SetEventMetadata(ctx context.Context, caller interfaces.Principal, md interfaces.EventMetadata) (interfaces.SubmissionHandle, error) {
	if md.EventID == "" {
		return interfaces.SubmissionHandle{}, interfaces.ErrEmptyEventID
	}
	handle, err := s.backend.Broadcast(ctx, interfaces.Operation{
		Kind:             interfaces.OpSetEventMetadata,
		Sender:           caller,
		SetEventMetadata: &md,
	})
	if err != nil {
		return interfaces.SubmissionHandle{}, err
	}
	s.watch(handle)
	return handle, nil
}

// watch awaits handle in the background so minted credentials reach the wallet
// even when no caller waits.
func (s *ProofService) watch(handle interfaces.SubmissionHandle) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx := s.ctx
		if s.cfg.MonitorTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.MonitorTimeout)
			defer cancel()
		}

		_, err := s.AwaitSubmission(ctx, handle)
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, tracker.ErrTrackerClosed):
		case errors.Is(err, interfaces.ErrPollingTimeout):
			s.log.Warn("submission not finalized before monitor timeout", slog.String("handle", handle.String()))
		default:
			s.log.Error("background monitor failed", slog.String("handle", handle.String()), "err", err)
		}
	}()
}

// AwaitSubmission waits for handle to become terminal. A confirmed mint is
// stored in the wallet before returning.
func (s *ProofService) AwaitSubmission(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error) {
	status, err := s.tracker.Monitor(ctx, handle)
	if err != nil {
		return status, err
	}
	if status.State != interfaces.StateConfirmed || status.MintedCredentialID == nil || s.wallet == nil {
		return status, nil
	}
	if err := s.storeCredential(ctx, status); err != nil {
		return status, err
	}
	return status, nil
}

func (s *ProofService) storeCredential(ctx context.Context, status interfaces.ConfirmationStatus) error {
	id := *status.MintedCredentialID
	if status.ProofID == nil {
		return fmt.Errorf("%w: credential %d minted without proof id", interfaces.ErrInvariantViolation, id)
	}

	record, err := s.backend.Proof(ctx, *status.ProofID)
	if err != nil {
		return fmt.Errorf("read proof %d: %w", *status.ProofID, err)
	}
	ref, err := s.backend.AssetRef(ctx, id)
	if err != nil {
		return fmt.Errorf("read credential %d ref: %w", id, err)
	}

	credential := interfaces.Credential{
		ID:          id,
		ProofID:     record.ID,
		Owner:       record.Submitter,
		EventID:     record.EventID,
		MetadataRef: ref,
		MintedAt:    status.UpdatedAt,
	}
	if err := s.wallet.Put(ctx, credential); err != nil {
		s.log.Error("failed to store credential in wallet", "credential_id", id, "err", err)
		return fmt.Errorf("store credential %d: %w", id, err)
	}
	return nil
}

// WalletView enumerates the credentials owned by principal on the ledger.
// Locally stored credentials fill in the proof and event fields.
func (s *ProofService) WalletView(ctx context.Context, owner interfaces.Principal) ([]interfaces.Credential, error) {
	balance, err := s.backend.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}

	credentials := make([]interfaces.Credential, 0, balance)
	for i := uint64(0); i < balance; i++ {
		id, err := s.backend.AssetAtIndex(ctx, owner, i)
		if err != nil {
			return nil, fmt.Errorf("credential %d of %s: %w", i, owner, err)
		}

		if s.wallet != nil {
			if local, err := s.wallet.Get(ctx, id); err == nil {
				credentials = append(credentials, local)
				continue
			}
		}

		ref, err := s.backend.AssetRef(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("credential %d ref: %w", id, err)
		}
		credentials = append(credentials, interfaces.Credential{ID: id, Owner: owner, MetadataRef: ref})
	}
	return credentials, nil
}

// LocalCredentials lists the wallet contents.
func (s *ProofService) LocalCredentials(ctx context.Context) ([]interfaces.Credential, error) {
	if s.wallet == nil {
		return nil, nil
	}
	return s.wallet.List(ctx)
}

// Status returns the tracked status of handle; false if it was never monitored.
func (s *ProofService) Status(handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, bool) {
	return s.tracker.Status(handle)
}

// Refresh polls the ledger once for handle.
func (s *ProofService) Refresh(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error) {
	return s.tracker.Refresh(ctx, handle)
}

// Reader exposes the registry read surface of the backend.
func (s *ProofService) Reader() interfaces.RegistryReader {
	return s.backend
}

// Close stops background monitors and waits for them to return.
func (s *ProofService) Close() {
	s.cancel()
	s.wg.Wait()
}
