// Package ethledger implements interfaces.Ledger on top of a ProofRegistry
// contract deployed on an EVM chain.
//
// Submission handles are transaction hashes. Inclusion comes from transaction
// receipts, the log from contract events filtered to the transaction hash.
package ethledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without a signer.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// ChainBackend is the subset of ethclient.Client the ledger needs.
type ChainBackend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Config struct {
	Contract common.Address
	// GasLimit and GasPrice are estimated by the node when zero.
	GasLimit uint64
	GasPrice *big.Int
}

type Ledger struct {
	cfg      Config
	backend  ChainBackend
	abi      abi.ABI
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	log      *slog.Logger
}

// New binds the ProofRegistry contract at cfg.Contract. auth may be nil for a
// read-only ledger.
func New(backend ChainBackend, cfg Config, auth *bind.TransactOpts, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}
	parsed, err := abi.JSON(strings.NewReader(ProofRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	return &Ledger{
		cfg:      cfg,
		backend:  backend,
		abi:      parsed,
		contract: bind.NewBoundContract(cfg.Contract, parsed, backend, backend, backend),
		auth:     auth,
		log:      log,
	}, nil
}

// Broadcast signs and sends the transaction for op. The sender must be the
// configured signer.
func (l *Ledger) Broadcast(ctx context.Context, op interfaces.Operation) (interfaces.SubmissionHandle, error) {
	if err := op.Validate(); err != nil {
		return interfaces.SubmissionHandle{}, err
	}
	if l.auth == nil {
		return interfaces.SubmissionHandle{}, ErrNoTransactOpts
	}
	if common.Address(op.Sender) != l.auth.From {
		return interfaces.SubmissionHandle{}, fmt.Errorf("%w: signer %s cannot authorize for %s", interfaces.ErrSubmissionRejected, l.auth.From.Hex(), op.Sender)
	}

	opts := *l.auth
	opts.Context = ctx
	if l.cfg.GasLimit != 0 {
		opts.GasLimit = l.cfg.GasLimit
	}
	if l.cfg.GasPrice != nil {
		opts.GasPrice = l.cfg.GasPrice
	}

	var (
		tx  *types.Transaction
		err error
	)
	switch op.Kind {
	case interfaces.OpSubmitProof:
		tx, err = l.contract.Transact(&opts, "submitProof", op.SubmitProof.EventID, op.SubmitProof.ProofData)
	case interfaces.OpValidateProof:
		tx, err = l.contract.Transact(&opts, "validateProof", new(big.Int).SetUint64(uint64(op.ValidateProof.ProofID)), op.ValidateProof.IsValid)
	case interfaces.OpSetEventMetadata:
		md := op.SetEventMetadata
		tx, err = l.contract.Transact(&opts, "setEventMetadata", md.EventID, md.DisplayName, md.Description, md.ImageRef, md.Location, md.EventDate)
	}
	if err != nil {
		return interfaces.SubmissionHandle{}, classifyBroadcastError(err)
	}

	handle := interfaces.SubmissionHandle(tx.Hash())
	l.log.Debug("transaction sent", slog.String("handle", handle.String()), slog.String("kind", string(op.Kind)), "nonce", tx.Nonce())
	return handle, nil
}

func classifyBroadcastError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "gas limit"), strings.Contains(msg, "intrinsic gas too low"):
		return fmt.Errorf("%w: %w", interfaces.ErrInsufficientResources, err)
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "rejected"), strings.Contains(msg, "not authorized"):
		return fmt.Errorf("%w: %w", interfaces.ErrSubmissionRejected, err)
	case strings.Contains(msg, "execution reverted"):
		// Reverts during gas estimation are deterministic contract failures.
		return fmt.Errorf("%w: %w", interfaces.ErrTerminalFailure, err)
	default:
		return fmt.Errorf("%w: %w", interfaces.ErrLedgerUnavailable, err)
	}
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", interfaces.ErrLedgerUnavailable, err)
}

// InclusionInfo reads the transaction receipt. A missing receipt means not yet included.
func (l *Ledger) InclusionInfo(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.InclusionInfo, error) {
	receipt, err := l.backend.TransactionReceipt(ctx, handle.Hash())
	if errors.Is(err, ethereum.NotFound) {
		return interfaces.InclusionInfo{}, nil
	}
	if err != nil {
		return interfaces.InclusionInfo{}, unavailable(err)
	}

	info := interfaces.InclusionInfo{
		Included:     true,
		Height:       receipt.BlockNumber.Uint64(),
		ResourceUsed: receipt.GasUsed,
		Outcome:      interfaces.OutcomeSuccess,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		info.Outcome = interfaces.OutcomeReverted
		info.RevertReason = "execution reverted"
	}
	return info, nil
}

func (l *Ledger) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := l.backend.BlockNumber(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	return height, nil
}

// QueryLog filters contract logs in the height range and decodes registry events.
func (l *Ledger) QueryLog(ctx context.Context, query interfaces.LogQuery) ([]interfaces.Fact, error) {
	logs, err := l.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(query.FromHeight),
		ToBlock:   new(big.Int).SetUint64(query.ToHeight),
		Addresses: []common.Address{l.cfg.Contract},
	})
	if err != nil {
		return nil, unavailable(err)
	}

	var facts []interfaces.Fact
	for _, entry := range logs {
		if entry.Removed {
			continue
		}
		if query.Handle != nil && entry.TxHash != query.Handle.Hash() {
			continue
		}
		fact, ok, err := l.decodeLog(entry)
		if err != nil {
			l.log.Warn("skipping undecodable registry log", "tx", entry.TxHash.Hex(), "index", entry.Index, "err", err)
			continue
		}
		if ok {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}
