// Package memledger provides an in-process ledger that hosts a registry.Registry.
//
// Broadcast operations are queued and executed in order when a block is mined,
// either explicitly with Mine and AdvanceBlocks or by a background miner started
// with Start. Each executed operation yields a receipt (success or reverted) and
// the facts the registry emitted, indexed by block height and log index.
package memledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/registry"
	"go.uber.org/atomic"
	"golang.org/x/crypto/sha3"
)

const (
	baseCost        = 21000
	payloadByteCost = 16
)

type receipt struct {
	height  uint64
	outcome interfaces.Outcome
	used    uint64
	reason  string
}

type queued struct {
	handle interfaces.SubmissionHandle
	op     interfaces.Operation
}

// Authorizer decides whether the sender of op approves its broadcast.
type Authorizer func(op interfaces.Operation) bool

type Option func(*Ledger)

// WithQuota limits the number of operations principal may broadcast.
func WithQuota(principal interfaces.Principal, operations uint64) Option {
	return func(l *Ledger) {
		l.quota[principal] = operations
	}
}

// WithAuthorizer installs a hook consulted on every broadcast.
func WithAuthorizer(fn Authorizer) Option {
	return func(l *Ledger) {
		l.authorizer = fn
	}
}

// WithBlockInterval sets the period of the background miner started by Start.
func WithBlockInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.blockInterval = d
	}
}

// WithClock overrides the source of block timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger is an in-memory ledger executing operations against a Registry.
type Ledger struct {
	mu  sync.Mutex
	log *slog.Logger
	reg *registry.Registry

	height   uint64
	nonces   map[interfaces.Principal]uint64
	pending  []queued
	receipts map[interfaces.SubmissionHandle]receipt
	facts    []interfaces.Fact

	quota         map[interfaces.Principal]uint64
	authorizer    Authorizer
	blockInterval time.Duration
	now           func() time.Time
	available     atomic.Bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a ledger hosting reg.
func New(reg *registry.Registry, log *slog.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{
		log:      log,
		reg:      reg,
		nonces:   make(map[interfaces.Principal]uint64),
		receipts: make(map[interfaces.SubmissionHandle]receipt),
		quota:    make(map[interfaces.Principal]uint64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.available.Store(true)
	return l
}

// Registry returns the hosted registry.
func (l *Ledger) Registry() *registry.Registry {
	return l.reg
}

// SetAvailable toggles simulated node availability. While unavailable every
// call fails with interfaces.ErrLedgerUnavailable and no blocks are mined.
func (l *Ledger) SetAvailable(available bool) {
	l.available.Store(available)
}

func (l *Ledger) checkAvailable() error {
	if !l.available.Load() {
		return interfaces.ErrLedgerUnavailable
	}
	return nil
}

// Broadcast queues op for the next block and returns its handle.
func (l *Ledger) Broadcast(ctx context.Context, op interfaces.Operation) (interfaces.SubmissionHandle, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.SubmissionHandle{}, err
	}
	if err := l.checkAvailable(); err != nil {
		return interfaces.SubmissionHandle{}, err
	}
	if err := op.Validate(); err != nil {
		return interfaces.SubmissionHandle{}, err
	}
	if l.authorizer != nil && !l.authorizer(op) {
		return interfaces.SubmissionHandle{}, fmt.Errorf("%w: %s declined %s", interfaces.ErrSubmissionRejected, op.Sender, op.Kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if remaining, limited := l.quota[op.Sender]; limited {
		if remaining == 0 {
			return interfaces.SubmissionHandle{}, fmt.Errorf("%w: quota exhausted for %s", interfaces.ErrInsufficientResources, op.Sender)
		}
		l.quota[op.Sender] = remaining - 1
	}

	nonce := l.nonces[op.Sender]
	l.nonces[op.Sender] = nonce + 1
	handle := deriveHandle(op.Sender, nonce, op.Kind)

	l.pending = append(l.pending, queued{handle: handle, op: op})
	l.log.Debug("operation queued", slog.String("handle", handle.String()), slog.String("kind", string(op.Kind)), "nonce", nonce)
	return handle, nil
}

func deriveHandle(sender interfaces.Principal, nonce uint64, kind interfaces.OperationKind) interfaces.SubmissionHandle {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)

	var handle interfaces.SubmissionHandle
	h := sha3.NewLegacyKeccak256()
	h.Write(sender[:])
	h.Write(nonceBytes[:])
	h.Write([]byte(kind))
	h.Sum(handle[:0])
	return handle
}

// Mine executes every queued operation into a new block and returns its height.
func (l *Ledger) Mine() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mineLocked()
}

// AdvanceBlocks mines n blocks. Queued operations land in the first one.
func (l *Ledger) AdvanceBlocks(n int) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < n; i++ {
		l.mineLocked()
	}
	return l.height
}

func (l *Ledger) mineLocked() uint64 {
	l.height++
	timestamp := uint64(l.now().Unix())

	var logIndex uint
	for _, q := range l.pending {
		facts, err := l.execute(q.op, timestamp)
		r := receipt{height: l.height, used: cost(q.op)}
		if err != nil {
			r.outcome = interfaces.OutcomeReverted
			r.reason = err.Error()
			l.log.Debug("operation reverted", slog.String("handle", q.handle.String()), "err", err)
		} else {
			r.outcome = interfaces.OutcomeSuccess
			for _, f := range facts {
				f.Handle = q.handle
				f.Height = l.height
				f.Index = logIndex
				logIndex++
				l.facts = append(l.facts, f)
			}
		}
		l.receipts[q.handle] = r
	}
	if len(l.pending) > 0 {
		l.log.Debug("block mined", "height", l.height, "operations", len(l.pending))
	}
	l.pending = nil
	return l.height
}

func (l *Ledger) execute(op interfaces.Operation, timestamp uint64) ([]interfaces.Fact, error) {
	switch op.Kind {
	case interfaces.OpSubmitProof:
		_, facts, err := l.reg.SubmitProof(op.SubmitProof.EventID, op.SubmitProof.ProofData, op.Sender, timestamp)
		return facts, err
	case interfaces.OpValidateProof:
		return l.reg.ValidateProof(op.Sender, op.ValidateProof.ProofID, op.ValidateProof.IsValid, timestamp)
	case interfaces.OpSetEventMetadata:
		return l.reg.SetEventMetadata(op.Sender, *op.SetEventMetadata)
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Kind)
	}
}

func cost(op interfaces.Operation) uint64 {
	used := uint64(baseCost)
	switch op.Kind {
	case interfaces.OpSubmitProof:
		used += payloadByteCost * uint64(len(op.SubmitProof.ProofData)+len(op.SubmitProof.EventID))
	case interfaces.OpSetEventMetadata:
		md := op.SetEventMetadata
		used += payloadByteCost * uint64(len(md.EventID)+len(md.DisplayName)+len(md.Description)+len(md.ImageRef)+len(md.Location)+len(md.EventDate))
	}
	return used
}

// InclusionInfo reports the receipt of handle. Queued and unknown handles are not included.
func (l *Ledger) InclusionInfo(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.InclusionInfo, error) {
	if err := l.checkAvailable(); err != nil {
		return interfaces.InclusionInfo{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.receipts[handle]
	if !ok {
		return interfaces.InclusionInfo{}, nil
	}
	return interfaces.InclusionInfo{
		Included:     true,
		Height:       r.height,
		Outcome:      r.outcome,
		ResourceUsed: r.used,
		RevertReason: r.reason,
	}, nil
}

func (l *Ledger) CurrentHeight(ctx context.Context) (uint64, error) {
	if err := l.checkAvailable(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height, nil
}

// QueryLog returns the facts within the inclusive height range, in emission order.
func (l *Ledger) QueryLog(ctx context.Context, query interfaces.LogQuery) ([]interfaces.Fact, error) {
	if err := l.checkAvailable(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []interfaces.Fact
	for _, f := range l.facts {
		if f.Height < query.FromHeight || f.Height > query.ToHeight {
			continue
		}
		if query.Handle != nil && f.Handle != *query.Handle {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// Start runs the background miner if a block interval is configured.
func (l *Ledger) Start() {
	if l.blockInterval <= 0 || l.stop != nil {
		return
	}
	l.stop = make(chan struct{})

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.blockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				if l.available.Load() {
					l.Mine()
				}
			}
		}
	}()
	l.log.Info("background miner started", "interval", l.blockInterval)
}

// Close stops the background miner.
func (l *Ledger) Close() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	l.wg.Wait()
	l.stop = nil
}
