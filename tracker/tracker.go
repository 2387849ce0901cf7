// Package tracker implements the confirmation tracker: it monitors broadcast
// submissions until the ledger reports a terminal outcome, keeps a status cache
// per handle, and extracts minted credential ids from the execution log.
//
// At most one poller runs per handle. Concurrent Monitor calls for the same
// handle attach to the running poller and each apply their own deadline. The
// poller stops once the status is terminal or the last waiter leaves.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/metrics"
)

var ErrTrackerClosed = errors.New("tracker closed")

const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollInterval = 30 * time.Second
)

type Config struct {
	// RequiredConfirmations is the depth at which a successful inclusion becomes Confirmed.
	RequiredConfirmations uint64
	// PollInterval is the delay between polls while the ledger answers.
	PollInterval time.Duration
	// MaxPollInterval caps the backoff applied after transient ledger errors.
	MaxPollInterval time.Duration
	// FailOnTimeout marks a submission Failed when a Monitor deadline expires.
	FailOnTimeout bool
}

func (c *Config) setDefaults() {
	if c.RequiredConfirmations == 0 {
		c.RequiredConfirmations = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = max(DefaultMaxPollInterval, c.PollInterval)
	}
}

type poller struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
}

type entry struct {
	status    interfaces.ConfirmationStatus // guarded by Tracker.mu
	active    *poller                       // guarded by Tracker.mu
	published bool                          // guarded by Tracker.mu

	// stepMu serializes ledger polls for the handle, from the poller and Refresh.
	stepMu sync.Mutex
}

type Tracker struct {
	cfg    Config
	ledger interfaces.Ledger
	parser *EventLogParser
	sink   interfaces.StatusSink
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[interfaces.SubmissionHandle]*entry
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a tracker polling ledger. sink may be nil.
func New(cfg Config, ledger interfaces.Ledger, sink interfaces.StatusSink, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	cfg.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		cfg:     cfg,
		ledger:  ledger,
		parser:  NewEventLogParser(ledger),
		sink:    sink,
		log:     log,
		now:     time.Now,
		entries: make(map[interfaces.SubmissionHandle]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Monitor blocks until handle reaches a terminal status or ctx is done.
//
// When ctx's deadline expires first, the last known status is returned with
// ErrPollingTimeout; the status stays Pending unless FailOnTimeout is set.
// Cancellation returns the last known status with ctx.Err().
func (t *Tracker) Monitor(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return interfaces.ConfirmationStatus{}, ErrTrackerClosed
	}
	e := t.entryLocked(handle)
	if e.status.Terminal() {
		status := e.status
		t.mu.Unlock()
		return status, nil
	}
	p := e.active
	if p == nil {
		p = t.startPollerLocked(handle, e)
	}
	p.waiters++
	t.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
	}

	t.mu.Lock()
	p.waiters--
	if p.waiters == 0 && e.active == p {
		p.cancel()
		e.active = nil
	}
	status := e.status
	t.mu.Unlock()

	if status.Terminal() {
		return status, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if t.cfg.FailOnTimeout {
			status = t.apply(e, failedOnTimeout(status))
		}
		t.log.Debug("monitor deadline exceeded", slog.String("handle", handle.String()), slog.String("state", string(status.State)))
		return status, fmt.Errorf("%w: %s", interfaces.ErrPollingTimeout, handle)
	case ctx.Err() != nil:
		return status, ctx.Err()
	default:
		return status, ErrTrackerClosed
	}
}

// Track starts monitoring handle in the background until it is terminal or the tracker closes.
func (t *Tracker) Track(handle interfaces.SubmissionHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if _, err := t.Monitor(t.ctx, handle); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrTrackerClosed) {
			t.log.Warn("background monitor stopped", slog.String("handle", handle.String()), "err", err)
		}
	}()
}

// Status returns the cached status of handle without touching the ledger.
// The second result is false if the handle was never monitored.
func (t *Tracker) Status(handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[handle]
	if !ok {
		return interfaces.ConfirmationStatus{}, false
	}
	return e.status, true
}

// Statuses returns a snapshot of every tracked status ordered by handle.
func (t *Tracker) Statuses() []interfaces.ConfirmationStatus {
	t.mu.Lock()
	out := make([]interfaces.ConfirmationStatus, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.status)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Handle.String() < out[j].Handle.String()
	})
	return out
}

// Refresh polls the ledger once for handle and returns the merged status.
// Unknown handles start being tracked. Transient ledger errors leave the
// status unchanged and are not returned.
func (t *Tracker) Refresh(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return interfaces.ConfirmationStatus{}, ErrTrackerClosed
	}
	e := t.entryLocked(handle)
	t.mu.Unlock()

	status, err := t.step(ctx, handle, e)
	if err != nil && ctx.Err() != nil {
		return status, ctx.Err()
	}
	return status, nil
}

// Close stops every poller and waits for them to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) entryLocked(handle interfaces.SubmissionHandle) *entry {
	e, ok := t.entries[handle]
	if !ok {
		e = &entry{status: interfaces.ConfirmationStatus{
			Handle:    handle,
			State:     interfaces.StatePending,
			UpdatedAt: t.now(),
		}}
		t.entries[handle] = e
	}
	return e
}

func (t *Tracker) startPollerLocked(handle interfaces.SubmissionHandle, e *entry) *poller {
	ctx, cancel := context.WithCancel(t.ctx)
	p := &poller{done: make(chan struct{}), cancel: cancel}
	e.active = p

	t.wg.Add(1)
	metrics.ActiveMonitors.Inc()
	go func() {
		defer t.wg.Done()
		defer metrics.ActiveMonitors.Dec()
		defer close(p.done)
		defer func() {
			t.mu.Lock()
			if e.active == p {
				e.active = nil
			}
			t.mu.Unlock()
			cancel()
		}()

		t.poll(ctx, handle, e)
	}()
	return p
}

func (t *Tracker) poll(ctx context.Context, handle interfaces.SubmissionHandle, e *entry) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.PollInterval
	bo.MaxInterval = t.cfg.MaxPollInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		status, err := t.step(ctx, handle, e)
		if status.Terminal() {
			return
		}

		next := t.cfg.PollInterval
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			next = bo.NextBackOff()
			t.log.Warn("ledger poll failed", slog.String("handle", handle.String()), "retryIn", next, "err", err)
		} else {
			bo.Reset()
		}
		timer.Reset(next)
	}
}

// step performs one ledger poll and merges the result into the cached status.
// On error the cached status is returned unchanged.
func (t *Tracker) step(ctx context.Context, handle interfaces.SubmissionHandle, e *entry) (interfaces.ConfirmationStatus, error) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	t.mu.Lock()
	current := e.status
	t.mu.Unlock()
	if current.Terminal() {
		return current, nil
	}

	info, err := t.ledger.InclusionInfo(ctx, handle)
	if err != nil {
		metrics.PollErrors.Inc()
		return current, err
	}
	if !info.Included {
		return t.apply(e, current), nil
	}

	height, err := t.ledger.CurrentHeight(ctx)
	if err != nil {
		metrics.PollErrors.Inc()
		return current, err
	}

	next := current
	next.Confirmations = max(current.Confirmations, confirmations(height, info.Height))
	used := info.ResourceUsed
	next.ResourceUsed = &used

	switch info.Outcome {
	case interfaces.OutcomeReverted:
		finalized := info.Height
		next.State = interfaces.StateFailed
		next.FinalizedAt = &finalized
		next.FailureReason = info.RevertReason
		if next.FailureReason == "" {
			next.FailureReason = interfaces.ErrTerminalFailure.Error()
		}
	case interfaces.OutcomeSuccess:
		if next.Confirmations >= t.cfg.RequiredConfirmations {
			extracted, err := t.parser.Parse(ctx, handle, info.Height)
			if err != nil {
				metrics.PollErrors.Inc()
				return current, err
			}
			finalized := info.Height
			next.State = interfaces.StateConfirmed
			next.FinalizedAt = &finalized
			next.ProofID = extracted.ProofID
			next.MintedCredentialID = extracted.CredentialID
		}
	}

	return t.apply(e, next), nil
}

func confirmations(current, included uint64) uint64 {
	if current < included {
		return 0
	}
	return current - included + 1
}

func failedOnTimeout(status interfaces.ConfirmationStatus) interfaces.ConfirmationStatus {
	status.State = interfaces.StateFailed
	status.FailureReason = interfaces.ErrPollingTimeout.Error()
	return status
}

// apply stores next unless the cached status is already terminal, and returns
// the stored value. Confirmations never decrease.
func (t *Tracker) apply(e *entry, next interfaces.ConfirmationStatus) interfaces.ConfirmationStatus {
	t.mu.Lock()
	if e.status.Terminal() {
		status := e.status
		t.mu.Unlock()
		return status
	}

	next.Confirmations = max(next.Confirmations, e.status.Confirmations)
	next.UpdatedAt = t.now()
	e.status = next

	publish := next.Terminal() && !e.published
	if publish {
		e.published = true
	}
	t.mu.Unlock()

	if publish {
		t.publish(next)
	}
	return next
}

func (t *Tracker) publish(status interfaces.ConfirmationStatus) {
	metrics.SubmissionsTerminal.WithLabelValues(string(status.State)).Inc()
	t.log.Info("submission terminal",
		slog.String("handle", status.Handle.String()),
		slog.String("state", string(status.State)),
		"confirmations", status.Confirmations,
		slog.String("reason", status.FailureReason),
	)

	if t.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.sink.Publish(ctx, status); err != nil {
		t.log.Error("failed to publish terminal status", slog.String("handle", status.Handle.String()), "err", err)
	}
}
