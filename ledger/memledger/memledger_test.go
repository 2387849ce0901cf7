package memledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = interfaces.Principal{0xaa}
	addr1 = interfaces.Principal{0x01}
)

func newTestLedger(opts ...Option) *Ledger {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := WithClock(func() time.Time { return time.Unix(100, 0) })
	return New(registry.NewRegistry(owner, logger), logger, append([]Option{clock}, opts...)...)
}

func submitOp(sender interfaces.Principal, eventID, data string) interfaces.Operation {
	return interfaces.Operation{
		Kind:        interfaces.OpSubmitProof,
		Sender:      sender,
		SubmitProof: &interfaces.SubmitProofArgs{EventID: eventID, ProofData: []byte(data)},
	}
}

func TestBroadcastAndMine(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	handle, err := l.Broadcast(ctx, submitOp(addr1, "eth-summit", "proofA"))
	require.NoError(t, err)

	info, err := l.InclusionInfo(ctx, handle)
	require.NoError(t, err)
	assert.False(t, info.Included)

	height := l.Mine()
	assert.Equal(t, uint64(1), height)

	info, err = l.InclusionInfo(ctx, handle)
	require.NoError(t, err)
	assert.True(t, info.Included)
	assert.Equal(t, uint64(1), info.Height)
	assert.Equal(t, interfaces.OutcomeSuccess, info.Outcome)
	assert.Greater(t, info.ResourceUsed, uint64(baseCost))

	facts, err := l.QueryLog(ctx, interfaces.LogQuery{FromHeight: 1, ToHeight: 1, Handle: &handle})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, interfaces.FactProofSubmitted, facts[0].Kind)
	assert.Equal(t, uint(0), facts[0].Index)
	assert.Equal(t, interfaces.FactCredentialMinted, facts[1].Kind)
	assert.Equal(t, uint(1), facts[1].Index)
	assert.Equal(t, handle, facts[1].Handle)
	assert.Equal(t, interfaces.CredentialID(1), facts[1].CredentialID)

	rec, err := l.Proof(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rec.SubmittedAt)

	balance, err := l.BalanceOf(ctx, addr1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), balance)

	id, err := l.AssetAtIndex(ctx, addr1, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CredentialID(1), id)
}

func TestRevertedOperation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	first, err := l.Broadcast(ctx, submitOp(addr1, "e", "p"))
	require.NoError(t, err)
	second, err := l.Broadcast(ctx, submitOp(addr1, "e", "p"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "handles are unique per nonce")

	l.Mine()

	info, err := l.InclusionInfo(ctx, second)
	require.NoError(t, err)
	assert.True(t, info.Included)
	assert.Equal(t, interfaces.OutcomeReverted, info.Outcome)
	assert.Contains(t, info.RevertReason, interfaces.ErrDuplicateCommitment.Error())

	facts, err := l.QueryLog(ctx, interfaces.LogQuery{FromHeight: 0, ToHeight: 10, Handle: &second})
	require.NoError(t, err)
	assert.Empty(t, facts)

	all, err := l.QueryLog(ctx, interfaces.LogQuery{FromHeight: 0, ToHeight: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUnauthorizedValidationReverts(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.Broadcast(ctx, submitOp(addr1, "e", "p"))
	require.NoError(t, err)
	handle, err := l.Broadcast(ctx, interfaces.Operation{
		Kind:          interfaces.OpValidateProof,
		Sender:        addr1,
		ValidateProof: &interfaces.ValidateProofArgs{ProofID: 1, IsValid: false},
	})
	require.NoError(t, err)
	l.Mine()

	info, err := l.InclusionInfo(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, interfaces.OutcomeReverted, info.Outcome)
	assert.Contains(t, info.RevertReason, "unauthorized")
}

func TestBroadcastErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("quota", func(t *testing.T) {
		l := newTestLedger(WithQuota(addr1, 1))
		_, err := l.Broadcast(ctx, submitOp(addr1, "e", "1"))
		require.NoError(t, err)
		_, err = l.Broadcast(ctx, submitOp(addr1, "e", "2"))
		assert.ErrorIs(t, err, interfaces.ErrInsufficientResources)
		_, err = l.Broadcast(ctx, submitOp(owner, "e", "3"))
		assert.NoError(t, err)
	})

	t.Run("authorizer", func(t *testing.T) {
		l := newTestLedger(WithAuthorizer(func(op interfaces.Operation) bool { return op.Sender != addr1 }))
		_, err := l.Broadcast(ctx, submitOp(addr1, "e", "1"))
		assert.ErrorIs(t, err, interfaces.ErrSubmissionRejected)
	})

	t.Run("unavailable", func(t *testing.T) {
		l := newTestLedger()
		l.SetAvailable(false)
		_, err := l.Broadcast(ctx, submitOp(addr1, "e", "1"))
		assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
		_, err = l.CurrentHeight(ctx)
		assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
		_, err = l.InclusionInfo(ctx, interfaces.SubmissionHandle{})
		assert.True(t, interfaces.IsTransient(err))

		l.SetAvailable(true)
		_, err = l.CurrentHeight(ctx)
		assert.NoError(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		l := newTestLedger()
		_, err := l.Broadcast(ctx, interfaces.Operation{Kind: interfaces.OpSubmitProof, Sender: addr1})
		assert.Error(t, err)
	})
}

func TestAdvanceBlocks(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	handle, err := l.Broadcast(ctx, submitOp(addr1, "e", "p"))
	require.NoError(t, err)

	assert.Equal(t, uint64(3), l.AdvanceBlocks(3))
	info, err := l.InclusionInfo(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Height)

	height, err := l.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), height)
}

func TestBackgroundMiner(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(WithBlockInterval(5 * time.Millisecond))
	l.Start()
	defer l.Close()

	handle, err := l.Broadcast(ctx, submitOp(addr1, "e", "p"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := l.InclusionInfo(ctx, handle)
		return err == nil && info.Included
	}, time.Second, 5*time.Millisecond)
}

func TestEventMetadataOperation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	md := interfaces.EventMetadata{EventID: "e", ImageRef: "ipfs://img"}
	handle, err := l.Broadcast(ctx, interfaces.Operation{Kind: interfaces.OpSetEventMetadata, Sender: owner, SetEventMetadata: &md})
	require.NoError(t, err)
	l.Mine()

	facts, err := l.QueryLog(ctx, interfaces.LogQuery{FromHeight: 1, ToHeight: 1, Handle: &handle})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, interfaces.FactEventMetadataSet, facts[0].Kind)

	got, err := l.EventMetadata(ctx, "e")
	require.NoError(t, err)
	assert.Equal(t, md, got)

	_, err = l.Broadcast(ctx, submitOp(addr1, "e", "p"))
	require.NoError(t, err)
	l.Mine()

	ref, err := l.AssetRef(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://img", ref)
}
