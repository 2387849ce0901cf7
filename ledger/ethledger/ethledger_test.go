package ethledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChain mocks ChainBackend
type MockChain struct {
	mock.Mock
}

func (m *MockChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, contract, blockNumber)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, call, blockNumber)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	return args.Get(0).(*types.Header), args.Error(1)
}

func (m *MockChain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	args := m.Called(ctx, account)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]types.Log), args.Error(1)
}

func (m *MockChain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	args := m.Called(ctx, q, ch)
	return args.Get(0).(ethereum.Subscription), args.Error(1)
}

func (m *MockChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

func (m *MockChain) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

var contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")

func newTestLedger(t *testing.T, chain *MockChain, auth *bind.TransactOpts) *Ledger {
	l, err := New(chain, Config{Contract: contractAddr, GasLimit: 500000, GasPrice: big.NewInt(1)}, auth, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return l
}

func newAuth(t *testing.T) *bind.TransactOpts {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	return auth
}

func TestInclusionInfo(t *testing.T) {
	handle := interfaces.SubmissionHandle{0x01}

	tests := []struct {
		name    string
		receipt *types.Receipt
		err     error
		want    interfaces.InclusionInfo
		wantErr error
	}{
		{
			name: "not yet included",
			err:  ethereum.NotFound,
			want: interfaces.InclusionInfo{},
		},
		{
			name:    "success",
			receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(12), GasUsed: 50000},
			want:    interfaces.InclusionInfo{Included: true, Height: 12, Outcome: interfaces.OutcomeSuccess, ResourceUsed: 50000},
		},
		{
			name:    "reverted",
			receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(13), GasUsed: 30000},
			want:    interfaces.InclusionInfo{Included: true, Height: 13, Outcome: interfaces.OutcomeReverted, ResourceUsed: 30000, RevertReason: "execution reverted"},
		},
		{
			name:    "node down",
			err:     errors.New("dial tcp: connection refused"),
			wantErr: interfaces.ErrLedgerUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := new(MockChain)
			chain.On("TransactionReceipt", mock.Anything, handle.Hash()).Return(tc.receipt, tc.err)

			info, err := newTestLedger(t, chain, nil).InclusionInfo(context.Background(), handle)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, info)
		})
	}
}

func TestCurrentHeight(t *testing.T) {
	chain := new(MockChain)
	chain.On("BlockNumber", mock.Anything).Return(uint64(42), nil).Once()
	chain.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("timeout")).Once()

	l := newTestLedger(t, chain, nil)
	height, err := l.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)

	_, err = l.CurrentHeight(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
}

func buildLog(t *testing.T, parsed abi.ABI, name string, tx common.Hash, index uint, topics []common.Hash, data ...interface{}) types.Log {
	event := parsed.Events[name]
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddr,
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        packed,
		BlockNumber: 7,
		TxHash:      tx,
		Index:       index,
	}
}

func TestQueryLogDecodesFacts(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ProofRegistryABI))
	require.NoError(t, err)

	tx := common.HexToHash("0x01")
	otherTx := common.HexToHash("0x02")
	submitter := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	commitment := common.HexToHash("0xc0ffee")

	logs := []types.Log{
		buildLog(t, parsed, "ProofSubmitted", tx, 0,
			[]common.Hash{common.BigToHash(big.NewInt(3)), commitment, common.BytesToHash(submitter.Bytes())},
			"eth-summit"),
		buildLog(t, parsed, "CredentialMinted", tx, 1,
			[]common.Hash{common.BigToHash(big.NewInt(2)), common.BigToHash(big.NewInt(3)), common.BytesToHash(submitter.Bytes())},
			"eth-summit", "ipfs://img"),
		buildLog(t, parsed, "ProofValidated", otherTx, 2,
			[]common.Hash{common.BigToHash(big.NewInt(1)), common.BytesToHash(submitter.Bytes())},
			false),
		buildLog(t, parsed, "EventMetadataSet", tx, 3,
			[]common.Hash{common.BytesToHash(submitter.Bytes())},
			"eth-summit"),
		{Address: contractAddr, Topics: []common.Hash{common.HexToHash("0xdead")}, TxHash: tx, BlockNumber: 7, Index: 4},
	}

	chain := new(MockChain)
	chain.On("FilterLogs", mock.Anything, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == 7 && q.ToBlock.Uint64() == 7 && q.Addresses[0] == contractAddr
	})).Return(logs, nil)

	l := newTestLedger(t, chain, nil)
	handle := interfaces.SubmissionHandle(tx)
	facts, err := l.QueryLog(context.Background(), interfaces.LogQuery{FromHeight: 7, ToHeight: 7, Handle: &handle})
	require.NoError(t, err)
	require.Len(t, facts, 3)

	assert.Equal(t, interfaces.FactProofSubmitted, facts[0].Kind)
	assert.Equal(t, interfaces.ProofID(3), facts[0].ProofID)
	assert.Equal(t, interfaces.Commitment(commitment), facts[0].Commitment)
	assert.Equal(t, "eth-summit", facts[0].EventID)
	assert.Equal(t, interfaces.Principal(submitter), facts[0].Principal)
	assert.Equal(t, handle, facts[0].Handle)
	assert.Equal(t, uint64(7), facts[0].Height)

	assert.Equal(t, interfaces.FactCredentialMinted, facts[1].Kind)
	assert.Equal(t, interfaces.CredentialID(2), facts[1].CredentialID)
	assert.Equal(t, interfaces.ProofID(3), facts[1].ProofID)
	assert.Equal(t, "ipfs://img", facts[1].MetadataRef)

	assert.Equal(t, interfaces.FactEventMetadataSet, facts[2].Kind)

	all, err := l.QueryLog(context.Background(), interfaces.LogQuery{FromHeight: 7, ToHeight: 7})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, interfaces.FactProofValidated, all[2].Kind)
	assert.False(t, all[2].Valid)
}

func TestBroadcast(t *testing.T) {
	auth := newAuth(t)
	sender := interfaces.Principal(auth.From)

	op := interfaces.Operation{
		Kind:        interfaces.OpSubmitProof,
		Sender:      sender,
		SubmitProof: &interfaces.SubmitProofArgs{EventID: "eth-summit", ProofData: []byte("proofA")},
	}

	t.Run("sent", func(t *testing.T) {
		chain := new(MockChain)
		chain.On("PendingNonceAt", mock.Anything, auth.From).Return(uint64(5), nil)
		var sent *types.Transaction
		chain.On("SendTransaction", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			sent = args.Get(1).(*types.Transaction)
		}).Return(nil)

		l := newTestLedger(t, chain, auth)
		handle, err := l.Broadcast(context.Background(), op)
		require.NoError(t, err)
		require.NotNil(t, sent)
		assert.Equal(t, sent.Hash(), handle.Hash())
		assert.Equal(t, uint64(5), sent.Nonce())
		assert.Equal(t, contractAddr, *sent.To())

		parsed, err := abi.JSON(strings.NewReader(ProofRegistryABI))
		require.NoError(t, err)
		method, err := parsed.MethodById(sent.Data()[:4])
		require.NoError(t, err)
		assert.Equal(t, "submitProof", method.Name)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		chain := new(MockChain)
		chain.On("PendingNonceAt", mock.Anything, auth.From).Return(uint64(0), nil)
		chain.On("SendTransaction", mock.Anything, mock.Anything).Return(errors.New("insufficient funds for gas * price + value"))

		_, err := newTestLedger(t, chain, auth).Broadcast(context.Background(), op)
		assert.ErrorIs(t, err, interfaces.ErrInsufficientResources)
	})

	t.Run("node down", func(t *testing.T) {
		chain := new(MockChain)
		chain.On("PendingNonceAt", mock.Anything, auth.From).Return(uint64(0), errors.New("connection refused"))

		_, err := newTestLedger(t, chain, auth).Broadcast(context.Background(), op)
		assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
	})

	t.Run("foreign sender", func(t *testing.T) {
		foreign := op
		foreign.Sender = interfaces.Principal{0x99}
		_, err := newTestLedger(t, new(MockChain), auth).Broadcast(context.Background(), foreign)
		assert.ErrorIs(t, err, interfaces.ErrSubmissionRejected)
	})

	t.Run("read only", func(t *testing.T) {
		_, err := newTestLedger(t, new(MockChain), nil).Broadcast(context.Background(), op)
		assert.ErrorIs(t, err, ErrNoTransactOpts)
	})
}

func TestCredentialReads(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ProofRegistryABI))
	require.NoError(t, err)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	pack := func(method string, values ...interface{}) []byte {
		out, err := parsed.Methods[method].Outputs.Pack(values...)
		require.NoError(t, err)
		return out
	}
	selector := func(method string) func(ethereum.CallMsg) bool {
		return func(call ethereum.CallMsg) bool {
			return strings.HasPrefix(string(call.Data), string(parsed.Methods[method].ID))
		}
	}

	chain := new(MockChain)
	chain.On("CallContract", mock.Anything, mock.MatchedBy(selector("balanceOf")), mock.Anything).Return(pack("balanceOf", big.NewInt(2)), nil)
	chain.On("CallContract", mock.Anything, mock.MatchedBy(selector("tokenOfOwnerByIndex")), mock.Anything).Return(pack("tokenOfOwnerByIndex", big.NewInt(9)), nil)
	chain.On("CallContract", mock.Anything, mock.MatchedBy(selector("tokenURI")), mock.Anything).Return(pack("tokenURI", "ipfs://img"), nil)
	chain.On("CallContract", mock.Anything, mock.MatchedBy(selector("getProof")), mock.Anything).Return(
		pack("getProof", [32]byte{0x0c}, "eth-summit", owner, big.NewInt(100), true, big.NewInt(9)), nil)

	l := newTestLedger(t, chain, nil)
	ctx := context.Background()

	balance, err := l.BalanceOf(ctx, interfaces.Principal(owner))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), balance)

	id, err := l.AssetAtIndex(ctx, interfaces.Principal(owner), 1)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CredentialID(9), id)

	ref, err := l.AssetRef(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://img", ref)

	rec, err := l.Proof(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "eth-summit", rec.EventID)
	assert.Equal(t, interfaces.Principal(owner), rec.Submitter)
	assert.Equal(t, uint64(100), rec.SubmittedAt)
	assert.True(t, rec.Valid)
	require.NotNil(t, rec.Credential)
	assert.Equal(t, interfaces.CredentialID(9), *rec.Credential)
}

func TestProofOutOfRange(t *testing.T) {
	chain := new(MockChain)
	chain.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return([]byte(nil), errors.New("execution reverted: invalid proof id"))

	_, err := newTestLedger(t, chain, nil).Proof(context.Background(), 99)
	assert.ErrorIs(t, err, interfaces.ErrInvalidProofID)
}
