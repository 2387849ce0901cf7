package ledger

import (
	"context"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockLedger mocks interfaces.Ledger, interfaces.CredentialLedger and interfaces.RegistryReader
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Broadcast(ctx context.Context, op interfaces.Operation) (interfaces.SubmissionHandle, error) {
	args := m.Called(ctx, op)
	return args.Get(0).(interfaces.SubmissionHandle), args.Error(1)
}

func (m *MockLedger) InclusionInfo(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.InclusionInfo, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(interfaces.InclusionInfo), args.Error(1)
}

func (m *MockLedger) CurrentHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedger) QueryLog(ctx context.Context, query interfaces.LogQuery) ([]interfaces.Fact, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]interfaces.Fact), args.Error(1)
}

func (m *MockLedger) BalanceOf(ctx context.Context, owner interfaces.Principal) (uint64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedger) AssetAtIndex(ctx context.Context, owner interfaces.Principal, index uint64) (interfaces.CredentialID, error) {
	args := m.Called(ctx, owner, index)
	return args.Get(0).(interfaces.CredentialID), args.Error(1)
}

func (m *MockLedger) AssetRef(ctx context.Context, id interfaces.CredentialID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) Proof(ctx context.Context, id interfaces.ProofID) (interfaces.ProofRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(interfaces.ProofRecord), args.Error(1)
}

func (m *MockLedger) UserProofs(ctx context.Context, submitter interfaces.Principal) ([]interfaces.ProofID, error) {
	args := m.Called(ctx, submitter)
	return args.Get(0).([]interfaces.ProofID), args.Error(1)
}

func (m *MockLedger) EventProofs(ctx context.Context, eventID string) ([]interfaces.ProofID, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]interfaces.ProofID), args.Error(1)
}

func (m *MockLedger) TotalProofs(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedger) HasValidProofForEvent(ctx context.Context, submitter interfaces.Principal, eventID string) (bool, error) {
	args := m.Called(ctx, submitter, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) EventMetadata(ctx context.Context, eventID string) (interfaces.EventMetadata, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(interfaces.EventMetadata), args.Error(1)
}

// MockStatusSink mocks interfaces.StatusSink
type MockStatusSink struct {
	mock.Mock
}

func (m *MockStatusSink) Publish(ctx context.Context, status interfaces.ConfirmationStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockStatusSink) Close() error {
	args := m.Called()
	return args.Error(0)
}
