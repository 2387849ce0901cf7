package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventLogParser(t *testing.T) {
	handle := interfaces.SubmissionHandle{0x01}
	other := interfaces.SubmissionHandle{0x02}

	tests := []struct {
		name       string
		facts      []interfaces.Fact
		proof      *interfaces.ProofID
		credential *interfaces.CredentialID
	}{
		{
			name: "submit with mint",
			facts: []interfaces.Fact{
				{Kind: interfaces.FactProofSubmitted, Handle: handle, ProofID: 4},
				{Kind: interfaces.FactCredentialMinted, Handle: handle, ProofID: 4, CredentialID: 2},
			},
			proof:      ptr(interfaces.ProofID(4)),
			credential: ptr(interfaces.CredentialID(2)),
		},
		{
			name: "submit without mint",
			facts: []interfaces.Fact{
				{Kind: interfaces.FactProofSubmitted, Handle: handle, ProofID: 5},
			},
			proof: ptr(interfaces.ProofID(5)),
		},
		{
			name: "late validation mint",
			facts: []interfaces.Fact{
				{Kind: interfaces.FactProofValidated, Handle: handle, ProofID: 3, Valid: true},
				{Kind: interfaces.FactCredentialMinted, Handle: handle, ProofID: 3, CredentialID: 9},
			},
			proof:      ptr(interfaces.ProofID(3)),
			credential: ptr(interfaces.CredentialID(9)),
		},
		{
			name: "foreign facts ignored",
			facts: []interfaces.Fact{
				{Kind: interfaces.FactCredentialMinted, Handle: other, ProofID: 1, CredentialID: 1},
			},
		},
		{
			name: "metadata only",
			facts: []interfaces.Fact{
				{Kind: interfaces.FactEventMetadataSet, Handle: handle, EventID: "e"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := new(ledger.MockLedger)
			l.On("QueryLog", mock.Anything, mock.MatchedBy(func(q interfaces.LogQuery) bool {
				return q.FromHeight == 7 && q.ToHeight == 7 && q.Handle != nil && *q.Handle == handle
			})).Return(tc.facts, nil)

			out, err := NewEventLogParser(l).Parse(context.Background(), handle, 7)
			require.NoError(t, err)
			assert.Equal(t, tc.proof, out.ProofID)
			assert.Equal(t, tc.credential, out.CredentialID)
			l.AssertExpectations(t)
		})
	}
}

func TestEventLogParserError(t *testing.T) {
	l := new(ledger.MockLedger)
	l.On("QueryLog", mock.Anything, mock.Anything).Return([]interfaces.Fact(nil), interfaces.ErrLedgerUnavailable)

	_, err := NewEventLogParser(l).Parse(context.Background(), interfaces.SubmissionHandle{}, 1)
	assert.True(t, errors.Is(err, interfaces.ErrLedgerUnavailable))
}

func ptr[T any](v T) *T {
	return &v
}
