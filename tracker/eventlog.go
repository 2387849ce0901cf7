package tracker

import (
	"context"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

// Extracted is what the parser recovers from one submission's execution log.
type Extracted struct {
	ProofID      *interfaces.ProofID
	CredentialID *interfaces.CredentialID
	Facts        []interfaces.Fact
}

// EventLogParser scans the facts emitted by a submission for mint side effects.
type EventLogParser struct {
	ledger interfaces.Ledger
}

func NewEventLogParser(ledger interfaces.Ledger) *EventLogParser {
	return &EventLogParser{ledger: ledger}
}

// Parse queries the log of the inclusion block, restricted to handle, and binds
// the first ProofSubmitted and CredentialMinted facts it finds.
func (p *EventLogParser) Parse(ctx context.Context, handle interfaces.SubmissionHandle, height uint64) (Extracted, error) {
	facts, err := p.ledger.QueryLog(ctx, interfaces.LogQuery{
		FromHeight: height,
		ToHeight:   height,
		Handle:     &handle,
	})
	if err != nil {
		return Extracted{}, err
	}

	var out Extracted
	for _, f := range facts {
		// Ledgers may ignore the handle filter; never attribute a foreign fact.
		if f.Handle != handle {
			continue
		}
		out.Facts = append(out.Facts, f)

		switch f.Kind {
		case interfaces.FactProofSubmitted:
			if out.ProofID == nil {
				id := f.ProofID
				out.ProofID = &id
			}
		case interfaces.FactCredentialMinted:
			if out.CredentialID == nil {
				id := f.CredentialID
				out.CredentialID = &id
			}
			if out.ProofID == nil {
				id := f.ProofID
				out.ProofID = &id
			}
		case interfaces.FactProofValidated:
			if out.ProofID == nil {
				id := f.ProofID
				out.ProofID = &id
			}
		}
	}
	return out, nil
}
