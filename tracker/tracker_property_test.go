package tracker

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ruteri/proof-credential-registry/interfaces"
)

// TestConfirmationsMonotonicProperty interleaves block production, outages
// and refreshes, and checks that observed confirmations never decrease and a
// terminal state never reverts.
func TestConfirmationsMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("refresh never regresses", prop.ForAll(
		func(required uint8, steps []uint8) bool {
			l := newLedger()
			tr := newTracker(l, Config{RequiredConfirmations: uint64(required%5) + 1}, nil)
			defer tr.Close()

			handle := broadcastSubmit(t, l, "proofA")
			var last interfaces.ConfirmationStatus
			for _, s := range steps {
				switch s % 3 {
				case 0:
					l.AdvanceBlocks(int(s%4) + 1)
				case 1:
					l.SetAvailable(false)
				case 2:
					l.SetAvailable(true)
				}

				status, err := tr.Refresh(context.Background(), handle)
				if err != nil {
					return false
				}
				if status.Confirmations < last.Confirmations {
					return false
				}
				if last.Terminal() && status.State != last.State {
					return false
				}
				last = status
			}
			return true
		},
		gen.UInt8(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
