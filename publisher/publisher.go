// Package publisher delivers terminal submission statuses to external consumers.
package publisher

import (
	"context"
	"log/slog"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

// LogSink writes terminal statuses to the structured log. Used when no broker is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, status interfaces.ConfirmationStatus) error {
	attrs := []any{
		slog.String("handle", status.Handle.String()),
		slog.String("state", string(status.State)),
		"confirmations", status.Confirmations,
	}
	if status.ProofID != nil {
		attrs = append(attrs, "proof_id", *status.ProofID)
	}
	if status.MintedCredentialID != nil {
		attrs = append(attrs, "credential_id", *status.MintedCredentialID)
	}
	if status.FailureReason != "" {
		attrs = append(attrs, slog.String("reason", status.FailureReason))
	}
	s.log.Info("submission finalized", attrs...)
	return nil
}

func (s *LogSink) Close() error { return nil }

var _ interfaces.StatusSink = (*LogSink)(nil)
