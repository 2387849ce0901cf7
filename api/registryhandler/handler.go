// Package registryhandler serves the proof registry over HTTP.
package registryhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/proof-credential-registry/api"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/service"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
	maxBodyBytes       = 1 << 20
)

// ProofService is the subset of service.ProofService the handler drives.
type ProofService interface {
	SubmitProof(ctx context.Context, req service.SubmitRequest) (interfaces.SubmissionHandle, error)
	ValidateProof(ctx context.Context, caller interfaces.Principal, id interfaces.ProofID, isValid bool) (interfaces.SubmissionHandle, error)
	SetEventMetadata(ctx context.Context, caller interfaces.Principal, md interfaces.EventMetadata) (interfaces.SubmissionHandle, error)
	AwaitSubmission(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error)
	Status(handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, bool)
	Refresh(ctx context.Context, handle interfaces.SubmissionHandle) (interfaces.ConfirmationStatus, error)
	WalletView(ctx context.Context, owner interfaces.Principal) ([]interfaces.Credential, error)
	LocalCredentials(ctx context.Context) ([]interfaces.Credential, error)
	Reader() interfaces.RegistryReader
}

// Handler processes HTTP requests for proof submission, registry queries and
// submission status.
type Handler struct {
	svc ProofService
	log *slog.Logger
}

func NewHandler(svc ProofService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes configures the router with the registry endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/proofs", func(r chi.Router) {
		r.Post("/", h.HandleSubmitProof)
		r.Get("/", h.HandleUserProofs)
		r.Get("/count", h.HandleTotalProofs)
		r.Get("/{id}", h.HandleGetProof)
		r.Post("/{id}/validate", h.HandleValidateProof)
	})
	r.Route("/api/events/{event_id}", func(r chi.Router) {
		r.Get("/", h.HandleGetEventMetadata)
		r.Put("/", h.HandleSetEventMetadata)
		r.Get("/proofs", h.HandleEventProofs)
		r.Get("/valid/{principal}", h.HandleHasValidProof)
	})
	r.Route("/api/submissions/{handle}", func(r chi.Router) {
		r.Get("/", h.HandleSubmissionStatus)
		r.Post("/refresh", h.HandleRefresh)
		r.Post("/wait", h.HandleWait)
	})
	r.Get("/api/credentials/{principal}", h.HandleWalletView)
	r.Get("/api/wallet", h.HandleLocalWallet)
}

// HandleSubmitProof accepts a proof for an event and broadcasts it.
//
// Response: 202 with api.HandleResponse. Monitoring starts immediately.
func (h *Handler) HandleSubmitProof(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req api.SubmitProofRequest
	if !h.decode(w, r, &req) {
		return
	}

	handle, err := h.svc.SubmitProof(r.Context(), service.SubmitRequest{
		EventID:   req.EventID,
		ProofData: req.ProofData,
		Witness:   req.Witness,
		Submitter: principal,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, api.HandleResponse{Handle: handle})
}

func (h *Handler) HandleValidateProof(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.proofID(w, r)
	if !ok {
		return
	}
	var req api.ValidateProofRequest
	if !h.decode(w, r, &req) {
		return
	}

	handle, err := h.svc.ValidateProof(r.Context(), principal, id, req.IsValid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, api.HandleResponse{Handle: handle})
}

func (h *Handler) HandleSetEventMetadata(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req api.EventMetadataRequest
	if !h.decode(w, r, &req) {
		return
	}

	handle, err := h.svc.SetEventMetadata(r.Context(), principal, interfaces.EventMetadata{
		EventID:     chi.URLParam(r, "event_id"),
		DisplayName: req.DisplayName,
		Description: req.Description,
		ImageRef:    req.ImageRef,
		Location:    req.Location,
		EventDate:   req.EventDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, api.HandleResponse{Handle: handle})
}

func (h *Handler) HandleGetProof(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proofID(w, r)
	if !ok {
		return
	}
	record, err := h.svc.Reader().Proof(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// HandleUserProofs lists the proof ids of ?submitter= in acceptance order.
func (h *Handler) HandleUserProofs(w http.ResponseWriter, r *http.Request) {
	submitter, err := interfaces.NewPrincipalFromHex(r.URL.Query().Get("submitter"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: submitter: %v", interfaces.ErrEmptyInput, err))
		return
	}
	ids, err := h.svc.Reader().UserProofs(r.Context(), submitter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ProofIDsResponse{ProofIDs: nonNil(ids)})
}

func (h *Handler) HandleTotalProofs(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.Reader().TotalProofs(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.CountResponse{Total: total})
}

func (h *Handler) HandleEventProofs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Reader().EventProofs(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ProofIDsResponse{ProofIDs: nonNil(ids)})
}

func (h *Handler) HandleHasValidProof(w http.ResponseWriter, r *http.Request) {
	principal, err := interfaces.NewPrincipalFromHex(chi.URLParam(r, "principal"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: principal: %v", interfaces.ErrEmptyInput, err))
		return
	}
	valid, err := h.svc.Reader().HasValidProofForEvent(r.Context(), principal, chi.URLParam(r, "event_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ValidResponse{Valid: valid})
}

func (h *Handler) HandleGetEventMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.Reader().EventMetadata(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, md)
}

// HandleSubmissionStatus returns the last known status. Handles that were never
// monitored are 404.
func (h *Handler) HandleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}
	status, known := h.svc.Status(handle)
	if !known {
		h.writeError(w, r, fmt.Errorf("%w: submission %s is not monitored", interfaces.ErrNotFound, handle))
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}
	status, err := h.svc.Refresh(r.Context(), handle)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleWait blocks until the submission is terminal or ?timeout= (default 30s) elapses.
func (h *Handler) HandleWait(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}

	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrEmptyInput, raw))
			return
		}
		timeout = min(parsed, maxWaitTimeout)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status, err := h.svc.AwaitSubmission(ctx, handle)
	if err != nil && !status.Terminal() {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		// Terminal on the ledger, the local follow-up failed.
		h.log.Warn("submission finalized with local error", slog.String("handle", handle.String()), "err", err)
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleWalletView(w http.ResponseWriter, r *http.Request) {
	principal, err := interfaces.NewPrincipalFromHex(chi.URLParam(r, "principal"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: principal: %v", interfaces.ErrEmptyInput, err))
		return
	}
	credentials, err := h.svc.WalletView(r.Context(), principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.CredentialsResponse{Credentials: nonNil(credentials)})
}

func (h *Handler) HandleLocalWallet(w http.ResponseWriter, r *http.Request) {
	credentials, err := h.svc.LocalCredentials(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.CredentialsResponse{Credentials: nonNil(credentials)})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (interfaces.Principal, bool) {
	raw := r.Header.Get(api.PrincipalHeader)
	if raw == "" {
		h.writeError(w, r, fmt.Errorf("%w: missing %s header", interfaces.ErrUnauthorized, api.PrincipalHeader))
		return interfaces.Principal{}, false
	}
	principal, err := interfaces.NewPrincipalFromHex(raw)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %s: %v", interfaces.ErrEmptyInput, api.PrincipalHeader, err))
		return interfaces.Principal{}, false
	}
	return principal, true
}

func (h *Handler) proofID(w http.ResponseWriter, r *http.Request) (interfaces.ProofID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %q", interfaces.ErrInvalidProofID, chi.URLParam(r, "id")))
		return 0, false
	}
	return interfaces.ProofID(id), true
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) (interfaces.SubmissionHandle, bool) {
	handle, err := interfaces.NewSubmissionHandleFromHex(chi.URLParam(r, "handle"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: handle: %v", interfaces.ErrEmptyInput, err))
		return interfaces.SubmissionHandle{}, false
	}
	return handle, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", interfaces.ErrEmptyInput, err))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := api.StatusCode(err)
	if code >= http.StatusInternalServerError && !errors.Is(err, interfaces.ErrLedgerUnavailable) {
		h.log.Error("request failed", slog.String("path", r.URL.Path), "err", err)
	} else {
		h.log.Debug("request rejected", slog.String("path", r.URL.Path), slog.Int("status", code), "err", err)
	}
	h.writeJSON(w, code, api.ErrorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
