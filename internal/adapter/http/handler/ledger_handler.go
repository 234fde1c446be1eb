package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/bankledger/internal/adapter/http/dto"
	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

const idempotencyKeyHeader = "Idempotency-Key"

// LedgerService defines the behavior needed by LedgerHandler.
type LedgerService interface {
	Execute(ctx context.Context, m domain.Movement) (*usecase.MovementResult, error)
}

// LedgerHandler handles balance movements.
type LedgerHandler struct {
	ledgerUC LedgerService
	logger   zerolog.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC LedgerService, logger zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC, logger: logger}
}

// Deposit credits one account, or several when to_account_distributions is sent.
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, domain.KindDeposit)
}

// Withdraw debits one account.
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, domain.KindWithdraw)
}

// Transfer moves money between two accounts.
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, domain.KindTransfer)
}

func (h *LedgerHandler) move(w http.ResponseWriter, r *http.Request, kind domain.TransactionKind) {
	var raw domain.RawMovement
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	m, err := domain.ParseMovement(kind, raw)
	if err != nil {
		writeDomainError(w, "invalid request", err)
		return
	}
	m.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))

	res, err := h.ledgerUC.Execute(r.Context(), m)
	if err != nil {
		if mapDomainError(err) == http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("kind", string(m.Kind)).Msg("movement failed")
		}
		writeDomainError(w, string(m.Kind)+" failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MovementFromResult(m.Kind, res))
}
