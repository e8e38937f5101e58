package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/e4c-edu/settlement/internal/model"
	"github.com/e4c-edu/settlement/internal/store"
	"github.com/e4c-edu/settlement/stellar"
)

// SettlementHandler exposes the three settlement operations over HTTP.
type SettlementHandler struct {
	service *stellar.Service
	log     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler over a settlement service.
func NewSettlementHandler(service *stellar.Service, log *slog.Logger) *SettlementHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SettlementHandler{service: service, log: log}
}

// ProvisionEscrow handles POST /escrow/provision
// @Summary      Provision the escrow account
// @Description  Creates and funds the escrow ledger account. Idempotent: returns the existing record unchanged if one exists. The secret key is returned only here, for one-time operator capture.
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Success      200  {object}  model.ProvisionResponse
// @Router       /escrow/provision [post]
func (h *SettlementHandler) ProvisionEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.service.ProvisionRole(r.Context(), model.RoleEscrow)
	if err != nil {
		h.writeError(w, err)
		return
	}

	message := "Escrow account created and funded."
	if result.Existing {
		message = "Escrow account already exists; returning the existing record."
	}
	writeJSON(w, http.StatusOK, model.ProvisionResponse{
		Success:        true,
		Message:        message,
		PublicKey:      result.PublicKey,
		SecretKey:      result.SecretKey,
		PublicKeyQR:    result.QR,
		StellarNetwork: h.service.NetworkName(),
	})
}

// Redeem handles POST /tokens/redeem
// @Summary      Redeem tokens for a reward
// @Description  Settles a student→escrow payment on the ledger and issues a voucher
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Param        request  body      model.RedeemRequest  true  "Redemption data"
// @Success      200      {object}  model.RedeemResponse
// @Failure      400      {object}  model.ErrorResponse
// @Router       /tokens/redeem [post]
func (h *SettlementHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.service.Redeem(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.RedeemResponse{
		Success:     true,
		VoucherUUID: result.VoucherUUID,
		Hash:        result.Hash,
		Message:     "Redemption settled on ledger and recorded",
	})
}

// Distribute handles POST /tokens/distribute
// @Summary      Distribute tokens for an approved task
// @Description  Settles a distributor→student payment on the ledger, marks the task approval settled and reconciles the student's balance
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Param        request  body      model.DistributeRequest  true  "Distribution data"
// @Success      200      {object}  model.DistributeResponse
// @Failure      400      {object}  model.ErrorResponse
// @Router       /tokens/distribute [post]
func (h *SettlementHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.service.Distribute(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.DistributeResponse{
		Success: true,
		Hash:    result.Hash,
		Message: "Tokens transferred and task settled",
	})
}

// writeError maps settlement errors onto the response contract: malformed
// requests get HTTP 400, every business failure gets HTTP 200 with an error
// field. Secret material never reaches an error string.
func (h *SettlementHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusOK
	if errors.Is(err, stellar.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}
	if status == http.StatusOK {
		h.log.Info("settlement request failed",
			"stage", string(stellar.FailedStage(err)), "err", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: userMessage(err)})
}

// userMessage keeps caller-facing error strings stable for the known
// failure modes.
func userMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrNoStudentWallet):
		return "student wallet not found"
	case errors.Is(err, store.ErrNotProvisioned):
		return "institutional wallet not provisioned"
	case errors.Is(err, store.ErrStudentTaskNotFound):
		return "student task not found"
	case errors.Is(err, stellar.ErrTaskAlreadySettled):
		return "task already settled"
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
