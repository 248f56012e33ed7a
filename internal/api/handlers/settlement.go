package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prstake/stake-settlement-service/internal/types"
)

type RefundRequestPayload struct {
	DepositId uint64 `json:"deposit_id"`
}

type SlashRequestPayload struct {
	DepositId uint64 `json:"deposit_id"`
	Reason    string `json:"reason"`
}

type ConfirmSettlementPayload struct {
	DepositId   uint64 `json:"deposit_id"`
	SettleTxRef string `json:"settle_tx_ref"`
}

func decodePayload[T any](request *http.Request) (*T, *types.Error) {
	payload := new(T)
	if err := json.NewDecoder(request.Body).Decode(payload); err != nil {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "invalid request payload")
	}
	return payload, nil
}

// RequestRefund godoc
// @Summary Request a refund authorization
// @Description Issues a short-lived signed refund authorization for the caller's own confirmed deposit.
// @Accept json
// @Produce json
// @Param payload body RefundRequestPayload true "Refund Request Payload"
// @Success 200 {object} PublicResponse[services.SettlementAuthorization] "Refund authorization"
// @Failure 403 {object} types.Error "Caller is not the deposit owner or the PR is still open"
// @Failure 409 {object} types.Error "A settlement request is already outstanding"
// @Router /v1/settlement/refund [post]
func (h *Handler) RequestRefund(request *http.Request) (*Result, *types.Error) {
	payload, err := decodePayload[RefundRequestPayload](request)
	if err != nil {
		return nil, err
	}
	if payload.DepositId == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing deposit_id")
	}

	authorization, reqErr := h.services.RequestRefund(request.Context(), parseIdentity(request), payload.DepositId)
	if reqErr != nil {
		return nil, reqErr
	}
	return NewResult(authorization), nil
}

// RequestSlash godoc
// @Summary Request a slash authorization
// @Description Issues a signed slash authorization. Requires write-level repository authority and a bounded public reason.
// @Accept json
// @Produce json
// @Param payload body SlashRequestPayload true "Slash Request Payload"
// @Success 200 {object} PublicResponse[services.SettlementAuthorization] "Slash authorization"
// @Failure 403 {object} types.Error "Caller lacks write-level repository authority"
// @Failure 409 {object} types.Error "Reason out of bounds or a settlement request is already outstanding"
// @Router /v1/settlement/slash [post]
func (h *Handler) RequestSlash(request *http.Request) (*Result, *types.Error) {
	payload, err := decodePayload[SlashRequestPayload](request)
	if err != nil {
		return nil, err
	}
	if payload.DepositId == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing deposit_id")
	}

	authorization, reqErr := h.services.RequestSlash(
		request.Context(), parseIdentity(request), payload.DepositId, payload.Reason,
	)
	if reqErr != nil {
		return nil, reqErr
	}
	return NewResult(authorization), nil
}

// ConfirmRefund godoc
// @Summary Confirm an executed refund
// @Description Marks the mirrored deposit refunded after the on-chain refund transaction succeeded.
// @Accept json
// @Produce json
// @Param payload body ConfirmSettlementPayload true "Confirm Settlement Payload"
// @Success 202 "Refund confirmed"
// @Failure 409 {object} types.Error "Deposit settlement already confirmed"
// @Router /v1/settlement/refund/confirm [post]
func (h *Handler) ConfirmRefund(request *http.Request) (*Result, *types.Error) {
	payload, err := decodePayload[ConfirmSettlementPayload](request)
	if err != nil {
		return nil, err
	}
	if payload.DepositId == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing deposit_id")
	}

	if confirmErr := h.services.ConfirmRefund(request.Context(), payload.DepositId, payload.SettleTxRef); confirmErr != nil {
		return nil, confirmErr
	}
	return &Result{Status: http.StatusAccepted}, nil
}

// ConfirmSlash godoc
// @Summary Confirm an executed slash
// @Description Marks the mirrored deposit slashed after the on-chain slash transaction succeeded.
// @Accept json
// @Produce json
// @Param payload body ConfirmSettlementPayload true "Confirm Settlement Payload"
// @Success 202 "Slash confirmed"
// @Failure 409 {object} types.Error "Deposit settlement already confirmed"
// @Router /v1/settlement/slash/confirm [post]
func (h *Handler) ConfirmSlash(request *http.Request) (*Result, *types.Error) {
	payload, err := decodePayload[ConfirmSettlementPayload](request)
	if err != nil {
		return nil, err
	}
	if payload.DepositId == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing deposit_id")
	}

	if confirmErr := h.services.ConfirmSlash(request.Context(), payload.DepositId, payload.SettleTxRef); confirmErr != nil {
		return nil, confirmErr
	}
	return &Result{Status: http.StatusAccepted}, nil
}
