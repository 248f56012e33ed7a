package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prstake/stake-settlement-service/internal/services"
	"github.com/prstake/stake-settlement-service/internal/types"
)

// GetDepositInfo godoc
// @Summary Get deposit terms
// @Description Precomputes the parameters a depositor needs to call create on the escrow contract.
// @Produce json
// @Param repo query string true "Repository full name (owner/name)"
// @Param pr_number query int true "Pull request number"
// @Param risk_tier query string false "Risk tier (standard or elevated)"
// @Success 200 {object} PublicResponse[services.DepositInfoPublic] "Deposit terms"
// @Router /v1/deposit/info [get]
func (h *Handler) GetDepositInfo(request *http.Request) (*Result, *types.Error) {
	repoFullName := request.URL.Query().Get("repo")
	if repoFullName == "" || !strings.Contains(repoFullName, "/") {
		return nil, types.NewErrorWithMsg(
			http.StatusBadRequest, types.BadRequest, "repo must be the full owner/name form",
		)
	}
	prNumber, err := parseUint64Query(request, "pr_number")
	if err != nil {
		return nil, err
	}
	tier := services.RiskTier(request.URL.Query().Get("risk_tier"))
	if tier == "" {
		tier = services.RiskTierStandard
	}
	if tier != services.RiskTierStandard && tier != services.RiskTierElevated {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "unknown risk tier")
	}

	info, infoErr := h.services.GetDepositInfo(request.Context(), repoFullName, prNumber, tier)
	if infoErr != nil {
		return nil, infoErr
	}
	return NewResult(info), nil
}

type RecordDepositRequestPayload struct {
	PrId             string `json:"pr_id"`
	RepoFullName     string `json:"repo_full_name"`
	PrNumber         uint64 `json:"pr_number"`
	OwnerUserId      string `json:"owner_user_id"`
	DepositorAddress string `json:"depositor_address"`
	TxRef            string `json:"tx_ref"`
	OnchainId        uint64 `json:"onchain_id"`
	Amount           uint64 `json:"amount"`
}

func parseRecordDepositRequestPayload(request *http.Request) (*RecordDepositRequestPayload, *types.Error) {
	payload := &RecordDepositRequestPayload{}
	err := json.NewDecoder(request.Body).Decode(payload)
	if err != nil {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "invalid request payload")
	}
	if payload.PrId == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing pr_id")
	}
	if payload.RepoFullName == "" || !strings.Contains(payload.RepoFullName, "/") {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "repo_full_name must be the full owner/name form")
	}
	if payload.OwnerUserId == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing owner_user_id")
	}
	if payload.DepositorAddress == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing depositor_address")
	}
	if payload.TxRef == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing tx_ref")
	}
	if payload.OnchainId == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing onchain_id")
	}
	if payload.Amount == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing amount")
	}
	return payload, nil
}

// RecordDeposit godoc
// @Summary Record a submitted deposit
// @Description Creates the pending mirror record once the caller observed the create transaction being submitted.
// @Accept json
// @Produce json
// @Param payload body RecordDepositRequestPayload true "Deposit Record Payload"
// @Success 202 "Deposit recorded as pending"
// @Failure 409 {object} types.Error "A deposit is already recorded for this PR"
// @Router /v1/deposit/record [post]
func (h *Handler) RecordDeposit(request *http.Request) (*Result, *types.Error) {
	payload, err := parseRecordDepositRequestPayload(request)
	if err != nil {
		return nil, err
	}

	recordErr := h.services.RecordDeposit(
		request.Context(),
		payload.PrId, payload.RepoFullName, payload.PrNumber,
		payload.OwnerUserId, payload.DepositorAddress, payload.TxRef,
		payload.OnchainId, payload.Amount,
	)
	if recordErr != nil {
		return nil, recordErr
	}

	return &Result{Status: http.StatusAccepted}, nil
}

// GetDeposit godoc
// @Summary Get a deposit
// @Description Retrieves the mirrored deposit record by its on-chain id, including the slash audit trail.
// @Produce json
// @Param deposit_id query int true "On-chain deposit id"
// @Success 200 {object} PublicResponse[services.DepositPublic] "Deposit"
// @Router /v1/deposit [get]
func (h *Handler) GetDeposit(request *http.Request) (*Result, *types.Error) {
	depositId, err := parseUint64Query(request, "deposit_id")
	if err != nil {
		return nil, err
	}
	deposit, getErr := h.services.GetDeposit(request.Context(), depositId)
	if getErr != nil {
		return nil, getErr
	}

	return NewResult(deposit), nil
}

// GetDepositsByOwner godoc
// @Summary List deposits by owner
// @Description Retrieves a user's mirrored deposits, newest first.
// @Produce json
// @Param owner_user_id query string true "Owner user id"
// @Param pagination_key query string false "Pagination key"
// @Success 200 {object} PublicResponse[[]services.DepositPublic] "Deposits"
// @Router /v1/deposits [get]
func (h *Handler) GetDepositsByOwner(request *http.Request) (*Result, *types.Error) {
	ownerUserId := request.URL.Query().Get("owner_user_id")
	if ownerUserId == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing owner_user_id")
	}
	pageToken := request.URL.Query().Get("pagination_key")

	deposits, nextToken, err := h.services.GetDepositsByOwner(request.Context(), ownerUserId, pageToken)
	if err != nil {
		return nil, err
	}

	return NewResultWithPagination(deposits, nextToken), nil
}
