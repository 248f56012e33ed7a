package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prstake/stake-settlement-service/internal/escrow/eip712"
	"github.com/prstake/stake-settlement-service/internal/types"
)

func TestGetDepositInfo(t *testing.T) {
	s := newTestServices(staticChainReader{next: 7})

	info, err := s.GetDepositInfo(context.Background(), "prstake/escrow", 42, RiskTierStandard)
	require.Nil(t, err)
	assert.Equal(t, uint64(7), info.NextDepositId)
	assert.Equal(t, eip712.RepoKey("prstake/escrow").Hex(), info.RepoKeyHex)
	assert.Equal(t, s.cfg.Escrow.BaseStakeAmount, info.Amount)
	assert.Equal(t, s.cfg.Escrow.GetTreasuryAddress().Hex(), info.TreasuryAddress)
	assert.Equal(t, testChainId, info.ChainId)
}

func TestGetDepositInfoElevatedTier(t *testing.T) {
	s := newTestServices(staticChainReader{next: 7})

	info, err := s.GetDepositInfo(context.Background(), "prstake/escrow", 42, RiskTierElevated)
	require.Nil(t, err)
	assert.Equal(t, s.cfg.Escrow.ElevatedStakeAmount, info.Amount)
}

func TestGetDepositInfoChainUnavailable(t *testing.T) {
	s := newTestServices(failingChainReader{})

	_, err := s.GetDepositInfo(context.Background(), "prstake/escrow", 42, RiskTierStandard)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
	assert.Equal(t, types.UpstreamUnavailable, err.ErrorCode)
}

func TestRecordDeposit(t *testing.T) {
	s := newTestServices(nil)

	err := s.RecordDeposit(
		context.Background(),
		"PR_1", "prstake/escrow", 42,
		"alice", "0x1111111111111111111111111111111111111111", "0xcreate",
		1, 5_000_000,
	)
	require.Nil(t, err)

	deposit, findErr := s.dbClient.FindDepositByPrId(context.Background(), "PR_1")
	require.NoError(t, findErr)
	assert.Equal(t, types.Pending, deposit.State)
	assert.Equal(t, uint64(1), deposit.DepositId)
	assert.Equal(t, eip712.RepoKey("prstake/escrow").Hex(), deposit.RepoKeyHex)
	assert.Equal(t, s.cfg.Escrow.GetTreasuryAddress().Hex(), deposit.TreasuryAddress)
	assert.Greater(t, deposit.ExpiresAt, deposit.CreatedAt)
}

func TestRecordDepositOncePerPr(t *testing.T) {
	s := newTestServices(nil)

	record := func(prId string, onchainId uint64) *types.Error {
		return s.RecordDeposit(
			context.Background(),
			prId, "prstake/escrow", 42,
			"alice", "0x1111111111111111111111111111111111111111", "0xcreate",
			onchainId, 5_000_000,
		)
	}

	require.Nil(t, record("PR_1", 1))

	err := record("PR_1", 2)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, types.Conflict, err.ErrorCode)
}

func TestGetDepositExposesSlashAudit(t *testing.T) {
	s := newTestServices(nil)
	require.NoError(t, s.dbClient.SaveDeposit(context.Background(), confirmedDeposit(1, "alice")))

	reason := "undisclosed AI generation in PR body"
	_, err := s.RequestSlash(context.Background(), maintainerIdentity("bob"), 1, reason)
	require.Nil(t, err)
	require.Nil(t, s.ConfirmSlash(context.Background(), 1, "0xslash"))

	deposit, getErr := s.GetDeposit(context.Background(), 1)
	require.Nil(t, getErr)
	assert.Equal(t, types.Slashed.ToString(), deposit.State)
	assert.Equal(t, reason, deposit.SlashReason)
	assert.Equal(t, "bob", deposit.SlashedBy)
	assert.Equal(t, "0xslash", deposit.SettleTxRef)
}

func TestGetDepositNotFound(t *testing.T) {
	s := newTestServices(nil)

	_, err := s.GetDeposit(context.Background(), 404)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
}

func TestGetDepositsByOwner(t *testing.T) {
	s := newTestServices(nil)
	first := confirmedDeposit(1, "alice")
	first.CreatedAt = testNow.Unix() - 100
	second := confirmedDeposit(2, "alice")
	other := confirmedDeposit(3, "carol")
	require.NoError(t, s.dbClient.SaveDeposit(context.Background(), first))
	require.NoError(t, s.dbClient.SaveDeposit(context.Background(), second))
	require.NoError(t, s.dbClient.SaveDeposit(context.Background(), other))

	deposits, nextToken, err := s.GetDepositsByOwner(context.Background(), "alice", "")
	require.Nil(t, err)
	assert.Empty(t, nextToken)
	require.Len(t, deposits, 2)
	// Newest first.
	assert.Equal(t, uint64(2), deposits[0].DepositId)
	assert.Equal(t, uint64(1), deposits[1].DepositId)
}

func TestGetDepositsByOwnerInvalidPaginationToken(t *testing.T) {
	s := newTestServices(nil)

	_, _, err := s.GetDepositsByOwner(context.Background(), "alice", "not-base64!")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
}
