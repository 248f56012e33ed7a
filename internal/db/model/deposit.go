package model

import (
	"encoding/base64"
	"encoding/json"

	"github.com/prstake/stake-settlement-service/internal/types"
)

const DepositCollection = "deposits"

// DepositDocument mirrors a single on-chain deposit plus the data the chain
// does not hold (slash reason, human attribution, tx references). The PR id is
// the primary key: at most one deposit per PR, enforced by the insert.
type DepositDocument struct {
	PrId             string             `bson:"_id"` // Primary key
	DepositId        uint64             `bson:"deposit_id"`
	RepoFullName     string             `bson:"repo_full_name"`
	RepoKeyHex       string             `bson:"repo_key_hex"`
	PrNumber         uint64             `bson:"pr_number"`
	OwnerUserId      string             `bson:"owner_user_id"`
	Amount           uint64             `bson:"amount"`
	DepositorAddress string             `bson:"depositor_address"`
	TreasuryAddress  string             `bson:"treasury_address"`
	State            types.DepositState `bson:"state"`
	CreateTxRef      string             `bson:"create_tx_ref"`
	SettleTxRef      string             `bson:"settle_tx_ref,omitempty"`
	// RequestedIntent and the fields below record the off-chain settlement
	// request trail; they are set at most once per deposit.
	RequestedIntent      string `bson:"requested_intent,omitempty"`
	SignatureRequestedAt int64  `bson:"signature_requested_at,omitempty"`
	SignatureRequestedBy string `bson:"signature_requested_by,omitempty"`
	SlashReason          string `bson:"slash_reason,omitempty"`
	CreatedAt            int64  `bson:"created_at"`
	ExpiresAt            int64  `bson:"expires_at"`
}

type DepositByOwnerPagination struct {
	CreatedAt int64  `json:"created_at"`
	PrId      string `json:"pr_id"`
}

func DecodeDepositByOwnerPaginationToken(token string) (*DepositByOwnerPagination, error) {
	tokenBytes, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var d DepositByOwnerPagination
	err = json.Unmarshal(tokenBytes, &d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *DepositByOwnerPagination) GetPaginationToken() (string, error) {
	tokenBytes, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(tokenBytes), nil
}

func BuildDepositByOwnerPaginationToken(d DepositDocument) (string, error) {
	page := &DepositByOwnerPagination{
		CreatedAt: d.CreatedAt,
		PrId:      d.PrId,
	}
	return page.GetPaginationToken()
}
