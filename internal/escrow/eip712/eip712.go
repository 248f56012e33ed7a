package eip712

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Intent is the settlement intent type a digest authorizes. Refund and Slash
// digests are domain separated via distinct EIP-712 type hashes so a signature
// produced for one intent can never authorize the other.
type Intent string

const (
	IntentRefund Intent = "Refund"
	IntentSlash  Intent = "Slash"
)

func (i Intent) String() string {
	return string(i)
}

const (
	protocolName    = "PRStakeEscrow"
	protocolVersion = "1"
)

var (
	eip712DomainTypeHash = crypto.Keccak256Hash(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	refundTypeHash = crypto.Keccak256Hash([]byte("Refund(uint256 depositId,uint256 deadline)"))
	slashTypeHash  = crypto.Keccak256Hash([]byte("Slash(uint256 depositId,uint256 deadline)"))
)

// Domain binds digests to a single contract deployment on a single chain.
// It is derived once and reused for every digest computation.
type Domain struct {
	ChainID         *big.Int
	ContractAddress common.Address

	separator common.Hash
}

// NewDomain computes the EIP-712 domain separator for the escrow contract
// identified by (chainID, contractAddress).
func NewDomain(chainID *big.Int, contractAddress common.Address) *Domain {
	separator := crypto.Keccak256Hash(
		eip712DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(protocolName)),
		crypto.Keccak256([]byte(protocolVersion)),
		common.BigToHash(chainID).Bytes(),
		common.BytesToHash(contractAddress.Bytes()).Bytes(),
	)
	return &Domain{
		ChainID:         new(big.Int).Set(chainID),
		ContractAddress: contractAddress,
		separator:       separator,
	}
}

// Separator returns the precomputed domain separator.
func (d *Domain) Separator() common.Hash {
	return d.separator
}

// RefundDigest returns the digest a refund authorization must be signed over.
func (d *Domain) RefundDigest(depositID uint64, deadline int64) common.Hash {
	return d.digest(refundTypeHash, depositID, deadline)
}

// SlashDigest returns the digest a slash authorization must be signed over.
func (d *Domain) SlashDigest(depositID uint64, deadline int64) common.Hash {
	return d.digest(slashTypeHash, depositID, deadline)
}

// IntentDigest dispatches on the intent type. It is what the orchestrator uses
// when the intent is data rather than code.
func (d *Domain) IntentDigest(intent Intent, depositID uint64, deadline int64) common.Hash {
	if intent == IntentSlash {
		return d.SlashDigest(depositID, deadline)
	}
	return d.RefundDigest(depositID, deadline)
}

// digest implements the EIP-191 v0x01 envelope:
// keccak256("\x19\x01" || domainSeparator || structHash).
func (d *Domain) digest(typeHash common.Hash, depositID uint64, deadline int64) common.Hash {
	structHash := crypto.Keccak256(
		typeHash.Bytes(),
		common.BigToHash(new(big.Int).SetUint64(depositID)).Bytes(),
		common.BigToHash(big.NewInt(deadline)).Bytes(),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, d.separator.Bytes(), structHash)
}

// RepoKey derives the opaque repository identifier from the canonical
// "owner/name" form. Used for attribution and event filtering only.
func RepoKey(repoFullName string) common.Hash {
	return crypto.Keccak256Hash([]byte(repoFullName))
}
