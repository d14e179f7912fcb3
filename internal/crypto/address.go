package crypto

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	voterProxyCodeHash     = crypto.Keccak256([]byte("VoterProxy"))
	syntheticTokenCodeHash = crypto.Keccak256([]byte("SyntheticVoteToken"))
)

// ParsePrivateKey parses a hex private key and derives its Ethereum address
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, common.Address, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return privateKey, crypto.PubkeyToAddress(*publicKeyECDSA), nil
}

// ProxyAddress derives the account label of the voter proxy for (token, proposalID)
// the way a CREATE2 clone deployed by factory would be addressed.
func ProxyAddress(factory, token common.Address, proposalID uint64) common.Address {
	var id [32]byte
	binary.BigEndian.PutUint64(id[24:], proposalID)
	salt := crypto.Keccak256Hash(token.Bytes(), id[:])
	return crypto.CreateAddress2(factory, salt, voterProxyCodeHash)
}

// SyntheticTokenAddress derives the address of the synthetic vote token for underlying.
func SyntheticTokenAddress(factory, underlying common.Address) common.Address {
	salt := crypto.Keccak256Hash(underlying.Bytes())
	return crypto.CreateAddress2(factory, salt, syntheticTokenCodeHash)
}
