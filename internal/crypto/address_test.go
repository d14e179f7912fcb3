package crypto_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/voting-bridge/internal/crypto"
)

// well-known hardhat account #0
const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestParsePrivateKey(t *testing.T) {
	key, addr, err := crypto.ParsePrivateKey(devKey)
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, common.HexToAddress(devAddress), addr)

	_, _, err = crypto.ParsePrivateKey("not-a-key")
	require.Error(t, err)
}

func TestProxyAddressIsDeterministic(t *testing.T) {
	factory := common.HexToAddress("0x1000000000000000000000000000000000000001")
	token := common.HexToAddress("0x2000000000000000000000000000000000000002")

	a := crypto.ProxyAddress(factory, token, 124)
	assert.Equal(t, a, crypto.ProxyAddress(factory, token, 124))
	assert.NotEqual(t, a, crypto.ProxyAddress(factory, token, 125))
	assert.NotEqual(t, a, crypto.ProxyAddress(token, factory, 124))
	assert.NotEqual(t, common.Address{}, a)
}

func TestSyntheticTokenAddress(t *testing.T) {
	factory := common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenA := common.HexToAddress("0x2000000000000000000000000000000000000002")
	tokenB := common.HexToAddress("0x3000000000000000000000000000000000000003")

	assert.Equal(t, crypto.SyntheticTokenAddress(factory, tokenA), crypto.SyntheticTokenAddress(factory, tokenA))
	assert.NotEqual(t, crypto.SyntheticTokenAddress(factory, tokenA), crypto.SyntheticTokenAddress(factory, tokenB))
	assert.NotEqual(t, crypto.SyntheticTokenAddress(factory, tokenA), crypto.ProxyAddress(factory, tokenA, 0))
}
