package voting

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/voting-bridge/internal/erc20"
)

// SyntheticToken is the fungible vote token of one underlying governance token.
// Its supply always equals the collateral locked across that token's proxies.
type SyntheticToken struct {
	token      *erc20.Token
	underlying common.Address
}

func syntheticMetadata(underlying erc20.Metadata) erc20.Metadata {
	return erc20.Metadata{
		Name:     "Voting " + underlying.Name,
		Symbol:   "v" + underlying.Symbol,
		Decimals: underlying.Decimals,
	}
}

func (s *SyntheticToken) Address() common.Address    { return s.token.Address() }
func (s *SyntheticToken) Underlying() common.Address { return s.underlying }
func (s *SyntheticToken) Token() *erc20.Token        { return s.token }
func (s *SyntheticToken) TotalSupply() *uint256.Int  { return s.token.TotalSupply() }

func (s *SyntheticToken) BalanceOf(account common.Address) *uint256.Int {
	return s.token.BalanceOf(account)
}

// Mint credits `to`. Only the factory may mint; there is no cap.
func (s *SyntheticToken) Mint(caller, to common.Address, amount *uint256.Int) error {
	if caller != s.token.Owner() {
		return ErrUnauthorized
	}
	if err := s.token.Mint(caller, to, amount); err != nil {
		return err
	}
	return nil
}

// Burn destroys tokens held by `from`. It fails with erc20.ErrInsufficientBalance.
func (s *SyntheticToken) Burn(caller, from common.Address, amount *uint256.Int) error {
	if caller != s.token.Owner() {
		return ErrUnauthorized
	}
	return s.token.Burn(caller, from, amount)
}

func (s *SyntheticToken) canMint(amount *uint256.Int) bool {
	return s.token.CanMint(amount)
}
