package erc20

import (
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = fmt.Errorf("insufficient balance: %w", errdefs.ErrFailedPrecondition)
	ErrInsufficientAllowance = fmt.Errorf("insufficient allowance: %w", errdefs.ErrFailedPrecondition)
	ErrInvalidReceiver       = fmt.Errorf("invalid receiver: %w", errdefs.ErrInvalidArgument)
	ErrInvalidSpender        = fmt.Errorf("invalid spender: %w", errdefs.ErrInvalidArgument)
	ErrUnauthorized          = fmt.Errorf("caller is not the token owner: %w", errdefs.ErrPermissionDenied)
	ErrSupplyOverflow        = fmt.Errorf("total supply overflows uint256: %w", errdefs.ErrOutOfRange)
)

// ERC20 is the value-transfer surface the bridge and factory rely on.
// The caller of each mutating method is passed explicitly.
type ERC20 interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	TotalSupply() *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// Metadata describes a token.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Token is an in-memory ERC20 with an owner allowed to mint and burn.
type Token struct {
	mu          sync.RWMutex
	address     common.Address
	owner       common.Address
	meta        Metadata
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

// NewToken creates an empty token.
func NewToken(address, owner common.Address, meta Metadata) *Token {
	return &Token{
		address:     address,
		owner:       owner,
		meta:        meta,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Owner() common.Address   { return t.owner }
func (t *Token) Metadata() Metadata      { return t.meta }

// BalanceOf returns a copy of the account balance.
func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceOf(account).Clone()
}

// Allowance returns a copy of the amount spender may pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowance(owner, spender).Clone()
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply.Clone()
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transfer(from, to, amount)
}

// TransferFrom moves amount from `from` to `to` on behalf of spender.
// An allowance of MaxUint256 is treated as infinite and is never decremented.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowance(from, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: spender %s has %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowed.Dec(), amount.Dec())
	}
	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	if !isInfinite(allowed) {
		t.setAllowance(from, spender, new(uint256.Int).Sub(allowed, amount))
	}
	return nil
}

// Approve replaces the allowance of spender over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrInvalidSpender
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowance(owner, spender, amount.Clone())
	return nil
}

// Mint credits `to` with new tokens. Only the owner may mint.
func (t *Token) Mint(caller, to common.Address, amount *uint256.Int) error {
	if caller != t.owner {
		return ErrUnauthorized
	}
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	t.totalSupply = supply
	// balance <= supply, so it cannot overflow either
	t.balances[to] = new(uint256.Int).Add(t.balanceOf(to), amount)
	return nil
}

// CanMint reports whether minting amount would keep the supply in range.
func (t *Token) CanMint(amount *uint256.Int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	return !overflow
}

// Burn destroys tokens held by `from`. Only the owner may burn.
func (t *Token) Burn(caller, from common.Address, amount *uint256.Int) error {
	if caller != t.owner {
		return ErrUnauthorized
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	balance := t.balanceOf(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, amount)
	return nil
}

func (t *Token) transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	balance := t.balanceOf(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, sending %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceOf(to), amount)
	return nil
}

func (t *Token) balanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *Token) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return new(uint256.Int)
}

func (t *Token) setAllowance(owner, spender common.Address, amount *uint256.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = amount
}

var maxUint256 = new(uint256.Int).SetAllOne()

func isInfinite(v *uint256.Int) bool {
	return v.Eq(maxUint256)
}

// MaxAllowance returns the infinite allowance value.
func MaxAllowance() *uint256.Int {
	return maxUint256.Clone()
}
