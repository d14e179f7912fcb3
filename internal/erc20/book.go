package erc20

import (
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/ethereum/go-ethereum/common"
)

var ErrAlreadyDeployed = fmt.Errorf("token already deployed: %w", errdefs.ErrAlreadyExists)

// Book is the set of tokens known to the settlement environment, keyed by address.
type Book struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
}

func NewBook() *Book {
	return &Book{tokens: make(map[common.Address]*Token)}
}

// Deploy registers a new token at address.
func (b *Book) Deploy(address, owner common.Address, meta Metadata) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.tokens[address]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDeployed, address.Hex())
	}
	token := NewToken(address, owner, meta)
	b.tokens[address] = token
	return token, nil
}

// Lookup returns the token at address as an ERC20.
func (b *Book) Lookup(address common.Address) (ERC20, bool) {
	token, ok := b.Token(address)
	if !ok {
		return nil, false
	}
	return token, true
}

// Token returns the concrete token at address.
func (b *Book) Token(address common.Address) (*Token, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	token, ok := b.tokens[address]
	return token, ok
}
