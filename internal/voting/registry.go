package voting

import (
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type proxyID struct {
	token      common.Address
	proposalID uint64
}

// Registry owns the factory's lookup tables: an arena of proxies addressed by handle,
// the (token, proposal) identity of each proxy, and the underlying/synthetic pairing.
type Registry struct {
	mu          sync.RWMutex
	proxies     []*Proxy
	byID        map[proxyID]uint64
	synthetics  map[common.Address]*SyntheticToken
	underlyings map[common.Address]common.Address
}

func NewRegistry() *Registry {
	return &Registry{
		byID:        make(map[proxyID]uint64),
		synthetics:  make(map[common.Address]*SyntheticToken),
		underlyings: make(map[common.Address]common.Address),
	}
}

// NextHandle is the handle the next registered proxy will get.
func (r *Registry) NextHandle() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.proxies))
}

func (r *Registry) ProxyByHandle(handle uint64) (*Proxy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if handle >= uint64(len(r.proxies)) {
		return nil, false
	}
	return r.proxies[handle], true
}

func (r *Registry) ProxyFor(token common.Address, proposalID uint64) (*Proxy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.byID[proxyID{token: token, proposalID: proposalID}]
	if !ok {
		return nil, false
	}
	return r.proxies[handle], true
}

// ProxiesOf returns the proxies holding collateral of token, in creation order.
func (r *Registry) ProxiesOf(token common.Address) []*Proxy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Proxy
	for _, p := range r.proxies {
		if p.key.Token == token {
			out = append(out, p)
		}
	}
	return out
}

// LockedTotal sums the collateral locked for token.
func (r *Registry) LockedTotal(token common.Address) *uint256.Int {
	total := new(uint256.Int)
	for _, p := range r.ProxiesOf(token) {
		total.Add(total, p.locked)
	}
	return total
}

func (r *Registry) SyntheticFor(underlying common.Address) (*SyntheticToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.synthetics[underlying]
	return s, ok
}

func (r *Registry) UnderlyingFor(synthetic common.Address) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.underlyings[synthetic]
	return u, ok
}

func (r *Registry) addProxy(p *Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = append(r.proxies, p)
	r.byID[proxyID{token: p.key.Token, proposalID: p.key.ProposalID}] = p.handle
}

func (r *Registry) addSynthetic(s *SyntheticToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthetics[s.underlying] = s
	r.underlyings[s.Address()] = s.underlying
}

// Snapshot is the audit export of a registry.
type Snapshot struct {
	Proxies         []ProxyRecord     `json:"proxies"`
	SyntheticTokens []SyntheticRecord `json:"syntheticTokens"`
}

type ProxyRecord struct {
	Handle     uint64 `json:"handle"`
	AuxData    uint64 `json:"auxData"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	Governor   string `json:"governor"`
	ProposalID uint64 `json:"proposalId"`
	VoteChoice string `json:"voteChoice"`
	Locked     string `json:"locked"`
	State      string `json:"state"`
	Voted      bool   `json:"voted"`
}

type SyntheticRecord struct {
	Underlying  string `json:"underlying"`
	Synthetic   string `json:"synthetic"`
	TotalSupply string `json:"totalSupply"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Proxies:         make([]ProxyRecord, 0, len(r.proxies)),
		SyntheticTokens: make([]SyntheticRecord, 0, len(r.synthetics)),
	}
	for _, p := range r.proxies {
		snap.Proxies = append(snap.Proxies, ProxyRecord{
			Handle:     p.handle,
			AuxData:    p.AuxData(),
			Address:    p.address.Hex(),
			Token:      p.key.Token.Hex(),
			Governor:   p.key.Governor.Hex(),
			ProposalID: p.key.ProposalID,
			VoteChoice: p.key.Choice.String(),
			Locked:     p.locked.Dec(),
			State:      p.state.String(),
			Voted:      p.voted,
		})
	}
	for _, s := range r.synthetics {
		snap.SyntheticTokens = append(snap.SyntheticTokens, SyntheticRecord{
			Underlying:  s.underlying.Hex(),
			Synthetic:   s.Address().Hex(),
			TotalSupply: s.TotalSupply().Dec(),
		})
	}
	slices.SortFunc(snap.SyntheticTokens, func(a, b SyntheticRecord) int {
		return strings.Compare(a.Underlying, b.Underlying)
	})
	return snap
}
