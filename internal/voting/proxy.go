package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/voting-bridge/internal/auxdata"
	"github.com/compose-network/voting-bridge/internal/erc20"
	"github.com/compose-network/voting-bridge/internal/governance"
)

// ProxyState is the lifecycle of a voter proxy. It only moves forward.
type ProxyState uint8

const (
	StateUninitialized ProxyState = iota
	StateLocked
	StateVoteCast
	StateExpired
	StateReleased
)

func (s ProxyState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocked:
		return "locked"
	case StateVoteCast:
		return "vote_cast"
	case StateExpired:
		return "expired"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("ProxyState(%d)", uint8(s))
	}
}

// ProposalKey identifies a voting commitment. It is fixed once a proxy is initialized.
type ProposalKey struct {
	Token      common.Address
	Governor   common.Address
	ProposalID uint64
	Choice     auxdata.VoteChoice
}

// Proxy holds the collateral locked for one (token, proposal) and casts its single vote.
// The factory serializes every call.
type Proxy struct {
	address  common.Address
	handle   uint64
	factory  common.Address
	key      ProposalKey
	governor governance.Governor
	token    erc20.ERC20
	locked   *uint256.Int
	state    ProxyState
	voted    bool
}

func newProxy(address common.Address, handle uint64) *Proxy {
	return &Proxy{
		address: address,
		handle:  handle,
		locked:  new(uint256.Int),
	}
}

// Initialize records the proposal key. It can only run once.
func (p *Proxy) Initialize(
	factory common.Address,
	governorAddr common.Address,
	governor governance.Governor,
	token erc20.ERC20,
	proposalID uint64,
	choice auxdata.VoteChoice,
) error {
	if p.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	p.factory = factory
	p.governor = governor
	p.token = token
	p.key = ProposalKey{
		Token:      token.Address(),
		Governor:   governorAddr,
		ProposalID: proposalID,
		Choice:     choice,
	}
	p.state = StateLocked
	return nil
}

// Lock adds amount to the locked collateral. The tokens must already be, or be about
// to be, credited to the proxy account by the factory.
func (p *Proxy) Lock(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	locked, err := p.lockedAfter(caller, amount)
	if err != nil {
		return err
	}

	expired, err := p.HasExpired(ctx)
	if err != nil {
		return err
	}
	if expired {
		return fmt.Errorf("%w: proposal %d", ErrProposalExpired, p.key.ProposalID)
	}

	p.locked = locked
	return nil
}

// lockedAfter validates a lock of amount without asking the governor and returns the
// resulting locked balance. Callers that already read the proposal state use it directly.
func (p *Proxy) lockedAfter(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := p.checkCaller(caller); err != nil {
		return nil, err
	}
	if p.state != StateLocked && p.state != StateVoteCast {
		return nil, fmt.Errorf("%w: proxy %s is %s", ErrProposalExpired, p.address.Hex(), p.state)
	}
	locked, overflow := new(uint256.Int).AddOverflow(p.locked, amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return locked, nil
}

// CastVote forwards the stored choice to the governor once. Later calls are no-ops.
func (p *Proxy) CastVote(ctx context.Context) error {
	if p.state == StateUninitialized {
		return ErrNotInitialized
	}
	if p.voted {
		return nil
	}

	err := p.governor.CastVote(ctx, p.address, p.key.ProposalID, uint8(p.key.Choice))
	if err != nil {
		if !errors.Is(err, governance.ErrGovernanceCallFailed) {
			err = fmt.Errorf("%w: %w", governance.ErrGovernanceCallFailed, err)
		}
		return err
	}

	p.voted = true
	p.advance(StateVoteCast)
	return nil
}

// Release returns amount of the underlying token to the factory.
func (p *Proxy) Release(caller common.Address, amount *uint256.Int) error {
	if err := p.checkCaller(caller); err != nil {
		return err
	}
	if p.locked.Lt(amount) {
		return fmt.Errorf("%w: proxy %s holds %s, releasing %s",
			ErrInsufficientLockedBalance, p.address.Hex(), p.locked.Dec(), amount.Dec())
	}

	if err := p.token.Transfer(p.address, p.factory, amount); err != nil {
		return fmt.Errorf("failed to return collateral from proxy %s: %w", p.address.Hex(), err)
	}

	p.locked = new(uint256.Int).Sub(p.locked, amount)
	if p.state == StateExpired && p.locked.IsZero() {
		p.advance(StateReleased)
	}
	return nil
}

// HasExpired reports whether voting on the proposal has closed. It does not mutate the proxy.
func (p *Proxy) HasExpired(ctx context.Context) (bool, error) {
	if p.state == StateUninitialized {
		return false, ErrNotInitialized
	}
	if p.state >= StateExpired {
		return true, nil
	}

	state, err := p.governor.State(ctx, p.key.ProposalID)
	if err != nil {
		if !errors.Is(err, governance.ErrGovernanceCallFailed) {
			err = fmt.Errorf("%w: %w", governance.ErrGovernanceCallFailed, err)
		}
		return false, err
	}
	return state.VotingClosed(), nil
}

// Refresh moves the proxy to Expired once the proposal closed, and to Released once
// an expired proxy holds nothing.
func (p *Proxy) Refresh(ctx context.Context) error {
	if p.state == StateLocked || p.state == StateVoteCast {
		expired, err := p.HasExpired(ctx)
		if err != nil {
			return err
		}
		if expired {
			p.advance(StateExpired)
		}
	}
	if p.state == StateExpired && p.locked.IsZero() {
		p.advance(StateReleased)
	}
	return nil
}

func (p *Proxy) Address() common.Address { return p.address }
func (p *Proxy) Handle() uint64          { return p.handle }
func (p *Proxy) Key() ProposalKey        { return p.key }
func (p *Proxy) State() ProxyState       { return p.state }
func (p *Proxy) Voted() bool             { return p.voted }
func (p *Proxy) Locked() *uint256.Int    { return p.locked.Clone() }

// AuxData is the short handle callers use to reference this proxy.
func (p *Proxy) AuxData() uint64 {
	return auxdata.Existing(p.handle, p.key.Choice).MustEncode()
}

// VoterView is a read-only copy of a proxy.
type VoterView struct {
	Handle  uint64
	AuxData uint64
	Address common.Address
	Key     ProposalKey
	Locked  *uint256.Int
	State   ProxyState
	Voted   bool
}

func (p *Proxy) View() VoterView {
	return VoterView{
		Handle:  p.handle,
		AuxData: p.AuxData(),
		Address: p.address,
		Key:     p.key,
		Locked:  p.Locked(),
		State:   p.state,
		Voted:   p.voted,
	}
}

func (p *Proxy) checkCaller(caller common.Address) error {
	if p.state == StateUninitialized {
		return ErrNotInitialized
	}
	if caller != p.factory {
		return ErrUnauthorized
	}
	return nil
}

func (p *Proxy) advance(to ProxyState) {
	if to > p.state {
		p.state = to
	}
}
