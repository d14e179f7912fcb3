package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/voting-bridge/internal/auxdata"
	"github.com/compose-network/voting-bridge/internal/crypto"
	"github.com/compose-network/voting-bridge/internal/erc20"
	"github.com/compose-network/voting-bridge/internal/governance"
	"github.com/compose-network/voting-bridge/internal/logger"
)

// Ledger resolves and deploys tokens in the settlement environment.
type Ledger interface {
	Lookup(address common.Address) (erc20.ERC20, bool)
	Deploy(address, owner common.Address, meta erc20.Metadata) (*erc20.Token, error)
}

type dao struct {
	governorAddr common.Address
	governor     governance.Governor
}

// Factory creates voter proxies, mints synthetic vote tokens against locked collateral
// and redeems them. Every operation runs under one mutex and validates (including
// governance state reads) before touching balances or the registry. A cast vote is the
// one effect that survives a later failure: its proxy stays registered.
type Factory struct {
	mu       sync.Mutex
	address  common.Address
	ledger   Ledger
	registry *Registry
	daos     map[common.Address]dao
	sinks    []EventSink
	logger   *slog.Logger
}

type FactoryOption func(*Factory)

// WithEventSink adds a receiver for committed factory events.
func WithEventSink(sink EventSink) FactoryOption {
	return func(f *Factory) { f.sinks = append(f.sinks, sink) }
}

func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// Allocation describes a successful AllocateVote.
type Allocation struct {
	Proxy     common.Address
	AuxData   uint64
	Synthetic common.Address
	Amount    *uint256.Int
	Created   bool
	VoteCast  bool
}

// Redemption describes a successful RedeemVotingTokens.
type Redemption struct {
	Proxy    common.Address
	Amount   *uint256.Int
	Released bool
}

func NewFactory(address common.Address, ledger Ledger, registry *Registry, opts ...FactoryOption) (*Factory, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("factory: %w", ErrInvalidAddress)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	f := &Factory{
		address:  address,
		ledger:   ledger,
		registry: registry,
		daos:     make(map[common.Address]dao),
		logger:   logger.Named("voter_factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Factory) Address() common.Address { return f.address }
func (f *Factory) Registry() *Registry     { return f.registry }

// RegisterDAO declares token as a supported governance token voted on through governorAddr.
func (f *Factory) RegisterDAO(token, governorAddr common.Address, governor governance.Governor) error {
	if token == (common.Address{}) || governorAddr == (common.Address{}) {
		return ErrInvalidAddress
	}
	if _, ok := f.ledger.Lookup(token); !ok {
		return fmt.Errorf("%w: %s is not deployed", ErrUnsupportedToken, token.Hex())
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.daos[token]; ok {
		if existing.governorAddr != governorAddr {
			return fmt.Errorf("%w: %s already uses %s", ErrGovernorMismatch, token.Hex(), existing.governorAddr.Hex())
		}
		return nil
	}
	f.daos[token] = dao{governorAddr: governorAddr, governor: governor}
	f.logger.With("token", token.Hex()).With("governor", governorAddr.Hex()).Info("dao registered")
	return nil
}

// SyntheticAddress returns the synthetic token paired with underlying. For a supported
// token whose synthetic is not deployed yet, the deterministic future address is returned.
func (f *Factory) SyntheticAddress(underlying common.Address) (common.Address, bool) {
	if s, ok := f.registry.SyntheticFor(underlying); ok {
		return s.Address(), true
	}
	f.mu.Lock()
	_, supported := f.daos[underlying]
	f.mu.Unlock()
	if !supported {
		return common.Address{}, false
	}
	return crypto.SyntheticTokenAddress(f.address, underlying), true
}

// UnderlyingFor returns the governance token backing a deployed synthetic token.
func (f *Factory) UnderlyingFor(synthetic common.Address) (common.Address, bool) {
	return f.registry.UnderlyingFor(synthetic)
}

// CreateVoterToken deploys the synthetic token of underlying if it does not exist yet.
func (f *Factory) CreateVoterToken(ctx context.Context, underlying common.Address) (*SyntheticToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.registry.SyntheticFor(underlying); ok {
		return s, nil
	}
	if _, ok := f.daos[underlying]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, underlying.Hex())
	}
	return f.ensureSynthetic(ctx, underlying)
}

// CreateVoterProxy returns the proxy for (token, proposalID), creating it on first use.
// A repeated call with the same arguments returns the same proxy; a call with another
// vote choice or governor for an existing proxy is rejected.
func (f *Factory) CreateVoterProxy(
	ctx context.Context,
	token, governorAddr common.Address,
	proposalID uint64,
	choice auxdata.VoteChoice,
) (*Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.daos[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	if d.governorAddr != governorAddr {
		return nil, fmt.Errorf("%w: %s is governed by %s", ErrGovernorMismatch, token.Hex(), d.governorAddr.Hex())
	}

	p, isNew, err := f.planProxy(token, d, proposalID, choice)
	if err != nil {
		return nil, err
	}
	if isNew {
		if err := f.commitProxy(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AllocateVote locks amount of token from caller into the proxy referenced by raw aux
// data and mints the same amount of synthetic vote tokens to caller. The caller must have
// approved the factory for amount.
func (f *Factory) AllocateVote(
	ctx context.Context,
	caller, token common.Address,
	raw uint64,
	amount *uint256.Int,
) (Allocation, error) {
	if err := validateAmount(amount); err != nil {
		return Allocation{}, err
	}
	if caller == (common.Address{}) {
		return Allocation{}, fmt.Errorf("caller: %w", ErrInvalidAddress)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	aux := auxdata.Decode(raw)
	d, ok := f.daos[token]
	if !ok {
		return Allocation{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	underlying, ok := f.ledger.Lookup(token)
	if !ok {
		return Allocation{}, fmt.Errorf("%w: %s is not deployed", ErrUnsupportedToken, token.Hex())
	}

	var (
		p     *Proxy
		isNew bool
		err   error
	)
	if proposalID, ok := aux.ProposalID(); ok {
		p, isNew, err = f.planProxy(token, d, proposalID, aux.Choice)
	} else {
		p, err = f.resolve(token, aux)
		if err == nil && p.key.Choice != aux.Choice {
			err = fmt.Errorf("%w: proxy %d votes %s", ErrConflictingVoteChoice, p.handle, p.key.Choice)
		}
	}
	if err != nil {
		return Allocation{}, err
	}

	if balance := underlying.BalanceOf(caller); balance.Lt(amount) {
		return Allocation{}, fmt.Errorf("%w: %s holds %s of %s", erc20.ErrInsufficientBalance, caller.Hex(), balance.Dec(), token.Hex())
	}
	if allowed := underlying.Allowance(caller, f.address); allowed.Lt(amount) {
		return Allocation{}, fmt.Errorf("%w: factory may pull %s from %s", erc20.ErrInsufficientAllowance, allowed.Dec(), caller.Hex())
	}
	synthetic, haveSynthetic := f.registry.SyntheticFor(token)
	if haveSynthetic && !synthetic.canMint(amount) {
		return Allocation{}, ErrAmountOverflow
	}
	if !haveSynthetic {
		if _, taken := f.ledger.Lookup(crypto.SyntheticTokenAddress(f.address, token)); taken {
			return Allocation{}, fmt.Errorf("synthetic token address of %s: %w", token.Hex(), erc20.ErrAlreadyDeployed)
		}
	}

	state, err := d.governor.State(ctx, p.key.ProposalID)
	if err != nil {
		return Allocation{}, err
	}
	if state.VotingClosed() {
		return Allocation{}, fmt.Errorf("%w: proposal %d is %s", ErrProposalExpired, p.key.ProposalID, state)
	}
	locked, err := p.lockedAfter(f.address, amount)
	if err != nil {
		return Allocation{}, err
	}

	registered := !isNew
	votedNow := false
	if state == governance.Active && !p.voted {
		if err := p.CastVote(ctx); err != nil {
			return Allocation{}, err
		}
		votedNow = true
		// the ballot is final on the governor, so the proxy that cast it stays registered
		// even if the rest of the allocation fails
		if !registered {
			if err := f.commitProxy(ctx, p); err != nil {
				return Allocation{}, err
			}
			registered = true
		}
		f.emit(ctx, VoteCast{Governor: p.key.Governor, ProposalID: p.key.ProposalID, Proxy: p.address, VoteChoice: p.key.Choice})
	}

	if err := underlying.TransferFrom(f.address, caller, p.address, amount); err != nil {
		if votedNow {
			f.logger.With("proxy", p.address.Hex()).With("proposal_id", p.key.ProposalID).
				With("err", err.Error()).Warn("vote cast but collateral pull failed")
		}
		return Allocation{}, fmt.Errorf("failed to pull collateral: %w", err)
	}
	p.locked = locked

	if !registered {
		if err := f.commitProxy(ctx, p); err != nil {
			return Allocation{}, err
		}
	}
	synthetic, err = f.ensureSynthetic(ctx, token)
	if err != nil {
		return Allocation{}, err
	}
	if err := synthetic.Mint(f.address, caller, amount); err != nil {
		return Allocation{}, fmt.Errorf("failed to mint synthetic votes: %w", err)
	}

	f.logger.With("proxy", p.address.Hex()).With("proposal_id", p.key.ProposalID).
		With("amount", amount.Dec()).With("new_proxy", isNew).Info("vote allocated")

	f.emit(ctx, VoteAllocated{Proxy: p.address, Account: caller, Amount: amount.Clone()})

	return Allocation{
		Proxy:     p.address,
		AuxData:   p.AuxData(),
		Synthetic: synthetic.Address(),
		Amount:    amount.Clone(),
		Created:   isNew,
		VoteCast:  votedNow,
	}, nil
}

// RedeemVotingTokens burns amount synthetic tokens from caller and returns the same
// amount of the underlying token from the referenced proxy. Redemption is allowed in
// every proxy state.
func (f *Factory) RedeemVotingTokens(
	ctx context.Context,
	caller, token common.Address,
	raw uint64,
	amount *uint256.Int,
) (Redemption, error) {
	if err := validateAmount(amount); err != nil {
		return Redemption{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.resolve(token, auxdata.Decode(raw))
	if err != nil {
		return Redemption{}, err
	}
	synthetic, ok := f.registry.SyntheticFor(token)
	if !ok {
		return Redemption{}, fmt.Errorf("%w: no synthetic token for %s", ErrUnsupportedToken, token.Hex())
	}
	underlying, ok := f.ledger.Lookup(token)
	if !ok {
		return Redemption{}, fmt.Errorf("%w: %s is not deployed", ErrUnsupportedToken, token.Hex())
	}

	if balance := synthetic.BalanceOf(caller); balance.Lt(amount) {
		return Redemption{}, fmt.Errorf("%w: %s holds %s synthetic votes, redeeming %s",
			erc20.ErrInsufficientBalance, caller.Hex(), balance.Dec(), amount.Dec())
	}
	if p.locked.Lt(amount) {
		return Redemption{}, fmt.Errorf("%w: proxy %s holds %s, redeeming %s",
			ErrInsufficientLockedBalance, p.address.Hex(), p.locked.Dec(), amount.Dec())
	}

	// exits never depend on the governor being reachable
	if err := p.Refresh(ctx); err != nil {
		f.logger.With("proxy", p.address.Hex()).With("proposal_id", p.key.ProposalID).
			With("err", err.Error()).Warn("expiry refresh failed, redeeming without it")
	}

	if err := synthetic.Burn(f.address, caller, amount); err != nil {
		return Redemption{}, err
	}
	if err := p.Release(f.address, amount); err != nil {
		return Redemption{}, err
	}
	if err := underlying.Transfer(f.address, caller, amount); err != nil {
		return Redemption{}, fmt.Errorf("failed to forward collateral: %w", err)
	}

	released := p.state == StateReleased
	f.logger.With("proxy", p.address.Hex()).With("proposal_id", p.key.ProposalID).
		With("amount", amount.Dec()).With("state", p.state.String()).Info("votes redeemed")

	f.emit(ctx, VotesRedeemed{Proxy: p.address, Account: caller, Amount: amount.Clone()})
	if released {
		f.emit(ctx, ProxyReleased{Proxy: p.address, ProposalID: p.key.ProposalID})
	}

	return Redemption{Proxy: p.address, Amount: amount.Clone(), Released: released}, nil
}

// CastVote submits the vote of a proxy created while its proposal was still pending.
func (f *Factory) CastVote(ctx context.Context, token common.Address, raw uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.resolve(token, auxdata.Decode(raw))
	if err != nil {
		return err
	}
	if p.voted {
		return nil
	}
	expired, err := p.HasExpired(ctx)
	if err != nil {
		return err
	}
	if expired {
		return fmt.Errorf("%w: proposal %d", ErrProposalExpired, p.key.ProposalID)
	}
	if err := p.CastVote(ctx); err != nil {
		return err
	}
	f.emit(ctx, VoteCast{Governor: p.key.Governor, ProposalID: p.key.ProposalID, Proxy: p.address, VoteChoice: p.key.Choice})
	return nil
}

// UnwrapVotes returns a read-only view of the referenced proxy.
func (f *Factory) UnwrapVotes(token common.Address, raw uint64) (VoterView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.resolve(token, auxdata.Decode(raw))
	if err != nil {
		return VoterView{}, err
	}
	return p.View(), nil
}

// HasVoteExpired reports whether voting closed on the referenced proxy's proposal.
func (f *Factory) HasVoteExpired(ctx context.Context, token common.Address, raw uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.resolve(token, auxdata.Decode(raw))
	if err != nil {
		return false, err
	}
	return p.HasExpired(ctx)
}

// ReleaseDrained refreshes every open proxy of token and returns the ones that became
// Released. A proxy emptied before its proposal closed is only released this way.
// Governance failures skip the proxy and are joined into the returned error.
func (f *Factory) ReleaseDrained(ctx context.Context, token common.Address) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		released []common.Address
		errs     []error
	)
	for _, p := range f.registry.ProxiesOf(token) {
		if p.state == StateReleased {
			continue
		}
		if err := p.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("proxy %d: %w", p.handle, err))
			continue
		}
		if p.state != StateReleased {
			continue
		}
		released = append(released, p.address)
		f.logger.With("proxy", p.address.Hex()).With("proposal_id", p.key.ProposalID).Info("drained proxy released")
		f.emit(ctx, ProxyReleased{Proxy: p.address, ProposalID: p.key.ProposalID})
	}
	return released, errors.Join(errs...)
}

// Snapshot exports the registry.
func (f *Factory) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registry.Snapshot()
}

// planProxy returns the registered proxy of (token, proposalID) or a new initialized,
// unregistered one.
func (f *Factory) planProxy(token common.Address, d dao, proposalID uint64, choice auxdata.VoteChoice) (*Proxy, bool, error) {
	if choice != auxdata.For && choice != auxdata.Against {
		return nil, false, ErrInvalidVoteChoice
	}
	if proposalID > auxdata.MaxValue {
		return nil, false, auxdata.ErrValueOutOfRange
	}

	if p, ok := f.registry.ProxyFor(token, proposalID); ok {
		if p.key.Governor != d.governorAddr {
			return nil, false, fmt.Errorf("%w: proxy %d uses %s", ErrGovernorMismatch, p.handle, p.key.Governor.Hex())
		}
		if p.key.Choice != choice {
			return nil, false, fmt.Errorf("%w: proposal %d already votes %s", ErrConflictingVoteChoice, proposalID, p.key.Choice)
		}
		return p, false, nil
	}

	underlying, ok := f.ledger.Lookup(token)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s is not deployed", ErrUnsupportedToken, token.Hex())
	}

	p := newProxy(crypto.ProxyAddress(f.address, token, proposalID), f.registry.NextHandle())
	if err := p.Initialize(f.address, d.governorAddr, d.governor, underlying, proposalID, choice); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// commitProxy registers a planned proxy and lazily deploys the synthetic token. The
// proxy stays registered if the deployment fails.
func (f *Factory) commitProxy(ctx context.Context, p *Proxy) error {
	f.registry.addProxy(p)
	f.logger.With("proxy", p.address.Hex()).With("handle", p.handle).
		With("proposal_id", p.key.ProposalID).With("vote_choice", p.key.Choice.String()).Info("voter proxy created")

	f.emit(ctx, VoterCreated{
		AuxData:    p.AuxData(),
		Governor:   p.key.Governor,
		ProposalID: p.key.ProposalID,
		Proxy:      p.address,
		VoteChoice: p.key.Choice,
	})
	_, err := f.ensureSynthetic(ctx, p.key.Token)
	return err
}

func (f *Factory) ensureSynthetic(ctx context.Context, underlying common.Address) (*SyntheticToken, error) {
	if s, ok := f.registry.SyntheticFor(underlying); ok {
		return s, nil
	}
	s, err := f.deploySynthetic(underlying)
	if err != nil {
		return nil, err
	}
	f.emit(ctx, VoterTokenCreated{Underlying: underlying, Synthetic: s.Address()})
	return s, nil
}

func (f *Factory) deploySynthetic(underlying common.Address) (*SyntheticToken, error) {
	var meta erc20.Metadata
	if source, ok := f.ledger.Lookup(underlying); ok {
		if described, ok := source.(interface{ Metadata() erc20.Metadata }); ok {
			meta = described.Metadata()
		}
	}

	address := crypto.SyntheticTokenAddress(f.address, underlying)
	token, err := f.ledger.Deploy(address, f.address, syntheticMetadata(meta))
	if err != nil {
		return nil, fmt.Errorf("failed to deploy synthetic token for %s: %w", underlying.Hex(), err)
	}

	s := &SyntheticToken{token: token, underlying: underlying}
	f.registry.addSynthetic(s)
	f.logger.With("underlying", underlying.Hex()).With("synthetic", address.Hex()).Info("synthetic vote token created")
	return s, nil
}

// resolve finds a registered proxy of token: by proposal id when aux is a new vote,
// by handle otherwise.
func (f *Factory) resolve(token common.Address, aux auxdata.AuxData) (*Proxy, error) {
	var (
		p  *Proxy
		ok bool
	)
	if proposalID, isNew := aux.ProposalID(); isNew {
		p, ok = f.registry.ProxyFor(token, proposalID)
		if !ok {
			return nil, fmt.Errorf("%w: no proxy for proposal %d of %s", ErrProxyNotFound, proposalID, token.Hex())
		}
		return p, nil
	}

	handle, _ := aux.Handle()
	p, ok = f.registry.ProxyByHandle(handle)
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrProxyNotFound, handle)
	}
	if p.key.Token != token {
		return nil, fmt.Errorf("%w: handle %d locks %s, not %s", ErrTokenMismatch, handle, p.key.Token.Hex(), token.Hex())
	}
	return p, nil
}

func (f *Factory) emit(ctx context.Context, event Event) {
	for _, sink := range f.sinks {
		if err := sink.HandleEvent(ctx, event); err != nil {
			f.logger.With("err", err.Error()).With("event", string(event.Kind())).Warn("event sink failed")
		}
	}
}

func validateAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}
