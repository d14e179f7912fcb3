package voting_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/voting-bridge/internal/auxdata"
	"github.com/compose-network/voting-bridge/internal/erc20"
	"github.com/compose-network/voting-bridge/internal/governance"
	"github.com/compose-network/voting-bridge/internal/voting"
)

var (
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	governorAddr = common.HexToAddress("0xc0Da02939E1441F497fd74F78cE7Decb17B66529")
	compAddr     = common.HexToAddress("0xc00e94Cb662C3520282E6f5717214004A7f26888")
	otherAddr    = common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
	minter       = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	processor    = common.HexToAddress("0x00000000000000000000000000000000000000a1")

	oneToken = uint256.NewInt(1_000_000_000_000_000_000)
)

type recordingSink struct {
	mu     sync.Mutex
	events []voting.Event
	err    error
}

func (r *recordingSink) HandleEvent(_ context.Context, event voting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSink) kinds() []voting.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]voting.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

type fixture struct {
	ctx     context.Context
	book    *erc20.Book
	comp    *erc20.Token
	gov     *governance.Memory
	factory *voting.Factory
	sink    *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, nil)
}

// newFixtureWith lets a test wrap the ledger or the governor the factory talks to.
func newFixtureWith(
	t *testing.T,
	wrapLedger func(*erc20.Book) voting.Ledger,
	wrapGovernor func(*governance.Memory) governance.Governor,
) *fixture {
	t.Helper()

	book := erc20.NewBook()
	comp, err := book.Deploy(compAddr, minter, erc20.Metadata{Name: "Compound", Symbol: "COMP", Decimals: 18})
	require.NoError(t, err)

	gov := governance.NewMemory()
	gov.Propose(124, governance.Active)

	var (
		ledger   voting.Ledger       = book
		governor governance.Governor = gov
	)
	if wrapLedger != nil {
		ledger = wrapLedger(book)
	}
	if wrapGovernor != nil {
		governor = wrapGovernor(gov)
	}

	sink := &recordingSink{}
	factory, err := voting.NewFactory(factoryAddr, ledger, nil, voting.WithEventSink(sink))
	require.NoError(t, err)
	require.NoError(t, factory.RegisterDAO(compAddr, governorAddr, governor))

	require.NoError(t, comp.Mint(minter, processor, new(uint256.Int).Mul(oneToken, uint256.NewInt(10))))
	require.NoError(t, comp.Approve(processor, factoryAddr, erc20.MaxAllowance()))

	return &fixture{ctx: context.Background(), book: book, comp: comp, gov: gov, factory: factory, sink: sink}
}

// countingGovernor fails every State call after the first failAfter ones.
type countingGovernor struct {
	*governance.Memory
	failAfter  int
	stateCalls int
}

func (g *countingGovernor) State(ctx context.Context, proposalID uint64) (governance.ProposalState, error) {
	g.stateCalls++
	if g.failAfter > 0 && g.stateCalls > g.failAfter {
		return governance.Pending, fmt.Errorf("%w: node unreachable", governance.ErrGovernanceCallFailed)
	}
	return g.Memory.State(ctx, proposalID)
}

// pullFailingLedger hands out tokens whose next TransferFrom fails with failPull.
type pullFailingLedger struct {
	*erc20.Book
	failPull error
}

func (l *pullFailingLedger) Lookup(address common.Address) (erc20.ERC20, bool) {
	token, ok := l.Book.Token(address)
	if !ok {
		return nil, false
	}
	return &pullFailingToken{Token: token, ledger: l}, true
}

type pullFailingToken struct {
	*erc20.Token
	ledger *pullFailingLedger
}

func (t *pullFailingToken) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if err := t.ledger.failPull; err != nil {
		t.ledger.failPull = nil
		return err
	}
	return t.Token.TransferFrom(spender, from, to, amount)
}

func (f *fixture) synthetic(t *testing.T) *voting.SyntheticToken {
	t.Helper()
	s, ok := f.factory.Registry().SyntheticFor(compAddr)
	require.True(t, ok)
	return s
}

// requireConserved checks supply == Σ locked == collateral held by proxies.
func (f *fixture) requireConserved(t *testing.T) {
	t.Helper()
	registry := f.factory.Registry()
	locked := registry.LockedTotal(compAddr)

	held := new(uint256.Int)
	for _, p := range registry.ProxiesOf(compAddr) {
		held.Add(held, f.comp.BalanceOf(p.Address()))
	}
	require.Equal(t, locked.Dec(), held.Dec(), "collateral held by proxies")

	if s, ok := registry.SyntheticFor(compAddr); ok {
		require.Equal(t, locked.Dec(), s.TotalSupply().Dec(), "synthetic supply")
	} else {
		require.True(t, locked.IsZero())
	}
}

func TestAllocateNewVote(t *testing.T) {
	f := newFixture(t)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.True(t, alloc.Created)
	assert.True(t, alloc.VoteCast)
	assert.Equal(t, auxdata.Existing(0, auxdata.For).MustEncode(), alloc.AuxData)

	synthetic := f.synthetic(t)
	assert.Equal(t, alloc.Synthetic, synthetic.Address())
	assert.Equal(t, oneToken, synthetic.BalanceOf(processor))
	assert.Equal(t, "vCOMP", synthetic.Token().Metadata().Symbol)

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.Equal(t, oneToken, view.Locked)
	assert.Equal(t, voting.StateVoteCast, view.State)
	assert.Equal(t, oneToken, f.comp.BalanceOf(alloc.Proxy))

	assert.Equal(t, []governance.Ballot{{Voter: alloc.Proxy, Support: governance.SupportFor}}, f.gov.Ballots(124))
	assert.Equal(t, []voting.EventKind{
		voting.KindVoterCreated, voting.KindVoterTokenCreated, voting.KindVoteCast, voting.KindVoteAllocated,
	}, f.sink.kinds())

	created, ok := f.sink.events[0].(voting.VoterCreated)
	require.True(t, ok)
	assert.Equal(t, voting.VoterCreated{
		AuxData: alloc.AuxData, Governor: governorAddr, ProposalID: 124, Proxy: alloc.Proxy, VoteChoice: auxdata.For,
	}, created)
	f.requireConserved(t)
}

func TestAllocateThenRedeem(t *testing.T) {
	f := newFixture(t)
	before := f.comp.BalanceOf(processor)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	f.requireConserved(t)

	redemption, err := f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, alloc.AuxData, oneToken)
	require.NoError(t, err)
	assert.False(t, redemption.Released, "proposal still active")

	assert.True(t, f.synthetic(t).BalanceOf(processor).IsZero())
	assert.Equal(t, before, f.comp.BalanceOf(processor))
	assert.True(t, f.comp.BalanceOf(factoryAddr).IsZero())

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.True(t, view.Locked.IsZero())
	f.requireConserved(t)
}

func TestCreateVoterProxyIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.factory.CreateVoterProxy(f.ctx, compAddr, governorAddr, 124, auxdata.For)
	require.NoError(t, err)
	second, err := f.factory.CreateVoterProxy(f.ctx, compAddr, governorAddr, 124, auxdata.For)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, []voting.EventKind{voting.KindVoterCreated, voting.KindVoterTokenCreated}, f.sink.kinds())
	assert.Equal(t, uint64(1), f.factory.Registry().NextHandle())

	other, err := f.factory.CreateVoterProxy(f.ctx, compAddr, governorAddr, 125, auxdata.Against)
	require.NoError(t, err)
	assert.NotEqual(t, first.Address(), other.Address())
	assert.Equal(t, uint64(1), other.Handle())

	synthetic, err := f.factory.CreateVoterToken(f.ctx, compAddr)
	require.NoError(t, err)
	assert.Equal(t, f.synthetic(t), synthetic)
	assert.Len(t, f.factory.Snapshot().SyntheticTokens, 1)
}

func TestCreateVoterProxyConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.factory.CreateVoterProxy(f.ctx, compAddr, governorAddr, 124, auxdata.For)
	require.NoError(t, err)

	_, err = f.factory.CreateVoterProxy(f.ctx, compAddr, governorAddr, 124, auxdata.Against)
	require.ErrorIs(t, err, voting.ErrConflictingVoteChoice)
	assert.True(t, errdefs.IsConflict(err))

	_, err = f.factory.CreateVoterProxy(f.ctx, compAddr, common.HexToAddress("0xbad"), 124, auxdata.For)
	require.ErrorIs(t, err, voting.ErrGovernorMismatch)

	_, err = f.factory.CreateVoterProxy(f.ctx, compAddr, governorAddr, 126, auxdata.VoteChoice(2))
	require.ErrorIs(t, err, voting.ErrInvalidVoteChoice)

	_, err = f.factory.CreateVoterProxy(f.ctx, otherAddr, governorAddr, 124, auxdata.For)
	require.ErrorIs(t, err, voting.ErrUnsupportedToken)

	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.Against).MustEncode(), oneToken)
	require.ErrorIs(t, err, voting.ErrConflictingVoteChoice)

	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.Existing(0, auxdata.Against).MustEncode(), oneToken)
	require.ErrorIs(t, err, voting.ErrConflictingVoteChoice)
	f.requireConserved(t)
}

func TestAllocateToExistingProxy(t *testing.T) {
	f := newFixture(t)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)

	again, err := f.factory.AllocateVote(f.ctx, processor, compAddr, alloc.AuxData, oneToken)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.False(t, again.VoteCast)
	assert.Equal(t, alloc.Proxy, again.Proxy)

	// a second "new" allocation for the same proposal reuses the proxy
	third, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.False(t, third.Created)

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Mul(oneToken, uint256.NewInt(3)), view.Locked)
	assert.Len(t, f.gov.Ballots(124), 1)
	f.requireConserved(t)
}

func TestAllocateProxyNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.Existing(3, auxdata.For).MustEncode(), oneToken)
	require.ErrorIs(t, err, voting.ErrProxyNotFound)
	assert.True(t, errdefs.IsNotFound(err))

	_, err = f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, auxdata.NewVote(999, auxdata.For).MustEncode(), oneToken)
	require.ErrorIs(t, err, voting.ErrProxyNotFound)

	_, err = f.factory.UnwrapVotes(compAddr, auxdata.Existing(0, auxdata.For).MustEncode())
	require.ErrorIs(t, err, voting.ErrProxyNotFound)
}

func TestAllocateValidation(t *testing.T) {
	f := newFixture(t)
	raw := auxdata.NewVote(124, auxdata.For).MustEncode()

	_, err := f.factory.AllocateVote(f.ctx, processor, compAddr, raw, uint256.NewInt(0))
	require.ErrorIs(t, err, voting.ErrInvalidAmount)

	_, err = f.factory.AllocateVote(f.ctx, common.Address{}, compAddr, raw, oneToken)
	require.ErrorIs(t, err, voting.ErrInvalidAddress)

	_, err = f.factory.AllocateVote(f.ctx, processor, otherAddr, raw, oneToken)
	require.ErrorIs(t, err, voting.ErrUnsupportedToken)

	tooMuch := new(uint256.Int).Mul(oneToken, uint256.NewInt(11))
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, raw, tooMuch)
	require.ErrorIs(t, err, erc20.ErrInsufficientBalance)

	require.NoError(t, f.comp.Approve(processor, factoryAddr, uint256.NewInt(1)))
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, raw, oneToken)
	require.ErrorIs(t, err, erc20.ErrInsufficientAllowance)

	assert.Empty(t, f.sink.kinds())
	assert.Equal(t, uint64(0), f.factory.Registry().NextHandle())
	_, deployed := f.factory.Registry().SyntheticFor(compAddr)
	assert.False(t, deployed)
	assert.Empty(t, f.gov.Ballots(124))
}

func TestExpiryGating(t *testing.T) {
	f := newFixture(t)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)

	for _, state := range []governance.ProposalState{
		governance.Defeated, governance.Succeeded, governance.Queued,
		governance.Expired, governance.Executed, governance.Canceled,
	} {
		require.NoError(t, f.gov.SetState(124, state))
		_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, alloc.AuxData, oneToken)
		require.ErrorIs(t, err, voting.ErrProposalExpired, state.String())
		assert.True(t, errdefs.IsFailedPrecondition(err))

		expired, err := f.factory.HasVoteExpired(f.ctx, compAddr, alloc.AuxData)
		require.NoError(t, err)
		assert.True(t, expired)
	}
	f.requireConserved(t)

	half := new(uint256.Int).Div(oneToken, uint256.NewInt(2))
	redemption, err := f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, alloc.AuxData, half)
	require.NoError(t, err)
	assert.False(t, redemption.Released)

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.Equal(t, voting.StateExpired, view.State)

	redemption, err = f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, alloc.AuxData, half)
	require.NoError(t, err)
	assert.True(t, redemption.Released)
	assert.Contains(t, f.sink.kinds(), voting.KindProxyReleased)
	f.requireConserved(t)

	// new allocation for a closed proposal never creates a proxy
	f.gov.Propose(200, governance.Defeated)
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(200, auxdata.For).MustEncode(), oneToken)
	require.ErrorIs(t, err, voting.ErrProposalExpired)
	_, found := f.factory.Registry().ProxyFor(compAddr, 200)
	assert.False(t, found)
}

func TestRedeemInsufficient(t *testing.T) {
	f := newFixture(t)

	first, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	f.gov.Propose(125, governance.Active)
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(125, auxdata.Against).MustEncode(), oneToken)
	require.NoError(t, err)

	two := new(uint256.Int).Mul(oneToken, uint256.NewInt(2))
	_, err = f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, first.AuxData, two)
	require.ErrorIs(t, err, voting.ErrInsufficientLockedBalance)

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000a9")
	_, err = f.factory.RedeemVotingTokens(f.ctx, stranger, compAddr, first.AuxData, oneToken)
	require.ErrorIs(t, err, erc20.ErrInsufficientBalance)

	_, err = f.factory.RedeemVotingTokens(f.ctx, processor, otherAddr, first.AuxData, oneToken)
	require.ErrorIs(t, err, voting.ErrTokenMismatch)
	f.requireConserved(t)
}

func TestGovernanceFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	before := f.comp.BalanceOf(processor)

	f.gov.FailNext(errors.New("node unreachable"))
	_, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.ErrorIs(t, err, governance.ErrGovernanceCallFailed)
	assert.True(t, errdefs.IsUnavailable(err))

	assert.Equal(t, before, f.comp.BalanceOf(processor))
	assert.Equal(t, uint64(0), f.factory.Registry().NextHandle())
	assert.Empty(t, f.sink.kinds())

	// unknown proposal: the governor reverts on state()
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(77, auxdata.For).MustEncode(), oneToken)
	require.ErrorIs(t, err, governance.ErrGovernanceCallFailed)
	assert.Equal(t, uint64(0), f.factory.Registry().NextHandle())

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)

	// exits do not wait for the governor; the proxy just keeps its state
	f.gov.FailNext(errors.New("node unreachable"))
	red, err := f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, alloc.AuxData, oneToken)
	require.NoError(t, err)
	assert.False(t, red.Released)
	assert.True(t, f.synthetic(t).BalanceOf(processor).IsZero())
	assert.Equal(t, before, f.comp.BalanceOf(processor))

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.Equal(t, voting.StateVoteCast, view.State)
	f.requireConserved(t)
}

func TestAllocateReadsProposalStateOnce(t *testing.T) {
	var gov *countingGovernor
	f := newFixtureWith(t, nil, func(m *governance.Memory) governance.Governor {
		gov = &countingGovernor{Memory: m, failAfter: 1}
		return gov
	})

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.True(t, alloc.VoteCast)
	assert.Equal(t, 1, gov.stateCalls)
	assert.Len(t, f.gov.Ballots(124), 1)

	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, alloc.AuxData, oneToken)
	require.ErrorIs(t, err, governance.ErrGovernanceCallFailed)

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.Equal(t, oneToken, view.Locked)
	assert.Equal(t, oneToken, f.synthetic(t).BalanceOf(processor))
	f.requireConserved(t)

	gov.failAfter = 0
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.Len(t, f.gov.Ballots(124), 1)
	f.requireConserved(t)
}

func TestCastVoteSurvivesFailedPull(t *testing.T) {
	var ledger *pullFailingLedger
	f := newFixtureWith(t, func(b *erc20.Book) voting.Ledger {
		ledger = &pullFailingLedger{Book: b}
		return ledger
	}, nil)
	raw := auxdata.NewVote(124, auxdata.For).MustEncode()
	before := f.comp.BalanceOf(processor)

	ledger.failPull = errors.New("transfer reverted")
	_, err := f.factory.AllocateVote(f.ctx, processor, compAddr, raw, oneToken)
	require.Error(t, err)
	assert.Equal(t, before, f.comp.BalanceOf(processor))
	require.Len(t, f.gov.Ballots(124), 1)

	p, ok := f.factory.Registry().ProxyFor(compAddr, 124)
	require.True(t, ok, "the proxy that voted stays registered")
	assert.True(t, p.Voted())
	assert.True(t, p.Locked().IsZero())
	assert.Equal(t, []voting.EventKind{
		voting.KindVoterCreated, voting.KindVoterTokenCreated, voting.KindVoteCast,
	}, f.sink.kinds())
	f.requireConserved(t)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, raw, oneToken)
	require.NoError(t, err)
	assert.False(t, alloc.Created)
	assert.False(t, alloc.VoteCast)
	assert.Equal(t, p.Address(), alloc.Proxy)
	assert.Equal(t, []governance.Ballot{{Voter: p.Address(), Support: governance.SupportFor}}, f.gov.Ballots(124))
	assert.Equal(t, oneToken, f.synthetic(t).BalanceOf(processor))
	f.requireConserved(t)
}

func TestReleaseDrained(t *testing.T) {
	f := newFixture(t)
	f.gov.Propose(125, governance.Active)

	drained, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	kept, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(125, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)

	red, err := f.factory.RedeemVotingTokens(f.ctx, processor, compAddr, drained.AuxData, oneToken)
	require.NoError(t, err)
	assert.False(t, red.Released, "voting still open")

	released, err := f.factory.ReleaseDrained(f.ctx, compAddr)
	require.NoError(t, err)
	assert.Empty(t, released)

	require.NoError(t, f.gov.SetState(124, governance.Defeated))
	require.NoError(t, f.gov.SetState(125, governance.Succeeded))
	released, err = f.factory.ReleaseDrained(f.ctx, compAddr)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{drained.Proxy}, released)

	kinds := f.sink.kinds()
	assert.Equal(t, voting.KindProxyReleased, kinds[len(kinds)-1])

	view, err := f.factory.UnwrapVotes(compAddr, drained.AuxData)
	require.NoError(t, err)
	assert.Equal(t, voting.StateReleased, view.State)
	view, err = f.factory.UnwrapVotes(compAddr, kept.AuxData)
	require.NoError(t, err)
	assert.Equal(t, voting.StateExpired, view.State)

	released, err = f.factory.ReleaseDrained(f.ctx, compAddr)
	require.NoError(t, err)
	assert.Empty(t, released)

	f.gov.Propose(126, governance.Active)
	_, err = f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(126, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	f.gov.FailNext(errors.New("node unreachable"))
	_, err = f.factory.ReleaseDrained(f.ctx, compAddr)
	require.ErrorIs(t, err, governance.ErrGovernanceCallFailed)
	f.requireConserved(t)
}

func TestPendingProposalVotesLater(t *testing.T) {
	f := newFixture(t)
	f.gov.Propose(300, governance.Pending)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(300, auxdata.Against).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.False(t, alloc.VoteCast)
	assert.Empty(t, f.gov.Ballots(300))

	f.gov.FailNext(errors.New("reverted"))
	require.ErrorIs(t, f.factory.CastVote(f.ctx, compAddr, alloc.AuxData), governance.ErrGovernanceCallFailed)

	require.NoError(t, f.gov.SetState(300, governance.Active))
	require.NoError(t, f.factory.CastVote(f.ctx, compAddr, alloc.AuxData))
	require.NoError(t, f.factory.CastVote(f.ctx, compAddr, alloc.AuxData))
	assert.Equal(t, []governance.Ballot{{Voter: alloc.Proxy, Support: governance.SupportAgainst}}, f.gov.Ballots(300))

	view, err := f.factory.UnwrapVotes(compAddr, alloc.AuxData)
	require.NoError(t, err)
	assert.Equal(t, voting.StateVoteCast, view.State)

	f.gov.Propose(301, governance.Pending)
	late, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(301, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	require.NoError(t, f.gov.SetState(301, governance.Canceled))
	require.ErrorIs(t, f.factory.CastVote(f.ctx, compAddr, late.AuxData), voting.ErrProposalExpired)
}

func TestSyntheticPairing(t *testing.T) {
	f := newFixture(t)

	predicted, ok := f.factory.SyntheticAddress(compAddr)
	require.True(t, ok)
	_, ok = f.factory.UnderlyingFor(predicted)
	assert.False(t, ok, "not deployed yet")

	_, ok = f.factory.SyntheticAddress(otherAddr)
	assert.False(t, ok)

	alloc, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.Equal(t, predicted, alloc.Synthetic)

	underlying, ok := f.factory.UnderlyingFor(predicted)
	require.True(t, ok)
	assert.Equal(t, compAddr, underlying)
}

func TestSinkErrorsDoNotFailCalls(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("journal offline")

	_, err := f.factory.AllocateVote(f.ctx, processor, compAddr, auxdata.NewVote(124, auxdata.For).MustEncode(), oneToken)
	require.NoError(t, err)
	assert.NotEmpty(t, f.sink.kinds())
}

func TestSyntheticTokenAccess(t *testing.T) {
	f := newFixture(t)
	_, err := f.factory.CreateVoterToken(f.ctx, compAddr)
	require.NoError(t, err)

	s := f.synthetic(t)
	require.ErrorIs(t, s.Mint(processor, processor, oneToken), voting.ErrUnauthorized)
	require.ErrorIs(t, s.Burn(processor, processor, oneToken), voting.ErrUnauthorized)
	require.ErrorIs(t, s.Burn(factoryAddr, processor, oneToken), erc20.ErrInsufficientBalance)
	require.NoError(t, s.Mint(factoryAddr, processor, oneToken))
	assert.Equal(t, oneToken, s.TotalSupply())
	assert.Equal(t, compAddr, s.Underlying())
}

func TestRegisterDAO(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.factory.RegisterDAO(compAddr, governorAddr, f.gov))
	require.ErrorIs(t, f.factory.RegisterDAO(compAddr, otherAddr, f.gov), voting.ErrGovernorMismatch)
	require.ErrorIs(t, f.factory.RegisterDAO(otherAddr, governorAddr, f.gov), voting.ErrUnsupportedToken)
	require.ErrorIs(t, f.factory.RegisterDAO(common.Address{}, governorAddr, f.gov), voting.ErrInvalidAddress)

	_, err := voting.NewFactory(common.Address{}, f.book, nil)
	require.ErrorIs(t, err, voting.ErrInvalidAddress)
}
