package governance

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Memory is an in-process governor. It keeps proposal states set by the caller and
// enforces the castVote rules of Governor Bravo: voting must be active and each voter
// votes once.
type Memory struct {
	mu        sync.Mutex
	proposals map[uint64]*memoryProposal
	failNext  error
}

type memoryProposal struct {
	state ProposalState
	votes map[common.Address]uint8
}

// Ballot is one recorded vote.
type Ballot struct {
	Voter   common.Address
	Support uint8
}

func NewMemory() *Memory {
	return &Memory{proposals: make(map[uint64]*memoryProposal)}
}

// Propose registers proposalID in the given state.
func (m *Memory) Propose(proposalID uint64, state ProposalState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[proposalID] = &memoryProposal{state: state, votes: make(map[common.Address]uint8)}
}

// SetState moves an existing proposal to state.
func (m *Memory) SetState(proposalID uint64, state ProposalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[proposalID]
	if !ok {
		return fmt.Errorf("unknown proposal %d", proposalID)
	}
	p.state = state
	return nil
}

// FailNext makes the next State or CastVote call fail with err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) State(_ context.Context, proposalID uint64) (ProposalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	p, ok := m.proposals[proposalID]
	if !ok {
		return 0, fmt.Errorf("%w: state: invalid proposal id %d", ErrGovernanceCallFailed, proposalID)
	}
	return p.state, nil
}

func (m *Memory) CastVote(_ context.Context, voter common.Address, proposalID uint64, support uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	p, ok := m.proposals[proposalID]
	if !ok {
		return fmt.Errorf("%w: castVote: invalid proposal id %d", ErrGovernanceCallFailed, proposalID)
	}
	if p.state != Active {
		return fmt.Errorf("%w: castVote: voting is closed", ErrGovernanceCallFailed)
	}
	if support > SupportFor {
		return fmt.Errorf("%w: castVote: invalid vote type %d", ErrGovernanceCallFailed, support)
	}
	if _, voted := p.votes[voter]; voted {
		return fmt.Errorf("%w: castVote: voter already voted", ErrGovernanceCallFailed)
	}
	p.votes[voter] = support
	return nil
}

// Ballots returns the votes recorded on proposalID.
func (m *Memory) Ballots(proposalID uint64) []Ballot {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[proposalID]
	if !ok {
		return nil
	}
	ballots := make([]Ballot, 0, len(p.votes))
	for voter, support := range p.votes {
		ballots = append(ballots, Ballot{Voter: voter, Support: support})
	}
	return ballots
}

func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGovernanceCallFailed, err)
	}
	return nil
}
