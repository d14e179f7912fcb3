package governance

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/ethereum/go-ethereum/common"
)

// ErrGovernanceCallFailed wraps every failure of the underlying governance contract.
// It is never retried at this layer.
var ErrGovernanceCallFailed = fmt.Errorf("governance call failed: %w", errdefs.ErrUnavailable)

// ProposalState mirrors the Governor Bravo ProposalState enum, in contract order.
type ProposalState uint8

const (
	Pending ProposalState = iota
	Active
	Canceled
	Defeated
	Succeeded
	Queued
	Expired
	Executed
)

var stateNames = [...]string{"pending", "active", "canceled", "defeated", "succeeded", "queued", "expired", "executed"}

func (s ProposalState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ProposalState(%d)", uint8(s))
}

// ParseState maps a lower-case state name to its enum value.
func ParseState(name string) (ProposalState, error) {
	for i, n := range stateNames {
		if n == name {
			return ProposalState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown proposal state %q", name)
}

// Valid reports whether s is a known enum value.
func (s ProposalState) Valid() bool {
	return s <= Executed
}

// VotingClosed reports whether votes can no longer be cast or allocated.
// Queued is closed: a queued proposal already succeeded and only awaits execution.
func (s ProposalState) VotingClosed() bool {
	return s != Pending && s != Active
}

// Support values accepted by castVote.
const (
	SupportAgainst uint8 = 0
	SupportFor     uint8 = 1
)

// Governor is the subset of a Governor Bravo deployment the bridge talks to.
type Governor interface {
	// State returns the current state of proposalID.
	State(ctx context.Context, proposalID uint64) (ProposalState, error)
	// CastVote records support on proposalID on behalf of voter.
	CastVote(ctx context.Context, voter common.Address, proposalID uint64, support uint8) error
}
