package voting

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/voting-bridge/internal/auxdata"
)

type EventKind string

const (
	KindVoterCreated      EventKind = "voter_created"
	KindVoterTokenCreated EventKind = "voter_token_created"
	KindVoteAllocated     EventKind = "vote_allocated"
	KindVotesRedeemed     EventKind = "votes_redeemed"
	KindVoteCast          EventKind = "vote_cast"
	KindProxyReleased     EventKind = "proxy_released"
)

// Event is emitted by the factory after a state change has been committed.
type Event interface {
	Kind() EventKind
}

// EventSink receives factory events, e.g. an indexer journal or metrics.
type EventSink interface {
	HandleEvent(ctx context.Context, event Event) error
}

// VoterCreated is emitted once per proxy. AuxData is the short handle future
// calls use to reference the proxy.
type VoterCreated struct {
	AuxData    uint64
	Governor   common.Address
	ProposalID uint64
	Proxy      common.Address
	VoteChoice auxdata.VoteChoice
}

type VoterTokenCreated struct {
	Underlying common.Address
	Synthetic  common.Address
}

type VoteAllocated struct {
	Proxy   common.Address
	Account common.Address
	Amount  *uint256.Int
}

type VotesRedeemed struct {
	Proxy   common.Address
	Account common.Address
	Amount  *uint256.Int
}

type VoteCast struct {
	Governor   common.Address
	ProposalID uint64
	Proxy      common.Address
	VoteChoice auxdata.VoteChoice
}

type ProxyReleased struct {
	Proxy      common.Address
	ProposalID uint64
}

func (VoterCreated) Kind() EventKind      { return KindVoterCreated }
func (VoterTokenCreated) Kind() EventKind { return KindVoterTokenCreated }
func (VoteAllocated) Kind() EventKind     { return KindVoteAllocated }
func (VotesRedeemed) Kind() EventKind     { return KindVotesRedeemed }
func (VoteCast) Kind() EventKind          { return KindVoteCast }
func (ProxyReleased) Kind() EventKind     { return KindProxyReleased }
