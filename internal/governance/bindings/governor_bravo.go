package bindings

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// GovernorBravoMetaData holds the slice of the GovernorBravoDelegate ABI used by the bridge.
var GovernorBravoMetaData = &bind.MetaData{
	ABI: `[
		{"type":"function","name":"state","stateMutability":"view",
		 "inputs":[{"name":"proposalId","type":"uint256","internalType":"uint256"}],
		 "outputs":[{"name":"","type":"uint8","internalType":"enum GovernorBravoDelegateStorageV1.ProposalState"}]},
		{"type":"function","name":"castVote","stateMutability":"nonpayable",
		 "inputs":[{"name":"proposalId","type":"uint256","internalType":"uint256"},{"name":"support","type":"uint8","internalType":"uint8"}],
		 "outputs":[]},
		{"type":"function","name":"castVoteWithReason","stateMutability":"nonpayable",
		 "inputs":[{"name":"proposalId","type":"uint256","internalType":"uint256"},{"name":"support","type":"uint8","internalType":"uint8"},{"name":"reason","type":"string","internalType":"string"}],
		 "outputs":[]},
		{"type":"function","name":"proposalCount","stateMutability":"view",
		 "inputs":[],
		 "outputs":[{"name":"","type":"uint256","internalType":"uint256"}]},
		{"type":"event","name":"VoteCast","anonymous":false,
		 "inputs":[{"name":"voter","type":"address","indexed":true,"internalType":"address"},{"name":"proposalId","type":"uint256","indexed":false,"internalType":"uint256"},{"name":"support","type":"uint8","indexed":false,"internalType":"uint8"},{"name":"votes","type":"uint256","indexed":false,"internalType":"uint256"},{"name":"reason","type":"string","indexed":false,"internalType":"string"}]}
	]`,
}

// GovernorBravo packs and unpacks calls against a Governor Bravo contract.
type GovernorBravo struct {
	abi *abi.ABI
}

func NewGovernorBravo() (*GovernorBravo, error) {
	parsed, err := GovernorBravoMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to parse GovernorBravo ABI: %w", err)
	}
	if parsed == nil {
		return nil, errors.New("GetABI returned nil")
	}
	return &GovernorBravo{abi: parsed}, nil
}

// ABI exposes the parsed ABI.
func (g *GovernorBravo) ABI() *abi.ABI {
	return g.abi
}

func (g *GovernorBravo) PackState(proposalID *big.Int) ([]byte, error) {
	return g.abi.Pack("state", proposalID)
}

func (g *GovernorBravo) UnpackState(output []byte) (uint8, error) {
	values, err := g.abi.Unpack("state", output)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack state: %w", err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unexpected state output length %d", len(values))
	}
	state, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected state output type %T", values[0])
	}
	return state, nil
}

func (g *GovernorBravo) PackCastVoteWithReason(proposalID *big.Int, support uint8, reason string) ([]byte, error) {
	return g.abi.Pack("castVoteWithReason", proposalID, support, reason)
}

func (g *GovernorBravo) PackProposalCount() ([]byte, error) {
	return g.abi.Pack("proposalCount")
}

func (g *GovernorBravo) UnpackProposalCount(output []byte) (*big.Int, error) {
	values, err := g.abi.Unpack("proposalCount", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack proposalCount: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected proposalCount output length %d", len(values))
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}
