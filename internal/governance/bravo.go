package governance

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/compose-network/voting-bridge/internal/crypto"
	"github.com/compose-network/voting-bridge/internal/governance/bindings"
	"github.com/compose-network/voting-bridge/internal/logger"
)

const (
	defaultPollInterval   = time.Second
	defaultReceiptTimeout = 2 * time.Minute
	defaultGasTipCap      = 1_000_000_000  // 1 gwei
	defaultGasFeeCap      = 20_000_000_000 // 20 gwei, used when the head has no base fee
)

// Backend is the JSON-RPC surface used by Bravo. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Bravo talks to a deployed Governor Bravo contract. Votes are sent from the
// configured key; the voter proxy is named in the vote reason.
type Bravo struct {
	backend        Backend
	contract       *bindings.GovernorBravo
	address        common.Address
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	from           common.Address
	pollInterval   time.Duration
	receiptTimeout time.Duration
	logger         *slog.Logger
}

type BravoOption func(*Bravo)

func WithPollInterval(d time.Duration) BravoOption {
	return func(b *Bravo) { b.pollInterval = d }
}

func WithReceiptTimeout(d time.Duration) BravoOption {
	return func(b *Bravo) { b.receiptTimeout = d }
}

// NewBravo binds a governor at address. privateKeyHex signs castVote transactions.
func NewBravo(backend Backend, address common.Address, chainID *big.Int, privateKeyHex string, opts ...BravoOption) (*Bravo, error) {
	contract, err := bindings.NewGovernorBravo()
	if err != nil {
		return nil, err
	}

	key, from, err := crypto.ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	b := &Bravo{
		backend:        backend,
		contract:       contract,
		address:        address,
		chainID:        chainID,
		key:            key,
		from:           from,
		pollInterval:   defaultPollInterval,
		receiptTimeout: defaultReceiptTimeout,
		logger:         logger.Named("governor_bravo").With("governor", address.Hex()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Sender returns the account votes are sent from.
func (b *Bravo) Sender() common.Address {
	return b.from
}

func (b *Bravo) State(ctx context.Context, proposalID uint64) (ProposalState, error) {
	data, err := b.contract.PackState(new(big.Int).SetUint64(proposalID))
	if err != nil {
		return 0, fmt.Errorf("failed to pack state call: %w", err)
	}

	output, err := b.backend.CallContract(ctx, ethereum.CallMsg{From: b.from, To: &b.address, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: state(%d): %w", ErrGovernanceCallFailed, proposalID, err)
	}

	raw, err := b.contract.UnpackState(output)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGovernanceCallFailed, err)
	}

	state := ProposalState(raw)
	if !state.Valid() {
		return 0, fmt.Errorf("%w: unknown proposal state %d", ErrGovernanceCallFailed, raw)
	}
	return state, nil
}

func (b *Bravo) CastVote(ctx context.Context, voter common.Address, proposalID uint64, support uint8) error {
	reason := fmt.Sprintf("voter proxy %s", voter.Hex())
	data, err := b.contract.PackCastVoteWithReason(new(big.Int).SetUint64(proposalID), support, reason)
	if err != nil {
		return fmt.Errorf("failed to pack castVoteWithReason call: %w", err)
	}

	tx, err := b.buildTransaction(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGovernanceCallFailed, err)
	}

	if err := b.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("%w: failed to send castVote: %w", ErrGovernanceCallFailed, err)
	}

	b.logger.With("tx_hash", tx.Hash().Hex()).With("proposal_id", proposalID).With("support", support).
		Info("castVote submitted")

	receipt, err := b.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGovernanceCallFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: castVote reverted in tx %s", ErrGovernanceCallFailed, tx.Hash().Hex())
	}

	b.logger.With("tx_hash", tx.Hash().Hex()).With("block_number", receipt.BlockNumber).Info("castVote confirmed")
	return nil
}

// ProposalCount returns the number of proposals created on the governor.
func (b *Bravo) ProposalCount(ctx context.Context) (uint64, error) {
	data, err := b.contract.PackProposalCount()
	if err != nil {
		return 0, fmt.Errorf("failed to pack proposalCount call: %w", err)
	}
	output, err := b.backend.CallContract(ctx, ethereum.CallMsg{From: b.from, To: &b.address, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: proposalCount: %w", ErrGovernanceCallFailed, err)
	}
	count, err := b.contract.UnpackProposalCount(output)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGovernanceCallFailed, err)
	}
	return count.Uint64(), nil
}

func (b *Bravo) buildTransaction(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := b.backend.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	gasTipCap, err := b.backend.SuggestGasTipCap(ctx)
	if err != nil {
		b.logger.With("err", err.Error()).Warn("failed to suggest gas tip cap, using default")
		gasTipCap = big.NewInt(defaultGasTipCap)
	}

	gasFeeCap := big.NewInt(defaultGasFeeCap)
	head, err := b.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if head.BaseFee != nil {
		gasFeeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), gasTipCap)
	}

	gas, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{From: b.from, To: &b.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gas,
		To:        &b.address,
		Value:     big.NewInt(0),
		Data:      data,
	})
	return types.SignTx(tx, types.NewLondonSigner(b.chainID), b.key)
}

func (b *Bravo) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, b.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
