package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compose-network/voting-bridge/internal/erc20"
	"github.com/compose-network/voting-bridge/internal/logger"
	"github.com/compose-network/voting-bridge/internal/voting"
)

const tracerName = "github.com/compose-network/voting-bridge/internal/bridge"

// Factory is the part of voting.Factory the adapter drives.
type Factory interface {
	Pairings
	Address() common.Address
	AllocateVote(ctx context.Context, caller, token common.Address, raw uint64, amount *uint256.Int) (voting.Allocation, error)
	RedeemVotingTokens(ctx context.Context, caller, token common.Address, raw uint64, amount *uint256.Int) (voting.Redemption, error)
}

// Tokens resolves token contracts for allowance grants.
type Tokens interface {
	Lookup(address common.Address) (erc20.ERC20, bool)
}

// ConversionObserver is told the outcome of every Convert call.
type ConversionObserver interface {
	ObserveConversion(direction string, err error)
}

// Result is what the settlement processor receives back.
type Result struct {
	OutputValueA *uint256.Int
	OutputValueB *uint256.Int
	IsAsync      bool
}

// Adapter is the entry point of the settlement processor. It holds the tokens the
// processor deposits before each Convert and grants the processor an allowance on the
// output.
type Adapter struct {
	address   common.Address
	processor common.Address
	factory   Factory
	tokens    Tokens
	tracer    trace.Tracer
	observers []ConversionObserver
	logger    *slog.Logger
}

type Option func(*Adapter)

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Adapter) { a.tracer = tp.Tracer(tracerName) }
}

func WithObserver(o ConversionObserver) Option {
	return func(a *Adapter) { a.observers = append(a.observers, o) }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

func NewAdapter(address, processor common.Address, factory Factory, tokens Tokens, opts ...Option) (*Adapter, error) {
	if address == (common.Address{}) || processor == (common.Address{}) {
		return nil, fmt.Errorf("adapter and processor addresses: %w", voting.ErrInvalidAddress)
	}
	a := &Adapter{
		address:   address,
		processor: processor,
		factory:   factory,
		tokens:    tokens,
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
		logger:    logger.Named("bridge_adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Address() common.Address   { return a.address }
func (a *Adapter) Processor() common.Address { return a.processor }

// Convert swaps totalInputValue of inputA for the same amount of outputA. Depositing a
// governance token yields its synthetic vote token (Enter); depositing a synthetic token
// yields its underlying back (Exit).
func (a *Adapter) Convert(
	ctx context.Context,
	caller common.Address,
	inputA, inputB, outputA, outputB Asset,
	totalInputValue *uint256.Int,
	interactionNonce uint64,
	auxData uint64,
	rollupBeneficiary common.Address,
) (res Result, err error) {
	direction := Invalid
	ctx, span := a.tracer.Start(ctx, "bridge.Convert", trace.WithAttributes(
		attribute.String("input_a", inputA.Address.Hex()),
		attribute.String("output_a", outputA.Address.Hex()),
		attribute.String("interaction_nonce", strconv.FormatUint(interactionNonce, 10)),
		attribute.String("aux_data", strconv.FormatUint(auxData, 10)),
	))
	defer func() {
		span.SetAttributes(attribute.String("direction", direction.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		for _, o := range a.observers {
			o.ObserveConversion(direction.String(), err)
		}
	}()

	if caller != a.processor {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidCaller, caller.Hex())
	}
	if err := validateAssets(inputA, inputB, outputA, outputB); err != nil {
		return Result{}, err
	}
	if totalInputValue == nil || totalInputValue.IsZero() {
		return Result{}, ErrInvalidAmount
	}

	direction = Decide(a.factory, inputA.Address, outputA.Address)
	log := a.logger.With("interaction_nonce", interactionNonce).With("direction", direction.String()).
		With("aux_data", auxData).With("amount", totalInputValue.Dec())

	switch direction {
	case Enter:
		err = a.enter(ctx, inputA.Address, outputA.Address, auxData, totalInputValue)
	case Exit:
		err = a.exit(ctx, inputA.Address, outputA.Address, auxData, totalInputValue)
	default:
		err = fmt.Errorf("%w: %s -> %s", ErrInputAddressInvalid, inputA.Address.Hex(), outputA.Address.Hex())
	}
	if err != nil {
		log.With("err", err.Error()).Warn("conversion failed")
		return Result{}, err
	}

	log.With("beneficiary", rollupBeneficiary.Hex()).Info("conversion settled")
	return Result{
		OutputValueA: totalInputValue.Clone(),
		OutputValueB: new(uint256.Int),
		IsAsync:      false,
	}, nil
}

// Finalise exists for processor compatibility. Conversions are always synchronous.
func (a *Adapter) Finalise(
	_ context.Context,
	_ common.Address,
	_, _, _, _ Asset,
	_ uint64,
	_ uint64,
) (Result, error) {
	return Result{}, ErrAsyncDisabled
}

func (a *Adapter) enter(ctx context.Context, underlying, synthetic common.Address, auxData uint64, amount *uint256.Int) error {
	input, err := a.token(underlying)
	if err != nil {
		return err
	}

	previous := input.Allowance(a.address, a.factory.Address())
	if err := input.Approve(a.address, a.factory.Address(), amount); err != nil {
		return fmt.Errorf("failed to approve factory: %w", err)
	}
	if _, err := a.factory.AllocateVote(ctx, a.address, underlying, auxData, amount); err != nil {
		if restoreErr := input.Approve(a.address, a.factory.Address(), previous); restoreErr != nil {
			a.logger.With("err", restoreErr.Error()).Error("failed to restore factory allowance")
		}
		return err
	}
	return a.approveProcessor(synthetic, amount)
}

func (a *Adapter) exit(ctx context.Context, synthetic, underlying common.Address, auxData uint64, amount *uint256.Int) error {
	if _, err := a.factory.RedeemVotingTokens(ctx, a.address, underlying, auxData, amount); err != nil {
		return err
	}
	return a.approveProcessor(underlying, amount)
}

func (a *Adapter) approveProcessor(output common.Address, amount *uint256.Int) error {
	token, err := a.token(output)
	if err != nil {
		return err
	}
	if err := token.Approve(a.address, a.processor, amount); err != nil {
		return fmt.Errorf("failed to approve processor: %w", err)
	}
	return nil
}

func (a *Adapter) token(address common.Address) (erc20.ERC20, error) {
	token, ok := a.tokens.Lookup(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not deployed", ErrInputAddressInvalid, address.Hex())
	}
	return token, nil
}

func validateAssets(inputA, inputB, outputA, outputB Asset) error {
	if inputA.Type != AssetERC20 {
		return fmt.Errorf("%w: got %s", ErrInvalidInputA, inputA.Type)
	}
	if inputB.Type != AssetNotUsed {
		return ErrInputAssetBNotEmpty
	}
	if outputB.Type != AssetNotUsed {
		return ErrOutputAssetBNotEmpty
	}
	if outputA.Type != AssetERC20 {
		return fmt.Errorf("%w: got %s", ErrInvalidOutputA, outputA.Type)
	}
	if inputA.Address == (common.Address{}) || outputA.Address == (common.Address{}) {
		return ErrInputAddressInvalid
	}
	return nil
}
