// Package votingbridge assembles the voting bridge: token ledger, governors, voter
// factory and the settlement adapter, plus the optional journal and metrics.
package votingbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/compose-network/voting-bridge/configs"
	"github.com/compose-network/voting-bridge/internal/audit"
	"github.com/compose-network/voting-bridge/internal/bridge"
	"github.com/compose-network/voting-bridge/internal/erc20"
	"github.com/compose-network/voting-bridge/internal/governance"
	"github.com/compose-network/voting-bridge/internal/journal"
	"github.com/compose-network/voting-bridge/internal/logger"
	"github.com/compose-network/voting-bridge/internal/metrics"
	"github.com/compose-network/voting-bridge/internal/voting"
)

// Stack is a fully wired bridge.
type Stack struct {
	Config  configs.Config
	Tokens  *erc20.Book
	Factory *voting.Factory
	Adapter *bridge.Adapter
	// Journal and Metrics are nil when disabled.
	Journal *journal.Journal
	Metrics *metrics.Collector

	governors map[common.Address]governance.Governor
	closers   []func() error
	logger    *slog.Logger
}

type options struct {
	book           *erc20.Book
	governors      map[common.Address]governance.Governor
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	logger         *slog.Logger
}

type Option func(*options)

// WithTokenBook uses an existing ledger. Configured tokens missing from it are deployed.
func WithTokenBook(book *erc20.Book) Option {
	return func(o *options) { o.book = book }
}

// WithGovernor uses g for governorAddr instead of the configured governance mode.
func WithGovernor(governorAddr common.Address, g governance.Governor) Option {
	return func(o *options) { o.governors[governorAddr] = g }
}

// WithPrometheusRegisterer registers metrics on reg instead of the default registerer.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithLogger skips installing the configured default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func New(ctx context.Context, cfg configs.Config, opts ...Option) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		governors:  make(map[common.Address]governance.Governor),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		level, err := logger.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		logger.Initialize(level, os.Stdout)
		o.logger = logger.Named("stack")
	}
	if o.book == nil {
		o.book = erc20.NewBook()
	}

	s := &Stack{
		Config:    cfg,
		Tokens:    o.book,
		governors: o.governors,
		logger:    o.logger,
	}
	if err := s.build(ctx, o); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

func (s *Stack) build(ctx context.Context, o options) error {
	if err := s.deployTokens(); err != nil {
		return err
	}
	if err := s.connectGovernors(ctx); err != nil {
		return err
	}

	var factoryOpts []voting.FactoryOption
	var adapterOpts []bridge.Option
	if s.Config.Journal.Enabled {
		j, err := journal.Open(s.Config.Journal.Path)
		if err != nil {
			return err
		}
		s.Journal = j
		s.closers = append(s.closers, j.Close)
		factoryOpts = append(factoryOpts, voting.WithEventSink(j))
	}
	if s.Config.Metrics.Enabled {
		s.Metrics = metrics.New(o.registerer)
		factoryOpts = append(factoryOpts, voting.WithEventSink(s.Metrics))
		adapterOpts = append(adapterOpts, bridge.WithObserver(s.Metrics))
	}
	if o.tracerProvider != nil {
		adapterOpts = append(adapterOpts, bridge.WithTracerProvider(o.tracerProvider))
	}

	factory, err := voting.NewFactory(common.HexToAddress(s.Config.Bridge.Factory), s.Tokens, nil, factoryOpts...)
	if err != nil {
		return err
	}
	for _, dao := range s.Config.Governance.DAOs {
		governorAddr := common.HexToAddress(dao.Governor)
		if err := factory.RegisterDAO(common.HexToAddress(dao.Token), governorAddr, s.governors[governorAddr]); err != nil {
			return fmt.Errorf("failed to register %s: %w", dao.Symbol, err)
		}
	}
	s.Factory = factory

	adapter, err := bridge.NewAdapter(
		common.HexToAddress(s.Config.Bridge.Adapter),
		common.HexToAddress(s.Config.Bridge.Processor),
		factory, s.Tokens, adapterOpts...,
	)
	if err != nil {
		return err
	}
	s.Adapter = adapter

	s.logger.With("mode", string(s.Config.Governance.Mode)).With("daos", len(s.Config.Governance.DAOs)).
		With("journal", s.Journal != nil).With("metrics", s.Metrics != nil).Info("voting bridge ready")
	return nil
}

// deployTokens makes sure every configured governance token exists in the ledger. A
// token deployed here is minted by its governor.
func (s *Stack) deployTokens() error {
	for _, dao := range s.Config.Governance.DAOs {
		token := common.HexToAddress(dao.Token)
		if _, ok := s.Tokens.Lookup(token); ok {
			continue
		}
		meta := erc20.Metadata{Name: dao.Name, Symbol: dao.Symbol, Decimals: dao.Decimals}
		if _, err := s.Tokens.Deploy(token, common.HexToAddress(dao.Governor), meta); err != nil {
			return fmt.Errorf("failed to deploy %s: %w", dao.Symbol, err)
		}
	}
	return nil
}

func (s *Stack) connectGovernors(ctx context.Context) error {
	gov := s.Config.Governance

	var client *ethclient.Client
	for _, dao := range gov.DAOs {
		governorAddr := common.HexToAddress(dao.Governor)
		if _, ok := s.governors[governorAddr]; ok {
			continue
		}

		switch gov.Mode {
		case configs.GovernanceModeMemory:
			m := governance.NewMemory()
			seedProposals(m, dao.Proposals)
			s.governors[governorAddr] = m
		case configs.GovernanceModeRPC:
			if client == nil {
				c, err := ethclient.DialContext(ctx, gov.RPCURL)
				if err != nil {
					return fmt.Errorf("failed to dial %s: %w", gov.RPCURL, err)
				}
				client = c
				s.closers = append(s.closers, func() error { c.Close(); return nil })
			}
			bravo, err := governance.NewBravo(client, governorAddr, big.NewInt(gov.ChainID), gov.PrivateKey,
				governance.WithPollInterval(gov.PollInterval),
				governance.WithReceiptTimeout(gov.ReceiptTimeout),
			)
			if err != nil {
				return fmt.Errorf("failed to bind governor %s: %w", dao.Governor, err)
			}
			s.governors[governorAddr] = bravo
		}
	}
	return nil
}

func seedProposals(m *governance.Memory, proposals []configs.Proposal) {
	for _, p := range proposals {
		// validated by configs
		state, _ := governance.ParseState(p.State)
		m.Propose(p.ID, state)
	}
}

// Governor returns the governor wired for governorAddr.
func (s *Stack) Governor(governorAddr common.Address) (governance.Governor, bool) {
	g, ok := s.governors[governorAddr]
	return g, ok
}

// ExportSnapshot writes the factory registry to path, or to audit.snapshot-path when
// path is empty. A supply mismatch is logged and returned alongside a written file.
func (s *Stack) ExportSnapshot(path string) (voting.Snapshot, error) {
	if path == "" {
		path = s.Config.Audit.SnapshotPath
	}
	if path == "" {
		return voting.Snapshot{}, errors.New("audit.snapshot-path is not configured")
	}

	snap := s.Factory.Snapshot()
	if err := audit.Write(path, snap); err != nil {
		return snap, err
	}
	if err := audit.Reconcile(snap); err != nil {
		s.logger.With("err", err.Error()).With("path", path).Error("snapshot does not reconcile")
		return snap, err
	}
	s.logger.With("path", path).With("proxies", len(snap.Proxies)).Info("snapshot exported")
	return snap, nil
}

func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
