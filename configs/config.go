package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/voting-bridge/internal/governance"
	"github.com/compose-network/voting-bridge/internal/logger"
)

type (
	GovernanceMode string

	Config struct {
		Log        Log        `mapstructure:"log"`
		Bridge     Bridge     `mapstructure:"bridge"`
		Governance Governance `mapstructure:"governance"`
		Journal    Journal    `mapstructure:"journal"`
		Metrics    Metrics    `mapstructure:"metrics"`
		Audit      Audit      `mapstructure:"audit"`
	}

	Log struct {
		Level string `mapstructure:"level"`
	}

	Bridge struct {
		Adapter   string `mapstructure:"adapter"`
		Processor string `mapstructure:"processor"`
		Factory   string `mapstructure:"factory"`
	}

	Governance struct {
		Mode           GovernanceMode `mapstructure:"mode"`
		RPCURL         string         `mapstructure:"rpc-url"`
		ChainID        int64          `mapstructure:"chain-id"`
		PrivateKey     string         `mapstructure:"private-key"`
		ReceiptTimeout time.Duration  `mapstructure:"receipt-timeout"`
		PollInterval   time.Duration  `mapstructure:"poll-interval"`
		DAOs           []DAO          `mapstructure:"daos"`
	}

	DAO struct {
		Token     string     `mapstructure:"token"`
		Governor  string     `mapstructure:"governor"`
		Name      string     `mapstructure:"name"`
		Symbol    string     `mapstructure:"symbol"`
		Decimals  uint8      `mapstructure:"decimals"`
		Proposals []Proposal `mapstructure:"proposals"`
	}

	// Proposal seeds the in-memory governor.
	Proposal struct {
		ID    uint64 `mapstructure:"id"`
		State string `mapstructure:"state"`
	}

	Journal struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	}

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	}

	Audit struct {
		SnapshotPath string `mapstructure:"snapshot-path"`
	}
)

const (
	GovernanceModeMemory GovernanceMode = "memory"
	GovernanceModeRPC    GovernanceMode = "rpc"
)

func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := c.Bridge.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Governance.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Bridge) Validate() error {
	var errs []error

	fields := []struct{ name, value string }{
		{"bridge.adapter", c.Adapter},
		{"bridge.processor", c.Processor},
		{"bridge.factory", c.Factory},
	}
	for _, f := range fields {
		if err := validateAddress(f.name, f.value); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *Governance) Validate() error {
	var errs []error

	switch c.Mode {
	case GovernanceModeMemory:
	case GovernanceModeRPC:
		if c.RPCURL == "" {
			errs = append(errs, errors.New("governance.rpc-url is required in rpc mode"))
		}
		if c.ChainID <= 0 {
			errs = append(errs, errors.New("governance.chain-id is required in rpc mode"))
		}
		if c.PrivateKey == "" {
			errs = append(errs, errors.New("governance.private-key is required in rpc mode"))
		}
		if c.ReceiptTimeout <= 0 {
			errs = append(errs, errors.New("governance.receipt-timeout must be positive"))
		}
		if c.PollInterval <= 0 {
			errs = append(errs, errors.New("governance.poll-interval must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("governance.mode must be either 'memory' or 'rpc', got %q", c.Mode))
	}

	if len(c.DAOs) == 0 {
		errs = append(errs, errors.New("governance.daos requires at least one entry"))
	}
	seen := make(map[common.Address]bool)
	for i, dao := range c.DAOs {
		prefix := fmt.Sprintf("governance.daos[%d]", i)
		if err := validateAddress(prefix+".token", dao.Token); err != nil {
			errs = append(errs, err)
		} else if token := common.HexToAddress(dao.Token); seen[token] {
			errs = append(errs, fmt.Errorf("%s.token %s is listed twice", prefix, dao.Token))
		} else {
			seen[token] = true
		}
		if err := validateAddress(prefix+".governor", dao.Governor); err != nil {
			errs = append(errs, err)
		}
		if dao.Symbol == "" {
			errs = append(errs, fmt.Errorf("%s.symbol is required", prefix))
		}
		for j, p := range dao.Proposals {
			if _, err := governance.ParseState(p.State); err != nil {
				errs = append(errs, fmt.Errorf("%s.proposals[%d].state: %w", prefix, j, err))
			}
		}
	}

	return errors.Join(errs...)
}

func validateAddress(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s is not a hex address: %q", name, value)
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}
