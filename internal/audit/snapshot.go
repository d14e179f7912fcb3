package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"

	"github.com/compose-network/voting-bridge/internal/voting"
)

// ErrSupplyMismatch reports a synthetic token whose supply differs from the collateral
// locked in its proxies.
var ErrSupplyMismatch = errors.New("synthetic supply does not match locked collateral")

// Write stores a registry snapshot as indented JSON at path.
func Write(path string, snap voting.Snapshot) error {
	content, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	if err := os.WriteFile(path, append(content, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Read loads a snapshot written by Write.
func Read(path string) (voting.Snapshot, error) {
	var snap voting.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Reconcile checks that every synthetic token's supply equals the collateral locked
// across the proxies of its underlying token.
func Reconcile(snap voting.Snapshot) error {
	locked := make(map[string]*uint256.Int)
	for _, p := range snap.Proxies {
		amount, err := uint256.FromDecimal(p.Locked)
		if err != nil {
			return fmt.Errorf("proxy %s: bad locked amount %q: %w", p.Address, p.Locked, err)
		}
		total, ok := locked[p.Token]
		if !ok {
			total = new(uint256.Int)
			locked[p.Token] = total
		}
		total.Add(total, amount)
	}

	var errs []error
	for _, s := range snap.SyntheticTokens {
		supply, err := uint256.FromDecimal(s.TotalSupply)
		if err != nil {
			return fmt.Errorf("synthetic %s: bad supply %q: %w", s.Synthetic, s.TotalSupply, err)
		}
		total := locked[s.Underlying]
		if total == nil {
			total = new(uint256.Int)
		}
		if !supply.Eq(total) {
			errs = append(errs, fmt.Errorf("%w: %s supply %s, locked %s",
				ErrSupplyMismatch, s.Synthetic, supply.Dec(), total.Dec()))
		}
		delete(locked, s.Underlying)
	}
	for token, total := range locked {
		if !total.IsZero() {
			errs = append(errs, fmt.Errorf("%w: %s has %s locked and no synthetic token",
				ErrSupplyMismatch, token, total.Dec()))
		}
	}
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
