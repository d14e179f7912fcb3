package voting

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrAlreadyInitialized        = fmt.Errorf("voter proxy already initialized: %w", errdefs.ErrAlreadyExists)
	ErrNotInitialized            = fmt.Errorf("voter proxy not initialized: %w", errdefs.ErrFailedPrecondition)
	ErrProposalExpired           = fmt.Errorf("proposal expired: %w", errdefs.ErrFailedPrecondition)
	ErrInsufficientLockedBalance = fmt.Errorf("insufficient locked balance: %w", errdefs.ErrFailedPrecondition)
	ErrAmountOverflow            = fmt.Errorf("amount overflows uint256: %w", errdefs.ErrOutOfRange)
	ErrUnauthorized              = fmt.Errorf("caller is not the factory: %w", errdefs.ErrPermissionDenied)
	ErrProxyNotFound             = fmt.Errorf("voter proxy not found: %w", errdefs.ErrNotFound)
	ErrUnsupportedToken          = fmt.Errorf("token has no registered governor: %w", errdefs.ErrNotFound)
	ErrConflictingVoteChoice     = fmt.Errorf("vote choice conflicts with existing proxy: %w", errdefs.ErrConflict)
	ErrGovernorMismatch          = fmt.Errorf("governor does not match existing proxy: %w", errdefs.ErrConflict)
	ErrTokenMismatch             = fmt.Errorf("proxy belongs to another token: %w", errdefs.ErrInvalidArgument)
	ErrInvalidAmount             = fmt.Errorf("amount must be positive: %w", errdefs.ErrInvalidArgument)
	ErrInvalidAddress            = fmt.Errorf("address must be non-zero: %w", errdefs.ErrInvalidArgument)
	ErrInvalidVoteChoice         = fmt.Errorf("vote choice must be for or against: %w", errdefs.ErrInvalidArgument)
)
