package bridge

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrInvalidCaller        = fmt.Errorf("caller is not the settlement processor: %w", errdefs.ErrPermissionDenied)
	ErrInvalidInputA        = fmt.Errorf("input asset A must be an erc20 token: %w", errdefs.ErrInvalidArgument)
	ErrInputAssetBNotEmpty  = fmt.Errorf("input asset B must be unused: %w", errdefs.ErrInvalidArgument)
	ErrOutputAssetBNotEmpty = fmt.Errorf("output asset B must be unused: %w", errdefs.ErrInvalidArgument)
	ErrInvalidOutputA       = fmt.Errorf("output asset A must be an erc20 token: %w", errdefs.ErrInvalidArgument)
	ErrInputAddressInvalid  = fmt.Errorf("input and output tokens are not a voting pair: %w", errdefs.ErrInvalidArgument)
	ErrInvalidAmount        = fmt.Errorf("total input value must be positive: %w", errdefs.ErrInvalidArgument)
	ErrAsyncDisabled        = fmt.Errorf("asynchronous settlement is disabled: %w", errdefs.ErrNotImplemented)
)
