package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetType is the class of an asset slot as reported by the settlement processor.
type AssetType uint8

const (
	AssetNotUsed AssetType = iota
	AssetETH
	AssetERC20
	AssetVirtual
)

func (t AssetType) String() string {
	switch t {
	case AssetNotUsed:
		return "not_used"
	case AssetETH:
		return "eth"
	case AssetERC20:
		return "erc20"
	case AssetVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("AssetType(%d)", uint8(t))
	}
}

// Asset is one input or output slot of a conversion.
type Asset struct {
	ID      uint64
	Address common.Address
	Type    AssetType
}

// ERC20Asset is a convenience constructor for token slots.
func ERC20Asset(id uint64, address common.Address) Asset {
	return Asset{ID: id, Address: address, Type: AssetERC20}
}

// Unused is the empty slot.
var Unused = Asset{}
