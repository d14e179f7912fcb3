package auxdata

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Bit layout of the 64-bit aux data field passed alongside a bridge call:
//
//	bit 0      isNew flag (1: value is a proposal id, 0: value is a proxy handle)
//	bit 1      vote choice (0: against, 1: for)
//	bits 2..63 proposal id or proxy handle
const (
	isNewBit   = 0
	choiceBit  = 1
	valueShift = 2

	// MaxValue is the largest proposal id or proxy handle that fits the field.
	MaxValue uint64 = 1<<62 - 1
)

var ErrValueOutOfRange = fmt.Errorf("aux data value exceeds 62 bits: %w", errdefs.ErrOutOfRange)

// VoteChoice is the side a voter proxy votes for. Abstain is not representable.
type VoteChoice uint8

const (
	Against VoteChoice = 0
	For     VoteChoice = 1
)

func (c VoteChoice) String() string {
	switch c {
	case Against:
		return "against"
	case For:
		return "for"
	default:
		return fmt.Sprintf("VoteChoice(%d)", uint8(c))
	}
}

// AuxData is the decoded form of the aux data field.
type AuxData struct {
	IsNew  bool
	Choice VoteChoice
	Value  uint64
}

// NewVote references a proposal that may not have a proxy yet.
func NewVote(proposalID uint64, choice VoteChoice) AuxData {
	return AuxData{IsNew: true, Choice: choice, Value: proposalID}
}

// Existing references an already created proxy by its registry handle.
func Existing(handle uint64, choice VoteChoice) AuxData {
	return AuxData{IsNew: false, Choice: choice, Value: handle}
}

// Decode unpacks a raw field. Every uint64 decodes.
func Decode(raw uint64) AuxData {
	return AuxData{
		IsNew:  raw>>isNewBit&1 == 1,
		Choice: VoteChoice(raw >> choiceBit & 1),
		Value:  raw >> valueShift,
	}
}

// Encode packs the field. It fails when Value does not fit in 62 bits.
func (a AuxData) Encode() (uint64, error) {
	if a.Value > MaxValue {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, a.Value)
	}
	raw := a.Value << valueShift
	if a.IsNew {
		raw |= 1 << isNewBit
	}
	if a.Choice == For {
		raw |= 1 << choiceBit
	}
	return raw, nil
}

// MustEncode is Encode for values known to be in range.
func (a AuxData) MustEncode() uint64 {
	raw, err := a.Encode()
	if err != nil {
		panic(err)
	}
	return raw
}

// ProposalID returns the proposal id when the field references a new vote.
func (a AuxData) ProposalID() (uint64, bool) {
	if !a.IsNew {
		return 0, false
	}
	return a.Value, true
}

// Handle returns the proxy handle when the field references an existing proxy.
func (a AuxData) Handle() (uint64, bool) {
	if a.IsNew {
		return 0, false
	}
	return a.Value, true
}
