package bridge

import "github.com/ethereum/go-ethereum/common"

// Direction is the outcome of pairing an input token with an output token.
type Direction uint8

const (
	Invalid Direction = iota
	Enter
	Exit
)

func (d Direction) String() string {
	switch d {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "invalid"
	}
}

// Pairings answers which synthetic token backs which underlying token.
type Pairings interface {
	SyntheticAddress(underlying common.Address) (common.Address, bool)
	UnderlyingFor(synthetic common.Address) (common.Address, bool)
}

// Decide infers the conversion direction. Underlying in, synthetic out is Enter;
// synthetic in, its underlying out is Exit. Anything else is Invalid.
func Decide(pairings Pairings, input, output common.Address) Direction {
	if synthetic, ok := pairings.SyntheticAddress(input); ok && synthetic == output {
		return Enter
	}
	if underlying, ok := pairings.UnderlyingFor(input); ok && underlying == output {
		return Exit
	}
	return Invalid
}
