package graph

import (
	"fmt"
	"strings"

	"github.com/23skdu/longbow-bodkin/internal/fixed"
)

// Activation selects the pointwise function applied to a layer's
// pre-output values.
type Activation uint8

const (
	ActivationNone Activation = iota
	ActivationReLU
)

func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationReLU:
		return "relu"
	default:
		return fmt.Sprintf("activation(%d)", uint8(a))
	}
}

// ParseActivation maps the names used on the CLI and HTTP surfaces.
func ParseActivation(s string) (Activation, error) {
	switch strings.ToLower(s) {
	case "", "none", "identity":
		return ActivationNone, nil
	case "relu":
		return ActivationReLU, nil
	default:
		return ActivationNone, fmt.Errorf("activation %q: %w", s, ErrInvalidConfig)
	}
}

// Apply runs the activation on one signed value. ReLU clamps negative
// values to an exact zero; None passes values through unchanged.
func (a Activation) Apply(sgn uint8, mag uint64) (uint8, uint64) {
	if a == ActivationReLU && sgn == fixed.SignNegative {
		return fixed.SignPositive, 0
	}
	return sgn, mag
}

func (a Activation) valid() bool {
	return a == ActivationNone || a == ActivationReLU
}
