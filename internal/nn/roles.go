package nn

import (
	"fmt"

	"github.com/goffincedric/SimpleAI/internal/model"
)

// RoleActivations names the activation used for each node role.
type RoleActivations struct {
	Input  string `yaml:"input"`
	Hidden string `yaml:"hidden"`
	Output string `yaml:"output"`
}

// DefaultRoleActivations passes inputs and outputs through unchanged and
// rectifies hidden nodes with a leaky slope.
func DefaultRoleActivations() RoleActivations {
	return RoleActivations{Input: "identity", Hidden: "leaky_relu", Output: "identity"}
}

// ActivationSet is a resolved RoleActivations table.
type ActivationSet struct {
	input  ActivationFunc
	hidden ActivationFunc
	output ActivationFunc
}

// Resolve looks every role's activation up in the registry. Empty names fall
// back to the defaults.
func (r RoleActivations) Resolve() (ActivationSet, error) {
	defaults := DefaultRoleActivations()
	if r.Input == "" {
		r.Input = defaults.Input
	}
	if r.Hidden == "" {
		r.Hidden = defaults.Hidden
	}
	if r.Output == "" {
		r.Output = defaults.Output
	}

	var (
		set ActivationSet
		err error
	)
	if set.input, err = GetActivation(r.Input); err != nil {
		return ActivationSet{}, fmt.Errorf("input role: %w", err)
	}
	if set.hidden, err = GetActivation(r.Hidden); err != nil {
		return ActivationSet{}, fmt.Errorf("hidden role: %w", err)
	}
	if set.output, err = GetActivation(r.Output); err != nil {
		return ActivationSet{}, fmt.Errorf("output role: %w", err)
	}
	return set, nil
}

// DefaultActivationSet is the resolved default table.
func DefaultActivationSet() ActivationSet {
	return ActivationSet{input: Identity, hidden: LeakyReLU, output: Identity}
}

// IsZero reports whether the set was never resolved.
func (s ActivationSet) IsZero() bool {
	return s.input == nil && s.hidden == nil && s.output == nil
}

// ForRole returns the activation bound to role.
func (s ActivationSet) ForRole(role model.Role) ActivationFunc {
	switch role {
	case model.RoleInput:
		return s.input
	case model.RoleOutput:
		return s.output
	default:
		return s.hidden
	}
}

// ForRole returns the default activation for role.
func ForRole(role model.Role) ActivationFunc {
	return DefaultActivationSet().ForRole(role)
}
