package signal

import (
	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/value"
)

// Kind classifies a signal.
type Kind uint8

const (
	KindDiag Kind = iota
	KindArithmeticFault
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindDiag:
		return "diag"
	case KindArithmeticFault:
		return "arithmetic_fault"
	case KindCustom:
		return "custom"
	}
	return "unknown"
}

// Diagnostic reasons.
const (
	ReasonRuleViolation = "RULE_VIOLATION"
	ReasonArithFault    = "ARITH_FAULT"
	ReasonUnitMismatch  = "UNIT_MISMATCH"

	SubReasonDiv0        = "DIV0"
	SubReasonDimMismatch = "DIM_MISMATCH"
	SubReasonOverflow    = "OVERFLOW"
)

// DefaultTarget is used for custom signals that name no target.
const DefaultTarget = "unknown"

// Signal is one diagnostic or program-emitted event. TickID and Seq are
// stamped by the patch engine; Seq restarts at zero on every application.
type Signal struct {
	Kind    Kind
	Name    string
	TickID  uint64
	Seq     uint64
	Targets []string

	Entity    ecs.EntityID
	HasEntity bool
	Key       string
	RuleID    string

	Reason    string
	SubReason string
	Origin    string
	Payload   value.Value
}

// ForEntity returns a copy of s attributed to id.
func (s Signal) ForEntity(id ecs.EntityID) Signal {
	s.Entity = id
	s.HasEntity = true
	return s
}
