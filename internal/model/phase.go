package model

import "fmt"

// Phase is the pool's position in its lifecycle. Illegal flag combinations
// (cancelled and executed, declared without execution) cannot be expressed.
//
//	open ──► executed ──► declared
//	  │
//	  ├──► cancelled
//	  └──► refunding
type Phase string

const (
	PhaseOpen      Phase = "open"
	PhaseExecuted  Phase = "executed"
	PhaseDeclared  Phase = "declared"
	PhaseCancelled Phase = "cancelled"
	// PhaseRefunding is entered by the first refund or emergency payout.
	// Deposits have started leaving escrow, so the batch can never run.
	PhaseRefunding Phase = "refunding"
)

var transitions = map[Phase][]Phase{
	PhaseOpen:      {PhaseExecuted, PhaseCancelled, PhaseRefunding},
	PhaseExecuted:  {PhaseDeclared},
	PhaseRefunding: {PhaseRefunding},
}

// CanTransition reports whether p → to is a legal lifecycle step.
func (p Phase) CanTransition(to Phase) bool {
	for _, next := range transitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// SwapsExecuted reports whether the batch conversion has committed.
func (p Phase) SwapsExecuted() bool {
	return p == PhaseExecuted || p == PhaseDeclared
}

// WinnerDeclared reports whether ranking has completed.
func (p Phase) WinnerDeclared() bool { return p == PhaseDeclared }

// Cancelled reports whether the creator cancelled the pool.
func (p Phase) Cancelled() bool { return p == PhaseCancelled }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseOpen, PhaseExecuted, PhaseDeclared, PhaseCancelled, PhaseRefunding:
		return true
	}
	return false
}

// ParsePhase converts a stored phase string back into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("model: unknown phase %q", s)
	}
	return p, nil
}
