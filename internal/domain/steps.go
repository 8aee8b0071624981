package domain

import (
	"fmt"

	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

// completionRules maps each data-collecting step to its completion predicate.
// Predicates are pure reads of the state. Review is derived from the others
// in IsComplete.
var completionRules = map[Step]func(s *CheckoutState) bool{
	StepGuestInfo: func(s *CheckoutState) bool {
		return s.GuestInformation.IsComplete()
	},
	StepShippingAddress: func(s *CheckoutState) bool {
		return s.ShippingAddress.IsComplete()
	},
	StepShippingMethod: func(s *CheckoutState) bool {
		return s.ShippingMethod != nil && s.ShippingMethod.ID.IsValid()
	},
	StepPayment: func(s *CheckoutState) bool {
		if !s.HasPayment() {
			return false
		}
		return s.BillingSameAsShipping || s.BillingAddress.IsComplete()
	},
}

type transition struct {
	prev    Step
	next    Step
	hasPrev bool
	hasNext bool
}

// StateMachine owns the ordered step sequence of one checkout.
// Guest info is left out of the sequence for signed-in buyers.
type StateMachine struct {
	sequence []Step
	table    map[Step]transition
}

// NewStateMachine builds the transition table for the buyer's auth status
func NewStateMachine(authenticated bool) *StateMachine {
	sequence := []Step{StepGuestInfo, StepShippingAddress, StepShippingMethod, StepPayment, StepReview}
	if authenticated {
		sequence = sequence[1:]
	}

	table := make(map[Step]transition, len(sequence))
	for i, step := range sequence {
		t := transition{}
		if i > 0 {
			t.prev, t.hasPrev = sequence[i-1], true
		}
		if i < len(sequence)-1 {
			t.next, t.hasNext = sequence[i+1], true
		}
		table[step] = t
	}

	return &StateMachine{sequence: sequence, table: table}
}

// Steps returns the ordered sequence
func (m *StateMachine) Steps() []Step {
	out := make([]Step, len(m.sequence))
	copy(out, m.sequence)
	return out
}

// First returns the first reachable step
func (m *StateMachine) First() Step {
	return m.sequence[0]
}

// Contains reports whether step belongs to this checkout's sequence
func (m *StateMachine) Contains(step Step) bool {
	_, ok := m.table[step]
	return ok
}

// IsComplete evaluates the completion predicate of step
func (m *StateMachine) IsComplete(step Step, s *CheckoutState) bool {
	if !m.Contains(step) || s == nil {
		return false
	}
	if step == StepReview {
		for _, earlier := range m.sequence {
			if earlier == StepReview {
				break
			}
			if rule, ok := completionRules[earlier]; !ok || !rule(s) {
				return false
			}
		}
		return true
	}
	rule, ok := completionRules[step]
	return ok && rule(s)
}

// Advance moves to the next step when the current one is complete.
// State is left untouched on failure.
func (m *StateMachine) Advance(s *CheckoutState) error {
	t, ok := m.table[s.CurrentStep]
	if !ok {
		return &apperrors.ErrInvalidStateTransition{From: s.CurrentStep, To: Step("")}
	}
	if !t.hasNext {
		return &apperrors.ErrInvalidStateTransition{From: s.CurrentStep, To: Step("submit")}
	}
	if !m.IsComplete(s.CurrentStep, s) {
		return apperrors.New(apperrors.KindStepIncomplete, fmt.Sprintf("%s is incomplete", s.CurrentStep))
	}
	s.CurrentStep = t.next
	return nil
}

// Retreat moves to the previous step. It never fails for a valid current
// step and is a no-op on the first one.
func (m *StateMachine) Retreat(s *CheckoutState) error {
	t, ok := m.table[s.CurrentStep]
	if !ok {
		return &apperrors.ErrInvalidStateTransition{From: s.CurrentStep, To: Step("")}
	}
	if t.hasPrev {
		s.CurrentStep = t.prev
	}
	return nil
}

// CanJumpTo checks the jump rule without mutating state
func (m *StateMachine) CanJumpTo(s *CheckoutState, step Step) error {
	if !m.Contains(step) {
		return &apperrors.ErrInvalidStateTransition{From: s.CurrentStep, To: step}
	}
	if step == s.CurrentStep || m.IsComplete(step, s) {
		return nil
	}
	if t, ok := m.table[s.CurrentStep]; ok && t.hasNext && t.next == step && m.IsComplete(s.CurrentStep, s) {
		return nil
	}
	return apperrors.New(apperrors.KindStepIncomplete, fmt.Sprintf("cannot jump from %s to %s", s.CurrentStep, step))
}

// JumpTo moves directly to step when CanJumpTo allows it
func (m *StateMachine) JumpTo(s *CheckoutState, step Step) error {
	if err := m.CanJumpTo(s, step); err != nil {
		return err
	}
	s.CurrentStep = step
	return nil
}

// Reachable lists the steps JumpTo would currently accept, in order
func (m *StateMachine) Reachable(s *CheckoutState) []Step {
	out := make([]Step, 0, len(m.sequence))
	for _, step := range m.sequence {
		if m.CanJumpTo(s, step) == nil {
			out = append(out, step)
		}
	}
	return out
}

// RewindTo moves the current step back to step if the checkout is past it.
// Used when data a later step depended on has been invalidated.
func (m *StateMachine) RewindTo(s *CheckoutState, step Step) bool {
	target, ok := m.indexOf(step)
	if !ok {
		return false
	}
	current, ok := m.indexOf(s.CurrentStep)
	if !ok || current <= target {
		return false
	}
	s.CurrentStep = step
	return true
}

func (m *StateMachine) indexOf(step Step) (int, bool) {
	for i, candidate := range m.sequence {
		if candidate == step {
			return i, true
		}
	}
	return 0, false
}
