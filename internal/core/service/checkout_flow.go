package service

import (
	"errors"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

var (
	ErrUnknownStep      = errors.New("unknown checkout step")
	ErrStepGateRejected = errors.New("checkout step requirements not met")
)

// Gate reports whether the user may move past the step it guards.
type Gate func() bool

// ItemCounter is the part of the cart the checkout flow depends on.
type ItemCounter interface {
	Count() int
}

type FlowOption func(*CheckoutFlow)

// WithGate adds a predicate for a step. It is combined with any gate the step
// already has, so both must pass.
func WithGate(step domain.Step, gate Gate) FlowOption {
	return func(f *CheckoutFlow) {
		prev, ok := f.gates[step]
		if !ok {
			f.gates[step] = gate
			return
		}
		f.gates[step] = func() bool { return prev() && gate() }
	}
}

// CheckoutFlow walks the user through cart, shipping, payment and confirm.
// Going back is always allowed; going forward requires every step passed over
// to satisfy its gate. Only the cart step has a gate by default: it needs at
// least one item.
type CheckoutFlow struct {
	current domain.Step
	gates   map[domain.Step]Gate
}

func NewCheckoutFlow(cart ItemCounter, opts ...FlowOption) *CheckoutFlow {
	f := &CheckoutFlow{
		current: domain.FirstStep,
		gates: map[domain.Step]Gate{
			domain.StepCart: func() bool { return cart.Count() > 0 },
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *CheckoutFlow) Current() domain.Step {
	return f.current
}

// GoToStep moves to target. It returns false, leaving the current step
// untouched, when a gate between here and target rejects the move.
func (f *CheckoutFlow) GoToStep(target domain.Step) (bool, error) {
	if !target.Valid() {
		return false, ErrUnknownStep
	}

	if _, blocked := f.BlockingStep(target); blocked {
		return false, nil
	}

	f.current = target
	return true, nil
}

// BlockingStep returns the first step in [current, target) whose gate fails.
func (f *CheckoutFlow) BlockingStep(target domain.Step) (domain.Step, bool) {
	for s := f.current; s < target; s++ {
		if !f.passes(s) {
			return s, true
		}
	}
	return 0, false
}

// CanProceed reports whether the current step's gate is satisfied.
func (f *CheckoutFlow) CanProceed() bool {
	return f.passes(f.current)
}

func (f *CheckoutFlow) Reset() {
	f.current = domain.FirstStep
}

func (f *CheckoutFlow) Status(s domain.Step) domain.StepStatus {
	switch {
	case s < f.current:
		return domain.StepCompleted
	case s == f.current:
		return domain.StepCurrent
	default:
		return domain.StepUpcoming
	}
}

// Steps renders every step with its status for a step indicator.
func (f *CheckoutFlow) Steps() []domain.StepView {
	steps := domain.AllSteps()
	views := make([]domain.StepView, 0, len(steps))
	for _, s := range steps {
		views = append(views, domain.StepView{
			Step:   s,
			Name:   s.String(),
			Status: f.Status(s),
		})
	}
	return views
}

func (f *CheckoutFlow) passes(s domain.Step) bool {
	gate, ok := f.gates[s]
	if !ok {
		return true
	}
	return gate()
}
