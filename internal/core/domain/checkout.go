package domain

// Step is the rank of a checkout step, 1 through 4.
type Step int

const (
	StepCart Step = iota + 1
	StepShipping
	StepPayment
	StepConfirm
)

const (
	FirstStep = StepCart
	LastStep  = StepConfirm
)

var stepNames = map[Step]string{
	StepCart:     "cart",
	StepShipping: "shipping",
	StepPayment:  "payment",
	StepConfirm:  "confirm",
}

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// AllSteps returns the checkout steps in order.
func AllSteps() []Step {
	return []Step{StepCart, StepShipping, StepPayment, StepConfirm}
}

// StepStatus is how a step indicator renders a step relative to the current one.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepCurrent   StepStatus = "current"
	StepUpcoming  StepStatus = "upcoming"
)

type StepView struct {
	Step   Step       `json:"step"`
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
}
