package event

// Type identifies the type of domain event
type Type string

const (
	// TypeCaseDecided is emitted after a processing pass persisted its outcome
	TypeCaseDecided Type = "case.decided"
	// TypeCaseReimbursed is emitted when an operator confirmed the payout
	TypeCaseReimbursed Type = "case.reimbursed"
	// TypeBatchCompleted is emitted at the end of a batch pass
	TypeBatchCompleted Type = "batch.completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeCaseDecided, TypeCaseReimbursed, TypeBatchCompleted:
		return true
	default:
		return false
	}
}
