package workflow

import "github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"

// State is a case lifecycle state
type State string

const (
	StateNew       State = State(entity.CaseStatusNew)
	StateReady     State = State(entity.CaseStatusReady)
	StateNeedInfo  State = State(entity.CaseStatusNeedInfo)
	StateIgnored   State = State(entity.CaseStatusIgnored)
	StateProcessed State = State(entity.CaseStatusProcessed)
)

// IsTerminal returns true if no transition leaves the state
func (s State) IsTerminal() bool {
	return s == StateProcessed
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state maps to a case status
func (s State) IsValid() bool {
	return entity.CaseStatus(s).IsValid()
}

// Status converts the state back to a case status
func (s State) Status() entity.CaseStatus {
	return entity.CaseStatus(s)
}
