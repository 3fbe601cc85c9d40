package workflow

import "github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"

// Trigger is an event that moves a case between states
type Trigger string

const (
	// TriggerAccept is fired by a pass whose materials are complete and consistent
	TriggerAccept Trigger = "ACCEPT"
	// TriggerRequestInfo is fired by a pass that needs the claimant to act
	TriggerRequestInfo Trigger = "REQUEST_INFO"
	// TriggerIgnore is fired by a pass on an unrelated email
	TriggerIgnore Trigger = "IGNORE"
	// TriggerConfirmReimbursed is fired by an operator once the money was paid out
	TriggerConfirmReimbursed Trigger = "CONFIRM_REIMBURSED"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// TriggerFor returns the trigger a processing pass fires to reach the given status
func TriggerFor(status entity.CaseStatus) (Trigger, bool) {
	switch status {
	case entity.CaseStatusReady:
		return TriggerAccept, true
	case entity.CaseStatusNeedInfo:
		return TriggerRequestInfo, true
	case entity.CaseStatusIgnored:
		return TriggerIgnore, true
	case entity.CaseStatusProcessed:
		return TriggerConfirmReimbursed, true
	}
	return "", false
}
