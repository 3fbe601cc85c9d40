package workflow

import (
	"context"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// CaseFacts are the case fields guards look at
type CaseFacts struct {
	MaterialsOK bool
}

// NewCaseMachine builds the reimbursement case lifecycle starting at the case's status.
//
//	NEW ──ACCEPT──────────▶ READY ──CONFIRM_REIMBURSED──▶ PROCESSED
//	 │  ──REQUEST_INFO───▶ NEED_INFO
//	 └──IGNORE───────────▶ IGNORED
//
// READY, NEED_INFO and IGNORED may be re-evaluated by a later pass.
// PROCESSED is only reached through operator confirmation on a READY case.
func NewCaseMachine(status entity.CaseStatus, facts CaseFacts) StateMachine {
	b := NewBuilder()

	for _, from := range []State{StateNew, StateReady, StateNeedInfo, StateIgnored} {
		b.Configure(from).
			Permit(TriggerAccept, StateReady).
			Permit(TriggerRequestInfo, StateNeedInfo).
			Permit(TriggerIgnore, StateIgnored)
	}

	b.Configure(StateReady).
		PermitIf(TriggerConfirmReimbursed, StateProcessed, func(context.Context) bool {
			return facts.MaterialsOK
		})

	b.Configure(StateProcessed)

	return b.Build(State(status))
}

// Transition validates moving a case from one status to another
func Transition(ctx context.Context, from, to entity.CaseStatus, facts CaseFacts) error {
	trigger, ok := TriggerFor(to)
	if !ok {
		return ErrInvalidTransition
	}
	return NewCaseMachine(from, facts).Fire(ctx, trigger)
}
