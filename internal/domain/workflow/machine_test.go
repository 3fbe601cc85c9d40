package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateNew, false},
		{StateReady, false},
		{StateNeedInfo, false},
		{StateIgnored, false},
		{StateProcessed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"new", StateNew, true},
		{"processed", StateProcessed, true},
		{"unknown", State("APPROVED"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_PanicsOnInvalidState(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Configure() with an invalid state should panic")
		}
	}()
	NewBuilder().Configure(State("BOGUS"))
}

func TestBuilder_BuildIsolatesMachines(t *testing.T) {
	b := NewBuilder()
	b.Configure(StateNew).Permit(TriggerAccept, StateReady)
	m := b.Build(StateNew)

	b.Configure(StateNew).Permit(TriggerIgnore, StateIgnored)

	if m.CanFire(TriggerIgnore) {
		t.Error("machine built earlier must not see later configuration")
	}
	if !m.CanFire(TriggerAccept) {
		t.Error("machine lost its configured trigger")
	}
}

func TestMachine_FireUnknownTrigger(t *testing.T) {
	m := NewBuilder().Build(StateNew)

	err := m.Fire(context.Background(), TriggerAccept)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if m.State() != StateNew {
		t.Errorf("state changed to %s after a rejected trigger", m.State())
	}
}

func TestMachine_GuardOrder(t *testing.T) {
	b := NewBuilder()
	b.Configure(StateReady).
		PermitIf(TriggerConfirmReimbursed, StateProcessed, func(context.Context) bool { return false }).
		Permit(TriggerConfirmReimbursed, StateNeedInfo)
	m := b.Build(StateReady)

	if err := m.Fire(context.Background(), TriggerConfirmReimbursed); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if m.State() != StateNeedInfo {
		t.Errorf("State() = %s, want fallthrough to %s", m.State(), StateNeedInfo)
	}
}

func TestCaseMachine_PassTransitions(t *testing.T) {
	tests := []struct {
		from    entity.CaseStatus
		to      entity.CaseStatus
		wantErr error
	}{
		{entity.CaseStatusNew, entity.CaseStatusReady, nil},
		{entity.CaseStatusNew, entity.CaseStatusNeedInfo, nil},
		{entity.CaseStatusNew, entity.CaseStatusIgnored, nil},
		{entity.CaseStatusNeedInfo, entity.CaseStatusReady, nil},
		{entity.CaseStatusNeedInfo, entity.CaseStatusNeedInfo, nil},
		{entity.CaseStatusReady, entity.CaseStatusReady, nil},
		{entity.CaseStatusIgnored, entity.CaseStatusNeedInfo, nil},
		{entity.CaseStatusNew, entity.CaseStatusProcessed, ErrInvalidTransition},
		{entity.CaseStatusNeedInfo, entity.CaseStatusProcessed, ErrInvalidTransition},
		{entity.CaseStatusProcessed, entity.CaseStatusReady, ErrInvalidTransition},
		{entity.CaseStatusProcessed, entity.CaseStatusNeedInfo, ErrInvalidTransition},
		{entity.CaseStatusReady, entity.CaseStatusNew, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := Transition(context.Background(), tt.from, tt.to, CaseFacts{MaterialsOK: true})
			if tt.wantErr == nil && err != nil {
				t.Errorf("Transition() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Transition() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCaseMachine_ConfirmRequiresMaterials(t *testing.T) {
	m := NewCaseMachine(entity.CaseStatusReady, CaseFacts{MaterialsOK: false})

	err := m.Fire(context.Background(), TriggerConfirmReimbursed)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want ErrGuardFailed", err)
	}

	m = NewCaseMachine(entity.CaseStatusReady, CaseFacts{MaterialsOK: true})
	if err := m.Fire(context.Background(), TriggerConfirmReimbursed); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if m.State() != StateProcessed {
		t.Errorf("State() = %s, want %s", m.State(), StateProcessed)
	}
	if got := m.PermittedTriggers(); len(got) != 0 {
		t.Errorf("PermittedTriggers() from PROCESSED = %v, want none", got)
	}
}

func TestCaseMachine_PermittedTriggersSorted(t *testing.T) {
	got := NewCaseMachine(entity.CaseStatusReady, CaseFacts{}).PermittedTriggers()
	want := []Trigger{TriggerAccept, TriggerConfirmReimbursed, TriggerIgnore, TriggerRequestInfo}

	if len(got) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
