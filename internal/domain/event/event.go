package event

import (
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/google/uuid"
)

// Event is a domain event. Payload holds one of the payload types below.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	CaseID        string    `json:"case_id,omitempty"`
	Payload       any       `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
}

// CaseDecided describes the outcome of one processing pass
type CaseDecided struct {
	Case           entity.ReimbursementCase `json:"case"`
	PreviousStatus entity.CaseStatus        `json:"previous_status"`
	Notified       bool                     `json:"notified"`
	NotifyError    string                   `json:"notify_error,omitempty"`
	// OracleFailures names the stages (extract, ocr, reconcile) whose model reply was unusable
	OracleFailures []string      `json:"oracle_failures,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// CaseReimbursed describes an operator payout confirmation
type CaseReimbursed struct {
	Case entity.ReimbursementCase `json:"case"`
}

// BatchCompleted summarises one batch pass
type BatchCompleted struct {
	Listed    int `json:"listed"`
	Skipped   int `json:"skipped"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// New creates an event with a fresh id, timestamped now.
// An empty correlation id starts a new chain.
func New(eventType Type, caseID string, payload any, correlationID string) *Event {
	id := uuid.NewString()
	if correlationID == "" {
		correlationID = id
	}
	return &Event{
		ID:            id,
		Type:          eventType,
		CaseID:        caseID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// Decided returns the CaseDecided payload, if that is what the event carries
func (e *Event) Decided() (CaseDecided, bool) {
	switch p := e.Payload.(type) {
	case CaseDecided:
		return p, true
	case *CaseDecided:
		if p != nil {
			return *p, true
		}
	}
	return CaseDecided{}, false
}

// Reimbursed returns the CaseReimbursed payload, if that is what the event carries
func (e *Event) Reimbursed() (CaseReimbursed, bool) {
	p, ok := e.Payload.(CaseReimbursed)
	return p, ok
}

// Batch returns the BatchCompleted payload, if that is what the event carries
func (e *Event) Batch() (BatchCompleted, bool) {
	p, ok := e.Payload.(BatchCompleted)
	return p, ok
}
