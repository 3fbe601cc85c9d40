package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CaseStatus is the lifecycle status of a reimbursement case
type CaseStatus string

const (
	CaseStatusNew       CaseStatus = "NEW"
	CaseStatusReady     CaseStatus = "READY"
	CaseStatusNeedInfo  CaseStatus = "NEED_INFO"
	CaseStatusIgnored   CaseStatus = "IGNORED"
	CaseStatusProcessed CaseStatus = "PROCESSED"
)

// AllCaseStatuses lists every status in lifecycle order
var AllCaseStatuses = []CaseStatus{
	CaseStatusNew,
	CaseStatusReady,
	CaseStatusNeedInfo,
	CaseStatusIgnored,
	CaseStatusProcessed,
}

// IsValid checks if the status is one of the defined constants
func (s CaseStatus) IsValid() bool {
	for _, v := range AllCaseStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// String returns the string representation of the status
func (s CaseStatus) String() string {
	return string(s)
}

// Reprocessable reports whether a batch pass should pick the case up again
func (s CaseStatus) Reprocessable() bool {
	return s == CaseStatusNew || s == CaseStatusNeedInfo
}

// ReimbursementCase is the persisted record for one reimbursement email.
// ID is the mailbox-assigned message identifier.
type ReimbursementCase struct {
	ID             string            `json:"id"`
	Subject        string            `json:"subject"`
	Sender         string            `json:"sender"`
	MessageID      string            `json:"message_id,omitempty"`
	References     string            `json:"references,omitempty"`
	ClaimedDate    *time.Time        `json:"claimed_date,omitempty"`
	ApplicantName  string            `json:"applicant_name,omitempty"`
	Department     string            `json:"department,omitempty"`
	Tools          []ExpenseLineItem `json:"tools"`
	TotalAmount    *decimal.Decimal  `json:"total_amount,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	MaterialsOK    bool              `json:"materials_ok"`
	ReimbursedDone bool              `json:"reimbursed_done"`
	Status         CaseStatus        `json:"status"`
	Issues         []string          `json:"issues"`
	LastAction     string            `json:"last_action,omitempty"`
	Body           string            `json:"body,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CaseFilter narrows case listings
type CaseFilter struct {
	Statuses []CaseStatus
	Limit    int
	Offset   int
}
