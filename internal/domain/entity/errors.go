package entity

import (
	"errors"
	"fmt"
)

// ErrCaseNotFound is returned when a case id has no record
var ErrCaseNotFound = errors.New("case not found")

// ExtractionError is returned when the claim extraction reply cannot be parsed
type ExtractionError struct {
	RawText string
	Reason  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("claim extraction reply unusable: %s", e.Reason)
}

// ReceiptReadError is returned when a receipt produced nothing usable
type ReceiptReadError struct {
	File   string
	Reason string
	Err    error
}

func (e *ReceiptReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read receipt %s: %s: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("read receipt %s: %s", e.File, e.Reason)
}

func (e *ReceiptReadError) Unwrap() error { return e.Err }

// UnsupportedFormatError is returned for files that are neither images nor PDFs
type UnsupportedFormatError struct {
	File string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported receipt format %q: %s", e.Ext, e.File)
}

// ReconciliationAdjudicationError is returned when the pairing reply is unusable
type ReconciliationAdjudicationError struct {
	RawText string
	Reason  string
}

func (e *ReconciliationAdjudicationError) Error() string {
	return fmt.Sprintf("reconciliation adjudication failed: %s", e.Reason)
}

// PersistenceError is fatal for the pass of one case
type PersistenceError struct {
	CaseID string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist case %s: %s: %v", e.CaseID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError is returned when a clarification message could not be sent
type NotificationError struct {
	CaseID    string
	Recipient string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s for case %s: %v", e.Recipient, e.CaseID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
