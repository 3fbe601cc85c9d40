// Package decision turns the outcome of one processing pass into a case disposition.
package decision

import (
	"fmt"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/completeness"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// IssueNotRelevant is the only issue recorded for ignored emails
const IssueNotRelevant = "not AI-tool-related"

// Input is everything a pass learned about a case
type Input struct {
	// Relevant is false when nothing in the email points at an AI tool expense
	Relevant bool
	// IntakeIssues are problems found before reconciliation, such as an unusable claim extraction
	IntakeIssues   []string
	Reconciliation entity.ReconciliationReport
	Completeness   entity.CompletenessReport
}

// Outcome is the disposition written back to the case
type Outcome struct {
	Status      entity.CaseStatus
	MaterialsOK bool
	Issues      []string
	// Notify asks for one clarification message to the claimant
	Notify     bool
	LastAction string
}

// Decide is a pure function of its input: identical inputs yield identical outcomes.
// Issue order is intake, then completeness, then reconciliation.
func Decide(in Input) Outcome {
	if !in.Relevant {
		return Outcome{
			Status:     entity.CaseStatusIgnored,
			Issues:     []string{IssueNotRelevant},
			LastAction: "ignored: not an AI tool expense",
		}
	}

	issues := make([]string, 0, len(in.IntakeIssues))
	issues = append(issues, in.IntakeIssues...)
	issues = append(issues, completeness.Issues(in.Completeness)...)
	issues = append(issues, in.Reconciliation.Issues()...)

	if len(in.IntakeIssues) == 0 && in.Reconciliation.OverallMatch && in.Completeness.Complete {
		return Outcome{
			Status:      entity.CaseStatusReady,
			MaterialsOK: true,
			Issues:      issues,
			LastAction:  "ready: claim matches receipts",
		}
	}

	return Outcome{
		Status:     entity.CaseStatusNeedInfo,
		Issues:     issues,
		Notify:     true,
		LastAction: fmt.Sprintf("need info: %d issue(s) found", len(issues)),
	}
}
