package entity

// Verdict is the outcome of comparing one claimed item with at most one receipt item
type Verdict string

const (
	VerdictMatched           Verdict = "MATCHED"
	VerdictAmountMismatch    Verdict = "AMOUNT_MISMATCH"
	VerdictCurrencyMismatch  Verdict = "CURRENCY_MISMATCH"
	VerdictToolMismatch      Verdict = "TOOL_MISMATCH"
	VerdictDateImplausible   Verdict = "DATE_IMPLAUSIBLE"
	VerdictNoReceiptFound    Verdict = "NO_RECEIPT_FOUND"
	VerdictUnexpectedReceipt Verdict = "UNEXPECTED_RECEIPT"
)

// String returns the string representation of the verdict
func (v Verdict) String() string {
	return string(v)
}

// Blocking reports whether the verdict prevents an overall match.
// Surplus receipts are tolerated, everything else that is not MATCHED blocks.
func (v Verdict) Blocking() bool {
	return v != VerdictMatched && v != VerdictUnexpectedReceipt
}

// MatchResult pairs a claimed item with the receipt item judged to support it.
// Claimed is nil only for UNEXPECTED_RECEIPT, Observed is nil only for NO_RECEIPT_FOUND.
type MatchResult struct {
	Claimed  *ExpenseLineItem `json:"claimed,omitempty"`
	Observed *ExpenseLineItem `json:"observed,omitempty"`
	Verdict  Verdict          `json:"verdict"`
	Issues   []string         `json:"issues,omitempty"`
}

// ReconciliationReport aggregates the match results of one case
type ReconciliationReport struct {
	OverallMatch bool          `json:"overall_match"`
	Matches      []MatchResult `json:"matches"`
	Summary      string        `json:"summary"`
	// AdjudicationFailed is set when the pairing could not be obtained
	AdjudicationFailed bool `json:"adjudication_failed,omitempty"`
	// Failure carries the adjudication failure message when AdjudicationFailed is set
	Failure string `json:"failure,omitempty"`
}

// Issues flattens the report into an ordered issue list
func (r ReconciliationReport) Issues() []string {
	if r.AdjudicationFailed {
		return []string{r.Failure}
	}
	var issues []string
	for _, m := range r.Matches {
		issues = append(issues, m.Issues...)
	}
	return issues
}

// Count returns how many results carry the given verdict
func (r ReconciliationReport) Count(v Verdict) int {
	n := 0
	for _, m := range r.Matches {
		if m.Verdict == v {
			n++
		}
	}
	return n
}
