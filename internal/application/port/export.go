package port

import (
	"io"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// CaseExporter writes a case listing in a reviewer-facing format
type CaseExporter interface {
	Export(w io.Writer, cases []*entity.ReimbursementCase) error
	ContentType() string
}
