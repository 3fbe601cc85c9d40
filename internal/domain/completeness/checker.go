// Package completeness decides whether the attached files cover every claimed tool.
package completeness

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/reconcile"
)

// Check requires at least one supporting file per distinct claimed tool.
//
// Files are attributed to tools in two steps. A file whose name or OCR result names a
// claimed tool supports that tool. Remaining files are handed out to the still
// uncovered tools in claim order. Archives do not count, their extracted members do.
// OCR failures are reported as issues and do not affect coverage.
func Check(claimed []entity.ExpenseLineItem, attachments []entity.AttachmentMeta) entity.CompletenessReport {
	tools := distinctTools(claimed)

	var files []entity.AttachmentMeta
	var issues []string
	for _, a := range attachments {
		if a.Container {
			continue
		}
		files = append(files, a)
		if a.OCRStatus == entity.OCRStatusFailed {
			reason := a.OCRError
			if reason == "" {
				reason = "unreadable"
			}
			issues = append(issues, fmt.Sprintf("receipt %s could not be read automatically: %s", a.FileName, reason))
		}
	}

	covered := make(map[string]bool, len(tools))
	spare := 0
	for _, f := range files {
		key := hintedTool(f, tools, covered)
		if key == "" {
			spare++
			continue
		}
		covered[key] = true
	}

	report := entity.CompletenessReport{Complete: true, Issues: issues}
	for _, t := range tools {
		if covered[t.key] {
			continue
		}
		if spare > 0 {
			spare--
			continue
		}
		report.Complete = false
		report.Missing = append(report.Missing, entity.MissingMaterial{
			ToolName: t.name,
			Reason:   entity.ReasonNoSupportingFile,
		})
	}

	return report
}

// Issues flattens a report: one line per missing tool, then the recorded issues
func Issues(r entity.CompletenessReport) []string {
	out := make([]string, 0, len(r.Missing)+len(r.Issues))
	for _, m := range r.Missing {
		out = append(out, fmt.Sprintf("missing receipt for %s: %s", m.ToolName, m.Reason))
	}
	return append(out, r.Issues...)
}

type tool struct {
	key   string
	name  string
	alias string
}

// distinctTools keys claimed tools by their spelled-out name. Aliases only
// steer which file supports which tool, so two products from one vendor
// still need a file each.
func distinctTools(claimed []entity.ExpenseLineItem) []tool {
	seen := make(map[string]bool)
	var out []tool
	for _, c := range claimed {
		name := strings.TrimSpace(c.ToolName)
		key := normalize(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tool{key: key, name: name, alias: reconcile.CanonicalTool(name)})
	}
	return out
}

// hintedTool returns the key of the first uncovered claimed tool the file points at.
// A file already pointing at a covered tool is spare evidence for the rest.
func hintedTool(f entity.AttachmentMeta, tools []tool, covered map[string]bool) string {
	hints := []string{f.ToolHint, strings.TrimSuffix(filepath.Base(f.FileName), filepath.Ext(f.FileName))}
	for _, h := range hints {
		if h == "" {
			continue
		}
		for _, t := range tools {
			if covered[t.key] {
				continue
			}
			if reconcile.SameTool(h, t.name) || strings.Contains(normalize(h), t.alias) {
				return t.key
			}
		}
	}
	return ""
}

func normalize(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '_' || r == '.' {
			return -1
		}
		return r
	}, s))
}
