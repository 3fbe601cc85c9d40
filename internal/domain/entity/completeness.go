package entity

// ReasonNoSupportingFile is reported for a claimed tool without any attachment
const ReasonNoSupportingFile = "no supporting file"

// MissingMaterial names a claimed tool that has no supporting file
type MissingMaterial struct {
	ToolName string `json:"tool_name"`
	Reason   string `json:"reason"`
}

// CompletenessReport tells whether the attachments cover every claimed tool.
// It says nothing about whether the values match.
type CompletenessReport struct {
	Complete bool              `json:"complete"`
	Missing  []MissingMaterial `json:"missing"`
	Issues   []string          `json:"issues"`
}

// AttachmentMeta is the view of an attachment the completeness check needs
type AttachmentMeta struct {
	FileName string
	// Container marks archives whose extracted members are listed separately
	Container bool
	OCRStatus OCRStatus
	OCRError  string
	// ToolHint is the tool name read from the file, if OCR produced one
	ToolHint string
}
