package entity

import (
	"path/filepath"
	"strings"
	"time"
)

// OCRStatus tracks the receipt reading state of an attachment
type OCRStatus string

const (
	OCRStatusPending OCRStatus = "PENDING"
	OCRStatusSuccess OCRStatus = "SUCCESS"
	OCRStatusFailed  OCRStatus = "FAILED"
)

// File type constants
const (
	FileTypeImage   = "image"
	FileTypePDF     = "pdf"
	FileTypeArchive = "archive"
	FileTypeOther   = "other"
)

// Attachment is one file associated with a case, unique per (case id, file name)
type Attachment struct {
	ID        int64            `json:"id"`
	CaseID    string           `json:"case_id"`
	FileName  string           `json:"file_name"`
	FilePath  string           `json:"file_path"`
	FileType  string           `json:"file_type"`
	FileSize  int64            `json:"file_size"`
	OCRResult *ExpenseLineItem `json:"ocr_result,omitempty"`
	OCRStatus OCRStatus        `json:"ocr_status"`
	OCRError  string           `json:"ocr_error,omitempty"`
	// ExtractedFrom names the archive this file was unpacked from
	ExtractedFrom string    `json:"extracted_from,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsContainer reports whether the file is an archive
func (a *Attachment) IsContainer() bool {
	return a.FileType == FileTypeArchive
}

// Meta returns the completeness view of the attachment
func (a *Attachment) Meta() AttachmentMeta {
	m := AttachmentMeta{
		FileName:  a.FileName,
		Container: a.IsContainer(),
		OCRStatus: a.OCRStatus,
		OCRError:  a.OCRError,
	}
	if a.OCRResult != nil {
		m.ToolHint = a.OCRResult.ToolName
	}
	return m
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// DetectFileType classifies a file name by extension
func DetectFileType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExtensions[ext]:
		return FileTypeImage
	case ext == ".pdf":
		return FileTypePDF
	case ext == ".zip":
		return FileTypeArchive
	default:
		return FileTypeOther
	}
}

// ImageMimeType maps an image extension to its MIME type
func ImageMimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
