package port

import "context"

// StoredFile is an attachment written to local storage
type StoredFile struct {
	FileName string
	Path     string
	FileType string
	Size     int64
	// ExtractedFrom names the archive the file was unpacked from
	ExtractedFrom string
}

// AttachmentStore keeps attachment files per case
type AttachmentStore interface {
	// Save writes one attachment. Archives are unpacked next to it and their
	// members are returned after the archive itself.
	Save(ctx context.Context, caseID, fileName string, content []byte) ([]StoredFile, error)

	// List returns every stored file of a case, or nothing when the case has none
	List(ctx context.Context, caseID string) ([]StoredFile, error)

	// Remove deletes every file of a case
	Remove(ctx context.Context, caseID string) error
}
