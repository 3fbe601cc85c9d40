package port

import (
	"context"
	"fmt"
)

// TextOracle is a chat completion model answering free text.
// Nothing guarantees the reply is well-formed.
type TextOracle interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Image is an encoded image handed to the vision oracle
type Image struct {
	Data     []byte
	MimeType string
}

// VisionOracle is a multimodal model answering free text about one image
type VisionOracle interface {
	Describe(ctx context.Context, system, prompt string, image Image) (string, error)
}

// Page is one rendered page of a paginated document
type Page struct {
	Number int
	Image  Image
	// Err is set when this page could not be rendered
	Err error
}

// PagesTruncatedError marks the pages a renderer left out because the
// document is longer than its page limit
type PagesTruncatedError struct {
	Total    int
	Rendered int
}

func (e *PagesTruncatedError) Error() string {
	return fmt.Sprintf("only the first %d of %d pages were read", e.Rendered, e.Total)
}

// PageRenderer rasterises paginated documents such as PDFs.
// An error is returned only when the document cannot be opened at all.
// Pages cut off by a page limit are reported by one trailing Page whose Err
// is a *PagesTruncatedError.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string) ([]Page, error)
}
