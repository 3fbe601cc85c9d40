package dispatcher

import (
	"context"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo names a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
