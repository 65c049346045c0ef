package application

import (
	"context"

	"github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/felixgeelhaar/studyflow/pkg/observability"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// StampEvents attaches command-scoped metadata to every event that can
// carry it. The correlation ID is read from the request context when the
// CLI or worker put one there, so an event trail shares the ID that
// shows up in the command logs; otherwise a fresh one is minted.
func StampEvents(ctx context.Context, events []domain.DomainEvent, userID uuid.UUID) {
	correlationID := uuid.New()
	if raw := observability.CorrelationIDFromContext(ctx); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			correlationID = parsed
		}
	}
	metadata := domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.New(),
		UserID:        userID,
	}
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
