package commands

import (
	"context"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// saveEvents drains a proposal's domain events into the outbox within the
// current transaction, stamped with request metadata.
func saveEvents(ctx context.Context, repo outbox.Repository, proposal *domain.Proposal, userID uuid.UUID) error {
	events := proposal.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.StampEvents(ctx, events, userID)

	msgs := make([]*outbox.Message, 0, len(events))
	for _, event := range events {
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	proposal.ClearDomainEvents()
	return nil
}
