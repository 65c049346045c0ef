package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDailyRefreshHandler_Handle(t *testing.T) {
	now := time.Date(2026, time.March, 2, 5, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("every owner with upcoming work gets a refresh", func(t *testing.T) {
		f := newGenerateFixture()
		handler := NewDailyRefreshHandler(f.handler, f.workItemRepo, logger)

		alice := uuid.New()
		bob := uuid.New()
		f.workItemRepo.On("ListOwnersWithUpcoming", mock.Anything, now.AddDate(0, 0, 14)).
			Return([]uuid.UUID{alice, bob}, nil)
		for _, id := range []uuid.UUID{alice, bob} {
			f.expectUserContext(id, 6)
			f.blockRepo.On("ListByOwnerInRange", mock.Anything, id, now, mock.Anything).Return([]*calendar.Block{}, nil)
			f.workItemRepo.On("ListUpcoming", mock.Anything, id, mock.Anything).Return([]*coursework.WorkItem{}, nil)
		}
		var saved []*domain.Proposal
		f.proposalRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Proposal")).
			Run(func(args mock.Arguments) { saved = append(saved, args.Get(1).(*domain.Proposal)) }).Return(nil)

		result, err := handler.Handle(context.Background(), DailyRefreshCommand{Now: now})

		require.NoError(t, err)
		assert.Equal(t, 2, result.UsersProcessed)
		assert.Zero(t, result.UsersFailed)
		require.Len(t, saved, 2)
		for _, p := range saved {
			assert.Equal(t, domain.TriggerDailyRefresh, p.Trigger())
		}
	})

	t.Run("one failing user does not stop the batch", func(t *testing.T) {
		f := newGenerateFixture()
		handler := NewDailyRefreshHandler(f.handler, f.workItemRepo, logger)

		broken := uuid.New()
		healthy := uuid.New()
		f.workItemRepo.On("ListOwnersWithUpcoming", mock.Anything, mock.Anything).
			Return([]uuid.UUID{broken, healthy}, nil)

		f.profileRepo.On("FindByUser", mock.Anything, broken).Return(nil, errors.New("db down"))

		f.expectUserContext(healthy, 6)
		f.blockRepo.On("ListByOwnerInRange", mock.Anything, healthy, now, mock.Anything).Return([]*calendar.Block{}, nil)
		f.workItemRepo.On("ListUpcoming", mock.Anything, healthy, mock.Anything).Return([]*coursework.WorkItem{}, nil)
		f.proposalRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Proposal")).Return(nil)

		result, err := handler.Handle(context.Background(), DailyRefreshCommand{Now: now})

		require.NoError(t, err)
		assert.Equal(t, 1, result.UsersProcessed)
		assert.Equal(t, 1, result.UsersFailed)
	})

	t.Run("a custom horizon bounds the owner scan", func(t *testing.T) {
		f := newGenerateFixture()
		handler := NewDailyRefreshHandler(f.handler, f.workItemRepo, logger)

		f.workItemRepo.On("ListOwnersWithUpcoming", mock.Anything, now.AddDate(0, 0, 3)).
			Return([]uuid.UUID{}, nil)

		result, err := handler.Handle(context.Background(), DailyRefreshCommand{HorizonDays: 3, Now: now})

		require.NoError(t, err)
		assert.Zero(t, result.UsersProcessed)
		f.workItemRepo.AssertExpectations(t)
	})

	t.Run("a cancelled context stops between users", func(t *testing.T) {
		f := newGenerateFixture()
		handler := NewDailyRefreshHandler(f.handler, f.workItemRepo, logger)

		f.workItemRepo.On("ListOwnersWithUpcoming", mock.Anything, mock.Anything).
			Return([]uuid.UUID{uuid.New()}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := handler.Handle(ctx, DailyRefreshCommand{Now: now})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, result.UsersProcessed)
	})
}
