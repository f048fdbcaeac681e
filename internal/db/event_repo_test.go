package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bannerly/internal/types"
)

func TestMarkProcessedClaimsNewEvent(t *testing.T) {
	dbtx := new(mockDBTX)
	dbtx.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (provider, event_id) DO NOTHING")
	}), []any{"stripe", "evt_1"}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	repo := NewWebhookEventRepository(dbtx)
	fresh, err := repo.MarkProcessed(context.Background(), "stripe", "evt_1")

	require.NoError(t, err)
	assert.True(t, fresh)
	dbtx.AssertExpectations(t)
}

func TestMarkProcessedDetectsReplay(t *testing.T) {
	dbtx := new(mockDBTX)
	dbtx.On("Exec", mock.Anything, mock.Anything, []any{"paddle", "ntf_1"}).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	repo := NewWebhookEventRepository(dbtx)
	fresh, err := repo.MarkProcessed(context.Background(), "paddle", "ntf_1")

	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestMarkProcessedExecError(t *testing.T) {
	dbtx := new(mockDBTX)
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	repo := NewWebhookEventRepository(dbtx)
	_, err := repo.MarkProcessed(context.Background(), "stripe", "evt_1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
