package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository/memory"
)

func TestOutboxCleanupWorker_KeepsUndelivered(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	delivered := seedEvent(t, store, model.EventPaymentApproved)
	seedEvent(t, store, model.EventCheckoutCreated)
	require.NoError(t, store.Repos().Outbox.MarkProcessed(ctx, delivered.ID))

	w := NewOutboxCleanupWorker(store.Repos().Outbox, time.Hour, time.Minute)
	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := store.Repos().Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.EventCheckoutCreated, pending[0].EventType)
}
