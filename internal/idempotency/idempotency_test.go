package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/store/storetest"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

// memEvents mimics the conditional insert of the SQL store.
type memEvents struct {
	mu     sync.Mutex
	rows   map[string]*model.WebhookEvent
	failOn string
}

func newMemEvents() *memEvents {
	return &memEvents{rows: map[string]*model.WebhookEvent{}}
}

func key(eventID, provider string) string { return provider + "/" + eventID }

func (m *memEvents) fail(op string) error {
	if m.failOn == op || m.failOn == "*" {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func (m *memEvents) Reserve(_ *gorm.DB, e *model.WebhookEvent) (bool, error) {
	if err := m.fail("reserve"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(e.EventID, e.Provider)
	if _, ok := m.rows[k]; ok {
		return false, nil
	}
	cp := *e
	m.rows[k] = &cp
	return true, nil
}

func (m *memEvents) Get(_ *gorm.DB, eventID, provider string) (*model.WebhookEvent, error) {
	if err := m.fail("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[key(eventID, provider)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) MarkProcessed(_ *gorm.DB, eventID, provider string, at time.Time) (bool, error) {
	if err := m.fail("mark"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[key(eventID, provider)]
	if !ok || e.Processed {
		return false, nil
	}
	e.Processed = true
	e.ProcessedAt = &at
	return true, nil
}

func (m *memEvents) DeleteExpired(_ *gorm.DB, now time.Time) (int64, error) {
	if err := m.fail("sweep"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.rows {
		if e.ExpiresAt.Before(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func newService(t *testing.T, events *memEvents, opts Options) IStore {
	db, _ := storetest.NewMockDB(t)
	return New(db, events, logger.New("test"), opts)
}

func TestReserve_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMemEvents(), Options{FailOpen: true})

	res, err := svc.Reserve(ctx, "evt_1", "stripe", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.False(t, res.AlreadyReserved)
	assert.False(t, res.IsDuplicate())

	// crashed before Complete: redelivery may run the pipeline again
	res, err = svc.Reserve(ctx, "evt_1", "stripe", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, res.AlreadyReserved)
	assert.False(t, res.IsDuplicate())

	require.NoError(t, svc.Complete(ctx, "evt_1", "stripe"))
	processed, err := svc.IsProcessed(ctx, "evt_1", "stripe")
	require.NoError(t, err)
	assert.True(t, processed)

	res, err = svc.Reserve(ctx, "evt_1", "stripe", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate())

	// same event id from another provider is a different event
	res, err = svc.Reserve(ctx, "evt_1", "generic", "payment.succeeded")
	require.NoError(t, err)
	assert.False(t, res.AlreadyReserved)
}

func TestReserve_ConcurrentDeliveriesCreateOneRecord(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMemEvents(), Options{FailOpen: true})

	const deliveries = 50
	var fresh int32
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Reserve(ctx, "evt_race", "stripe", "payment_intent.succeeded")
			assert.NoError(t, err)
			if !res.AlreadyReserved {
				atomic.AddInt32(&fresh, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh)
}

func TestReserve_FailOpen(t *testing.T) {
	events := newMemEvents()
	events.failOn = "reserve"
	svc := newService(t, events, Options{FailOpen: true})

	res, err := svc.Reserve(context.Background(), "evt_1", "stripe", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.IsDuplicate())
}

func TestReserve_FailClosed(t *testing.T) {
	events := newMemEvents()
	events.failOn = "reserve"
	svc := newService(t, events, Options{FailOpen: false})

	_, err := svc.Reserve(context.Background(), "evt_1", "stripe", "payment_intent.succeeded")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestIsProcessed_UnknownEvent(t *testing.T) {
	svc := newService(t, newMemEvents(), Options{})
	processed, err := svc.IsProcessed(context.Background(), "nope", "stripe")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestSweepExpired(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	events := newMemEvents()
	svc := newService(t, events, Options{TTL: 24 * time.Hour, Now: func() time.Time { return clock }})
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "old", "stripe", "t")
	require.NoError(t, err)
	clock = now.Add(23 * time.Hour)
	_, err = svc.Reserve(ctx, "new", "stripe", "t")
	require.NoError(t, err)

	clock = now.Add(25 * time.Hour)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = events.Get(nil, "new", "stripe")
	assert.NoError(t, err)
}
