package webhookevent

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/store/storetest"
)

func TestStore_Reserve(t *testing.T) {
	now := time.Now()
	event := &model.WebhookEvent{
		EventID:   "evt_1",
		Provider:  "stripe",
		EventType: "payment_intent.succeeded",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	tests := []struct {
		name         string
		rowsAffected int64
		execErr      error
		wantCreated  bool
		wantErr      bool
	}{
		{name: "first sighting", rowsAffected: 1, wantCreated: true},
		{name: "already reserved", rowsAffected: 0, wantCreated: false},
		{name: "storage error", execErr: errors.New("connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := storetest.NewMockDB(t)
			exp := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_events")).
				WithArgs("evt_1", "stripe", "payment_intent.succeeded", sqlmock.AnyArg(), sqlmock.AnyArg())
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			}

			created, err := New().Reserve(db, event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCreated, created)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_MarkProcessed_IsMonotonic(t *testing.T) {
	db, mock := storetest.NewMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "webhook_events" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "webhook_events" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := New()
	flipped, err := s.MarkProcessed(db, "evt_1", "stripe", time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = s.MarkProcessed(db, "evt_1", "stripe", time.Now())
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get(t *testing.T) {
	db, mock := storetest.NewMockDB(t)
	rows := sqlmock.NewRows([]string{"id", "event_id", "provider", "event_type", "processed", "created_at", "expires_at", "processed_at"}).
		AddRow(7, "evt_1", "stripe", "payment_intent.succeeded", true, time.Now(), time.Now().Add(time.Hour), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events" WHERE event_id = $1 AND provider = $2`)).
		WillReturnRows(rows)

	event, err := New().Get(db, "evt_1", "stripe")
	require.NoError(t, err)
	assert.True(t, event.Processed)
	assert.Equal(t, int64(7), event.ID)
}

func TestStore_DeleteExpired(t *testing.T) {
	db, mock := storetest.NewMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "webhook_events" WHERE expires_at < $1`)).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := New().DeleteExpired(db, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
