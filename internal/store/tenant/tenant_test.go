package tenant

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/store/storetest"
)

var tenantColumns = []string{"id", "name", "schema_ref", "status", "subscription_tier",
	"monthly_volume_limit", "daily_volume_limit", "per_transaction_limit", "withdrawal_address", "created_at", "updated_at"}

func TestStore_GetByID(t *testing.T) {
	db, mock := storetest.NewMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenants" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(tenantColumns).
			AddRow("acme", "Acme", "tenant_acme", "active", "growth", "100000.00", nil, nil, "", time.Now(), time.Now()))

	tn, err := New().GetByID(db, "acme")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", tn.SchemaRef)
	assert.Equal(t, model.TenantStatusActive, tn.Status)
	assert.True(t, tn.MonthlyVolumeLimit.Valid)
	assert.False(t, tn.DailyVolumeLimit.Valid)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db, mock := storetest.NewMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenants"`)).
		WillReturnRows(sqlmock.NewRows(tenantColumns))

	_, err := New().GetByID(db, "ghost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStore_ListActive(t *testing.T) {
	db, mock := storetest.NewMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenants" WHERE status = $1 ORDER BY id`)).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows(tenantColumns).
			AddRow("acme", "Acme", "tenant_acme", "active", "growth", nil, nil, nil, "", time.Now(), time.Now()).
			AddRow("globex", "Globex", "tenant_globex", "active", "starter", nil, nil, nil, "", time.Now(), time.Now()))

	tenants, err := New().ListActive(db)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}
