package tenant

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/store"
	tenantstore "github.com/dwarvesf/treasury-settlement/internal/store/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

type Options struct {
	Cache   Cache
	Engine  treasury.IEngine
	Metrics Metrics
	Now     func() time.Time
}

type resolver struct {
	db      *gorm.DB
	tenants tenantstore.IStore
	cache   Cache
	engine  treasury.IEngine
	metrics Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func NewResolver(db *gorm.DB, tenants tenantstore.IStore, logger *logger.Logger, opts Options) IResolver {
	if opts.Cache == nil {
		opts.Cache = NewNoopCache()
	}
	if opts.Engine == nil {
		opts.Engine = treasury.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &resolver{
		db:      db,
		tenants: tenants,
		cache:   opts.Cache,
		engine:  opts.Engine,
		metrics: opts.Metrics,
		logger:  logger,
		now:     opts.Now,
	}
}

func (r *resolver) Resolve(ctx context.Context, tenantID string) (IHandle, error) {
	if tenantID == "" {
		return nil, errors.Wrap(ErrTenantNotFound, "empty tenant id")
	}

	t, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, errors.Wrap(ErrTenantInactive, tenantID)
	}

	scope, err := partition.NewScope(t.SchemaRef)
	if err != nil {
		r.logger.Error("[Resolver][Resolve] tenant has an invalid schema reference", map[string]string{
			"tenantID":  tenantID,
			"schemaRef": t.SchemaRef,
		})
		return nil, err
	}
	return newHandle(r.db, *t, scope, r.engine, r.metrics, r.logger, r.now), nil
}

func (r *resolver) load(ctx context.Context, tenantID string) (*model.Tenant, error) {
	if t, ok := r.cache.Get(ctx, tenantID); ok {
		return t, nil
	}

	t, err := r.tenants.GetByID(r.db.WithContext(ctx), tenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load tenant %s", tenantID)
	}

	r.cache.Set(ctx, t)
	return t, nil
}

// scopeFor uses the registered schema_ref when the tenant row exists and
// derives one from the id otherwise. Only ids that could be onboarded are
// derived, so an unregistered id never lands on another tenant's schema.
func (r *resolver) scopeFor(ctx context.Context, tenantID string) (partition.Scope, error) {
	t, err := r.tenants.GetByID(r.db.WithContext(ctx), tenantID)
	switch {
	case err == nil:
		return partition.NewScope(t.SchemaRef)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return partition.Scope{}, errors.Wrapf(err, "load tenant %s", tenantID)
	case !ValidTenantID(tenantID):
		return partition.Scope{}, errors.Wrapf(ErrInvalidTenantID, "%q", tenantID)
	}
	return partition.NewScope(SchemaRefFor(tenantID))
}

func (r *resolver) CreatePartition(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return errors.Wrap(ErrTenantNotFound, "empty tenant id")
	}

	scope, err := r.scopeFor(ctx, tenantID)
	if err != nil {
		return err
	}

	err = store.DoInTxContext(ctx, r.db, func(tx *gorm.DB) error {
		return partition.Create(tx, scope)
	})
	if err != nil {
		r.logger.Error("[Resolver][CreatePartition] failed to create partition", map[string]string{
			"tenantID": tenantID,
			"schema":   scope.Schema(),
			"error":    err.Error(),
		})
		return err
	}

	r.logger.Info("[Resolver][CreatePartition] partition ready", map[string]string{
		"tenantID": tenantID,
		"schema":   scope.Schema(),
	})
	return nil
}

func (r *resolver) PartitionExists(ctx context.Context, tenantID string) (bool, error) {
	scope, err := r.scopeFor(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return partition.Exists(r.db.WithContext(ctx), scope)
}

func (r *resolver) Onboard(ctx context.Context, t *model.Tenant) error {
	if t == nil || t.ID == "" {
		return errors.Wrap(ErrTenantNotFound, "empty tenant id")
	}
	if !ValidTenantID(t.ID) {
		return errors.Wrapf(ErrInvalidTenantID, "%q", t.ID)
	}
	if t.SchemaRef == "" {
		t.SchemaRef = SchemaRefFor(t.ID)
	}
	if t.Status == "" {
		t.Status = model.TenantStatusActive
	}
	if t.SubscriptionTier == "" {
		t.SubscriptionTier = model.SubscriptionTierStarter
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	scope, err := partition.NewScope(t.SchemaRef)
	if err != nil {
		return err
	}

	err = store.DoInTxContext(ctx, r.db, func(tx *gorm.DB) error {
		_, err := r.tenants.GetByID(tx, t.ID)
		if err == nil {
			return errors.Wrap(ErrTenantExists, t.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := r.tenants.Create(tx, t); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Wrapf(ErrTenantExists, "schema %s is taken", t.SchemaRef)
			}
			return err
		}
		return partition.Create(tx, scope)
	})
	if err != nil {
		return err
	}

	r.cache.Invalidate(ctx, t.ID)
	r.logger.Info("[Resolver][Onboard] tenant onboarded", map[string]string{
		"tenantID": t.ID,
		"schema":   t.SchemaRef,
	})
	return nil
}

func (r *resolver) ListActive(ctx context.Context) ([]model.Tenant, error) {
	return r.tenants.ListActive(r.db.WithContext(ctx))
}
