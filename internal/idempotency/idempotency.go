package idempotency

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/store/webhookevent"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

const DefaultTTL = 24 * time.Hour

var ErrStoreUnavailable = errors.New("idempotency store unavailable")

type Options struct {
	TTL time.Duration
	// FailOpen lets events through when the store errors. Downstream
	// uniqueness on purchases still blocks duplicate orders.
	FailOpen bool
	Now      func() time.Time
}

type service struct {
	db       *gorm.DB
	events   webhookevent.IStore
	logger   *logger.Logger
	ttl      time.Duration
	failOpen bool
	now      func() time.Time
}

func New(db *gorm.DB, events webhookevent.IStore, logger *logger.Logger, opts Options) IStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		db:       db,
		events:   events,
		logger:   logger,
		ttl:      opts.TTL,
		failOpen: opts.FailOpen,
		now:      opts.Now,
	}
}

func (s *service) IsProcessed(ctx context.Context, eventID, provider string) (bool, error) {
	event, err := s.events.Get(s.db.WithContext(ctx), eventID, provider)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.degrade("IsProcessed", eventID, provider, err)
	}
	return event.Processed, nil
}

func (s *service) Reserve(ctx context.Context, eventID, provider, eventType string) (ReserveResult, error) {
	now := s.now().UTC()
	created, err := s.events.Reserve(s.db.WithContext(ctx), &model.WebhookEvent{
		EventID:   eventID,
		Provider:  provider,
		EventType: eventType,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return ReserveResult{Degraded: true}, s.degrade("Reserve", eventID, provider, err)
	}
	if created {
		return ReserveResult{}, nil
	}

	existing, err := s.events.Get(s.db.WithContext(ctx), eventID, provider)
	if err != nil {
		return ReserveResult{AlreadyReserved: true, Degraded: true}, s.degrade("Reserve.Get", eventID, provider, err)
	}

	if !existing.Processed {
		s.logger.Info("[Idempotency][Reserve] resuming unfinished event", map[string]string{
			"event_id":   eventID,
			"provider":   provider,
			"created_at": existing.CreatedAt.Format(time.RFC3339),
		})
	}
	return ReserveResult{AlreadyReserved: true, Processed: existing.Processed}, nil
}

func (s *service) Complete(ctx context.Context, eventID, provider string) error {
	flipped, err := s.events.MarkProcessed(s.db.WithContext(ctx), eventID, provider, s.now().UTC())
	if err != nil {
		return errors.Wrap(err, "mark event processed")
	}
	if !flipped {
		s.logger.Debug("[Idempotency][Complete] event already processed or never reserved", map[string]string{
			"event_id": eventID,
			"provider": provider,
		})
	}
	return nil
}

func (s *service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.events.DeleteExpired(s.db.WithContext(ctx), s.now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired webhook events")
	}
	s.logger.Info("[Idempotency][SweepExpired] swept expired events", map[string]string{
		"deleted": strconv.FormatInt(n, 10),
	})
	return n, nil
}

// degrade returns nil when failing open, so the caller proceeds.
func (s *service) degrade(step, eventID, provider string, err error) error {
	fields := map[string]string{
		"event_id": eventID,
		"provider": provider,
		"error":    err.Error(),
	}
	if s.failOpen {
		s.logger.Warn("[Idempotency]["+step+"] store unavailable, failing open", fields)
		return nil
	}
	s.logger.Error("[Idempotency]["+step+"] store unavailable, failing closed", fields)
	return errors.Wrap(ErrStoreUnavailable, err.Error())
}
