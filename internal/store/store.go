package store

import (
	"github.com/dwarvesf/treasury-settlement/internal/store/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/store/webhookevent"
)

// Store groups the stores over the shared schema. Tenant-owned tables are
// reachable only through a resolved tenant handle.
type Store struct {
	WebhookEvent webhookevent.IStore
	Tenant       tenant.IStore
}

func New() *Store {
	return &Store{
		WebhookEvent: webhookevent.New(),
		Tenant:       tenant.New(),
	}
}
