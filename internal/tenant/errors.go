package tenant

import (
	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant is not active")
	ErrTenantExists   = errors.New("tenant already exists")
	// ErrInvalidTenantID is returned for ids outside lowercase letters,
	// digits and inner underscores, or longer than 55 characters.
	ErrInvalidTenantID = errors.New("invalid tenant id")
	// ErrInvalidSchema is returned when a schema ref is not a safe identifier.
	ErrInvalidSchema = partition.ErrInvalidSchema
)
