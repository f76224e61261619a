package tenant

import (
	"regexp"
	"strings"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
)

var (
	unsafeSchemaChars = regexp.MustCompile(`[^a-z0-9_]+`)
	// tenant ids map one to one onto schema names within the 63 byte limit
	tenantIDPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_]{0,53}[a-z0-9])?$`)
)

// ValidTenantID reports whether id can be onboarded. Valid ids are used as
// the schema suffix unchanged.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// SchemaRefFor derives the partition name for a tenant id.
func SchemaRefFor(tenantID string) string {
	name := unsafeSchemaChars.ReplaceAllString(strings.ToLower(tenantID), "_")
	name = consts.TenantSchemaPrefix + strings.Trim(name, "_")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
