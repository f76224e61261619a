// Package partition owns the per-tenant schema: its name, its tables and
// the DDL that creates them.
package partition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var ErrInvalidSchema = errors.New("invalid tenant schema name")

var schemaPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Tables is the full set a tenant partition must contain.
var Tables = []string{
	"payments",
	"bitcoin_purchases",
	"treasury_rules",
	"threshold_accumulators",
	"reconciliation_records",
}

// Scope addresses one tenant schema. The zero value is unusable.
type Scope struct {
	schema string
}

func NewScope(schema string) (Scope, error) {
	if !schemaPattern.MatchString(schema) || schema == "public" || strings.HasPrefix(schema, "pg_") {
		return Scope{}, errors.Wrap(ErrInvalidSchema, schema)
	}
	return Scope{schema: schema}, nil
}

func (s Scope) Schema() string {
	return s.schema
}

// Table returns schema.table for gorm's Table(); gorm quotes each part.
func (s Scope) Table(name string) string {
	return s.schema + "." + name
}

// Quoted returns "schema"."table" for raw SQL.
func (s Scope) Quoted(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, s.schema, name)
}

// Create builds the schema and every table in tx. Postgres DDL is
// transactional, so a failure leaves nothing behind.
func Create(tx *gorm.DB, s Scope) error {
	for _, stmt := range statements(s) {
		if err := tx.Exec(stmt).Error; err != nil {
			return errors.Wrapf(err, "create partition %s", s.schema)
		}
	}
	return nil
}

// Exists reports whether the schema holds the complete table set.
func Exists(tx *gorm.DB, s Scope) (bool, error) {
	var count int64
	err := tx.Raw(
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = ? AND table_name IN ?`,
		s.schema, Tables,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(Tables)), nil
}

func statements(s Scope) []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, s.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	tenant_id varchar(64) NOT NULL,
	external_payment_id varchar(255) NOT NULL UNIQUE,
	amount_minor_units bigint NOT NULL CHECK (amount_minor_units >= 0),
	currency varchar(3) NOT NULL,
	status varchar(16) NOT NULL,
	should_convert boolean NOT NULL DEFAULT false,
	conversion_amount numeric(20,2) NOT NULL DEFAULT 0,
	decision_reason varchar(255),
	created_at timestamptz NOT NULL DEFAULT now()
)`, s.Quoted("payments")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS payments_created_at_idx ON %s (created_at)`, s.Quoted("payments")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	tenant_id varchar(64) NOT NULL,
	external_payment_id varchar(255) UNIQUE,
	idempotency_key varchar(255) NOT NULL UNIQUE,
	purchase_trigger varchar(16) NOT NULL,
	bitcoin_amount numeric(20,8) NOT NULL DEFAULT 0,
	fiat_amount numeric(20,2) NOT NULL DEFAULT 0,
	exchange_rate numeric(20,2) NOT NULL DEFAULT 0,
	fees numeric(20,2) NOT NULL DEFAULT 0,
	exchange_order_id varchar(255),
	withdrawal_id varchar(255),
	status varchar(16) NOT NULL,
	failure_reason text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)`, s.Quoted("bitcoin_purchases")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS bitcoin_purchases_created_at_idx ON %s (created_at)`, s.Quoted("bitcoin_purchases")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	tenant_id varchar(64) NOT NULL,
	type varchar(32) NOT NULL,
	percentage numeric(7,4),
	threshold_amount numeric(20,2),
	fixed_amount numeric(20,2),
	min_transaction_amount numeric(20,2) NOT NULL DEFAULT 0,
	max_transaction_amount numeric(20,2) NOT NULL DEFAULT 0,
	is_active boolean NOT NULL DEFAULT false,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)`, s.Quoted("treasury_rules")),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS treasury_rules_one_active_idx ON %s (tenant_id) WHERE is_active`, s.Quoted("treasury_rules")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	tenant_id varchar(64) PRIMARY KEY,
	balance numeric(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at timestamptz NOT NULL DEFAULT now()
)`, s.Quoted("threshold_accumulators")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	sweep_id uuid NOT NULL,
	tenant_id varchar(64) NOT NULL,
	payment_id uuid,
	purchase_id uuid,
	external_payment_id varchar(255),
	classification varchar(32) NOT NULL,
	expected_amount numeric(20,2),
	actual_amount numeric(20,2),
	detected_at timestamptz NOT NULL DEFAULT now()
)`, s.Quoted("reconciliation_records")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS reconciliation_records_sweep_idx ON %s (sweep_id)`, s.Quoted("reconciliation_records")),
	}
}
