package consts

const (
	// BTC_DECIMALS is the precision bitcoin amounts are rounded to.
	BTC_DECIMALS = 8
	// FIAT_DECIMALS is the minor-unit exponent of settlement currencies.
	FIAT_DECIMALS = 2

	HeaderStripeSignature  = "Stripe-Signature"
	HeaderGenericSignature = "X-Webhook-Signature"

	PublicSchema       = "public"
	TenantSchemaPrefix = "tenant_"

	JobIdempotencySweep    = "idempotency_sweep"
	JobReconciliationSweep = "reconciliation_sweep"
)
