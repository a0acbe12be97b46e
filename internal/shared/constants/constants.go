package constants

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	HeaderXRequestID = "X-Request-ID"

	TableAddressSlots         = "address_slots"
	TablePurchaseTransactions = "purchase_transactions"
	TableExchangeRates        = "exchange_rates"

	// Redis key prefixes
	RedisKeyExchangeRate = "purchase:rate:"
	RedisKeyRateLimit    = "purchase:ratelimit:ip:"
)
