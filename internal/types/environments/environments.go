package environments

type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Staging     Environment = "staging"
	Test        Environment = "test"
)

// Parse maps APP_ENV onto a known environment, defaulting to development.
func Parse(raw string) Environment {
	switch Environment(raw) {
	case Production, Staging, Test:
		return Environment(raw)
	default:
		return Development
	}
}

// IsLive reports whether the environment settles real money.
func (e Environment) IsLive() bool {
	return e == Production || e == Staging
}
