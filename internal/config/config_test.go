package config

import "testing"

func validConfig() *Config {
	return &Config{
		AnthropicAPIKey: "key",
		JWTSecret:       "secret",
		MaxTurns:        8,
		ThrottleMS:      60_000_000,  // 60ms in nanoseconds
		Stale:           30_000_000_000,
		StaleStore:      60_000_000_000,
	}
}

func TestValidateRequiresAnthropicAPIKey(t *testing.T) {
	c := validConfig()
	c.AnthropicAPIKey = ""
	if err := c.Validate(); err == nil {
		t.Error("expected an error when ANTHROPIC_API_KEY is missing")
	}
}

func TestValidateRequiresJWTSecret(t *testing.T) {
	c := validConfig()
	c.JWTSecret = ""
	if err := c.Validate(); err == nil {
		t.Error("expected an error when JWT_SECRET is missing")
	}
}

func TestValidateRejectsNonPositiveMaxTurns(t *testing.T) {
	c := validConfig()
	c.MaxTurns = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error for MAX_TURNS <= 0")
	}
}

func TestValidateRejectsNonPositiveThrottle(t *testing.T) {
	c := validConfig()
	c.ThrottleMS = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error for THROTTLE_MS <= 0")
	}
}

func TestValidateRequiresStaleStoreGreaterThanStale(t *testing.T) {
	c := validConfig()
	c.StaleStore = c.Stale
	if err := c.Validate(); err == nil {
		t.Error("expected an error when STALE_STORE does not exceed STALE")
	}
}

func TestValidateAcceptsDefaultsShape(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected a well-formed config to validate, got %v", err)
	}
}
