package types

import (
	"errors"
	"time"
)

// SiteConfig holds the settings of the site under test that scenarios and
// probes are constructed with.
type SiteConfig struct {
	HomepageURL       string        `yaml:"homepage_url" env:"SITE_HOMEPAGE_URL"`
	ExpectedCountries []string      `yaml:"expected_countries"`
	StandardTimeout   time.Duration `yaml:"standard_timeout" env:"SITE_STANDARD_TIMEOUT" env-default:"10s"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"SITE_POLL_INTERVAL" env-default:"250ms"`
}

func (c SiteConfig) Validate() error {
	if c.HomepageURL == "" {
		return errors.New("site homepage_url cannot be empty")
	}
	if c.StandardTimeout < 0 || c.PollInterval < 0 {
		return errors.New("site timeouts cannot be negative")
	}
	return nil
}

// TimeoutFor returns the timeout a step waits with.
func (c SiteConfig) TimeoutFor(s Step) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return c.StandardTimeout
}
