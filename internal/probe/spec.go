package probe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Spec declares a named probe. Path is appended to the configured root
// unless it is an absolute url. Zero fields take the configured defaults.
type Spec struct {
	Name        string        `yaml:"name" json:"name"`
	Path        string        `yaml:"path" json:"path"`
	Status      int           `yaml:"status,omitempty" json:"status,omitempty"`
	ContentType string        `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	MaxLatency  time.Duration `yaml:"max_latency,omitempty" json:"max_latency,omitempty"`
	Checks      []BodyCheck   `yaml:"checks,omitempty" json:"checks,omitempty"`
}

func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New("probe name cannot be empty")
	}
	if s.Path == "" {
		return fmt.Errorf("probe %s: path cannot be empty", s.Name)
	}
	var errs []error
	for _, c := range s.Checks {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("probe %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// URL returns the url the probe requests.
func (s Spec) URL(c *Config) string {
	if strings.HasPrefix(s.Path, "http://") || strings.HasPrefix(s.Path, "https://") {
		return s.Path
	}
	return strings.TrimSuffix(c.Root, "/") + "/" + strings.TrimPrefix(s.Path, "/")
}

// Expectation returns what the response to the probe has to satisfy.
func (s Spec) Expectation(c *Config) Expectation {
	exp := Expectation{
		Status:      s.Status,
		ContentType: s.ContentType,
		MaxLatency:  s.MaxLatency,
	}
	if exp.Status == 0 {
		exp.Status = http.StatusOK
	}
	if exp.ContentType == "" {
		exp.ContentType = c.ContentType
	}
	if exp.MaxLatency == 0 {
		exp.MaxLatency = c.MaxLatency
	}
	if len(s.Checks) > 0 {
		exp.Body = Checks(s.Checks...)
	}
	return exp
}
