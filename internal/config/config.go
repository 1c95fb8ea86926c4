// Package config reads the sitecheckr configuration from yaml files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/captcha"
	"github.com/jakopako/sitecheckr/internal/output"
	"github.com/jakopako/sitecheckr/internal/probe"
	"github.com/jakopako/sitecheckr/internal/types"
	"github.com/joho/godotenv"
)

// RunnerConfig controls how scenarios are scheduled.
type RunnerConfig struct {
	Parallel int    `yaml:"parallel" env:"RUNNER_PARALLEL" env-default:"1"`
	DebugDir string `yaml:"debug_dir" env:"RUNNER_DEBUG_DIR"`
}

// Config defines the overall structure of the sitecheckr configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Site      types.SiteConfig    `yaml:"site"`
	Browser   browser.Config      `yaml:"browser"`
	Captcha   captcha.Config      `yaml:"captcha"`
	Probe     probe.Config        `yaml:"probe"`
	Runner    RunnerConfig        `yaml:"runner"`
	Writer    output.WriterConfig `yaml:"writer"`
	Scenarios []types.Scenario    `yaml:"scenarios"`
	Probes    []probe.Spec        `yaml:"probes"`
}

// LoadEnv loads the variables of a .env file into the environment. Variables
// that are already set are not overwritten. A missing file is not an error.
func LoadEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("error loading env file %s: %w", envFile, err)
	}
	return nil
}

// NewConfig reads the configuration at configPath. configPath is either a
// single yaml file or a directory. In case of a directory the scenarios and
// probes of all yaml files in it are merged while the remaining settings are
// taken from the first file in lexical order.
func NewConfig(configPath string) (*Config, error) {
	fi, err := os.Stat(configPath)
	if err != nil {
		return nil, err
	}
	files := []string{configPath}
	if fi.IsDir() {
		files, err = yamlFiles(configPath)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no yaml files found in directory %s", configPath)
		}
	}

	var config *Config
	for _, f := range files {
		var c Config
		if err := cleanenv.ReadConfig(f, &c); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", f, err)
		}
		if config == nil {
			config = &c
			continue
		}
		config.Scenarios = append(config.Scenarios, c.Scenarios...)
		config.Probes = append(config.Probes, c.Probes...)
	}

	if config.Browser.Type == "" {
		config.Browser.Type = browser.DefaultProviderType()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// Validate checks the site settings, every scenario and every probe. Names
// of scenarios and probes have to be unique since they are used to select
// single ones on the command line.
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("invalid site config: %w", err)
	}
	if c.Runner.Parallel < 1 {
		return fmt.Errorf("runner.parallel has to be at least 1, got %d", c.Runner.Parallel)
	}
	var errs []error
	seen := map[string]bool{}
	for i, s := range c.Scenarios {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scenario %d: %w", i, err))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("scenario %d: duplicate name '%s'", i, s.Name))
		}
		seen[s.Name] = true
	}
	seen = map[string]bool{}
	for i, p := range c.Probes {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("probe %d: %w", i, err))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("probe %d: duplicate name '%s'", i, p.Name))
		}
		seen[p.Name] = true
	}
	return errors.Join(errs...)
}

// Scenario returns the scenario with the given name.
func (c *Config) Scenario(name string) (types.Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return types.Scenario{}, false
}

// ProbeSpecs returns the configured probes followed by one probe per case of
// the postal cases file, if probe.postal_cases is set. casesFile overrides
// the configured file.
func (c *Config) ProbeSpecs(casesFile string) ([]probe.Spec, error) {
	specs := slices.Clone(c.Probes)
	if casesFile == "" {
		casesFile = c.Probe.PostalCases
	}
	if casesFile == "" {
		return specs, nil
	}
	cases, err := probe.LoadPostalCases(casesFile)
	if err != nil {
		return nil, err
	}
	for _, pc := range cases {
		specs = append(specs, pc.Spec())
	}
	return specs, nil
}
