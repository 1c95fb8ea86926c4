// Package captcha talks to an external reCAPTCHA solving service.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
	"github.com/jakopako/sitecheckr/internal/wait"
)

const notReady = "CAPCHA_NOT_READY"

// Solver turns the site key of a page into a solved challenge token.
type Solver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
}

type Config struct {
	APIKey       string        `yaml:"api_key" env:"CAPTCHA_API_KEY"`
	Endpoint     string        `yaml:"endpoint" env:"CAPTCHA_ENDPOINT" env-default:"https://2captcha.com"`
	PollInterval time.Duration `yaml:"poll_interval" env-default:"5s"`
	Timeout      time.Duration `yaml:"timeout" env-default:"120s"`
}

// Enabled reports whether a solver can be built from the config.
func (c *Config) Enabled() bool {
	return c.APIKey != ""
}

// APIError is an error code returned by the service, eg. ERROR_WRONG_USER_KEY.
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return "captcha service: " + e.Code
}

type answer struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// TwoCaptcha is a client of the 2captcha http api: a task is submitted to
// in.php and res.php is polled until the token is ready.
type TwoCaptcha struct {
	*Config
	client *http.Client
}

func NewTwoCaptcha(c *Config) *TwoCaptcha {
	return &TwoCaptcha{
		Config: c,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *TwoCaptcha) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("captcha", "2captcha"))
	id, err := s.call(ctx, "in.php", url.Values{
		"method":    {"userrecaptcha"},
		"googlekey": {siteKey},
		"pageurl":   {pageURL},
	})
	if err != nil {
		return "", err
	}
	logger.Debug("captcha task submitted", slog.String("id", id))

	var token string
	var fatal error
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	outcome, err := wait.Until(pollCtx, func(ctx context.Context) (bool, error) {
		res, err := s.call(ctx, "res.php", url.Values{"action": {"get"}, "id": {id}})
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Code == notReady:
			return false, nil
		case errors.As(err, &apiErr):
			fatal = err
			cancel()
			return false, err
		case err != nil:
			// network hiccups are retried until the timeout
			return false, err
		}
		token = res
		return true, nil
	}, s.Timeout, s.PollInterval)
	if outcome == wait.Satisfied {
		logger.Debug("captcha solved")
		return token, nil
	}
	if fatal != nil {
		return "", fatal
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", &types.Error{Kind: types.ErrTimeout, Op: fmt.Sprintf("waiting %s for captcha %s", s.Timeout, id), Err: err}
}

func (s *TwoCaptcha) call(ctx context.Context, path string, params url.Values) (string, error) {
	params.Set("key", s.APIKey)
	params.Set("json", "1")
	u := strings.TrimSuffix(s.Endpoint, "/") + "/" + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", &types.Error{Kind: types.ErrTransport, Op: "captcha " + path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &types.Error{Kind: types.ErrTransport, Op: "captcha " + path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	var a answer
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return "", fmt.Errorf("captcha %s: failed to decode answer: %w", path, err)
	}
	if a.Status != 1 {
		return "", &APIError{Code: a.Request}
	}
	return a.Request, nil
}
