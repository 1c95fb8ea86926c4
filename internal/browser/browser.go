// Package browser provides the browsing contexts scenarios run in: a chromedp
// driven Chrome and an in-memory mock for tests and dry runs.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/jakopako/sitecheckr/internal/types"
)

var (
	ErrNotSelectable = errors.New("element is not a selectable control")
	ErrPageClosed    = errors.New("page closed")
	ErrForeignNode   = errors.New("element does not belong to this page")
	ErrStaleElement  = errors.New("element is stale, the page navigated since it was queried")
)

// Element is an opaque handle to one element of a Page. Handles are only valid
// for the Page that returned them and until the next navigation.
type Element interface {
	Describe() string
}

// ElementState is a snapshot of the interaction relevant state of an element.
type ElementState struct {
	Tag      string `json:"tag"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	Editable bool   `json:"editable"`
}

// Clickable reports whether a user could click the element.
func (s ElementState) Clickable() bool {
	return s.Visible && s.Enabled
}

// A Page is a live, scriptable browsing context. None of its methods wait for
// elements to appear: Query returns what the current DOM holds.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Query(ctx context.Context, q types.ElementQuery) ([]Element, error)
	State(ctx context.Context, el Element) (ElementState, error)
	Text(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	// Options returns the option values of a select element or ErrNotSelectable.
	Options(ctx context.Context, el Element) ([]string, error)
	Click(ctx context.Context, el Element) error
	Hover(ctx context.Context, el Element) error
	ScrollIntoView(ctx context.Context, el Element) error
	SendKeys(ctx context.Context, el Element, text string) error
	// SetValue sets the value of a control without simulating key strokes.
	SetValue(ctx context.Context, el Element, value string) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// A Provider hands out Pages. Every acquired Page is owned by the caller
// until it calls Close on it.
type Provider interface {
	Acquire(ctx context.Context) (Page, error)
	Cancel()
}

type ProviderType string

const (
	CHROME_PROVIDER_TYPE ProviderType = "chrome"
	MOCK_PROVIDER_TYPE   ProviderType = "mock"
)

// Config defines how browsing contexts are created.
type Config struct {
	Type         ProviderType  `yaml:"type" env:"BROWSER_TYPE"`
	UserAgent    string        `yaml:"user_agent" env:"BROWSER_USER_AGENT"`
	RemoteURL    string        `yaml:"remote_url" env:"BROWSER_REMOTE_URL"`
	ShowWindow   bool          `yaml:"show_window" env:"BROWSER_SHOW_WINDOW"`
	WindowWidth  int           `yaml:"window_width" env-default:"1920"`
	WindowHeight int           `yaml:"window_height" env-default:"1080"`
	MockPages    []MockContent `yaml:"mock_pages,omitempty"`
}

// MockContent is the html served by the mock provider for one url.
type MockContent struct {
	URL     string `yaml:"url"`
	Content string `yaml:"content"`
}

func DefaultProviderType() ProviderType {
	return CHROME_PROVIDER_TYPE
}

// NewProvider returns a provider depending on the configured type.
func NewProvider(c *Config) (Provider, error) {
	switch c.Type {
	case CHROME_PROVIDER_TYPE, "":
		return NewChromeProvider(c), nil
	case MOCK_PROVIDER_TYPE:
		return NewMockProvider(c), nil
	default:
		return nil, fmt.Errorf("browser of type '%s' not implemented", c.Type)
	}
}
