// Package types defines the declarative scenario model shared across the application.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy selects how an ElementQuery is matched against the page.
type Strategy string

const (
	ByID    Strategy = "id"
	ByXPath Strategy = "xpath"
	ByClass Strategy = "class"
	ByText  Strategy = "text"
	ByCSS   Strategy = "css"
)

// ElementQuery is a declarative reference to elements on a page.
// For ByText, Tag restricts the match to one element name (any element if empty).
type ElementQuery struct {
	By    Strategy `yaml:"by" json:"by"`
	Value string   `yaml:"value" json:"value"`
	Tag   string   `yaml:"tag,omitempty" json:"tag,omitempty"`
}

func ID(id string) ElementQuery {
	return ElementQuery{By: ByID, Value: id}
}

func XPath(expr string) ElementQuery {
	return ElementQuery{By: ByXPath, Value: expr}
}

func Class(name string) ElementQuery {
	return ElementQuery{By: ByClass, Value: name}
}

func CSS(selector string) ElementQuery {
	return ElementQuery{By: ByCSS, Value: selector}
}

// Text matches elements named tag whose normalized text equals text.
func Text(tag, text string) ElementQuery {
	return ElementQuery{By: ByText, Value: text, Tag: tag}
}

func (q ElementQuery) IsZero() bool {
	return q.By == "" && q.Value == ""
}

func (q ElementQuery) String() string {
	if q.IsZero() {
		return ""
	}
	if q.By == ByText && q.Tag != "" {
		return fmt.Sprintf("text=<%s>%s", q.Tag, q.Value)
	}
	return fmt.Sprintf("%s=%s", q.By, q.Value)
}

func (q ElementQuery) Validate() error {
	if strings.TrimSpace(q.Value) == "" {
		return fmt.Errorf("locator %q has an empty value", q.By)
	}
	switch q.By {
	case ByID, ByXPath, ByClass, ByText, ByCSS:
		return nil
	default:
		return fmt.Errorf("unknown locator strategy %q", q.By)
	}
}

// XPath translates the query into an XPath expression. CSS queries have no
// XPath form and return an error.
func (q ElementQuery) XPath() (string, error) {
	switch q.By {
	case ByXPath:
		return q.Value, nil
	case ByID:
		return fmt.Sprintf("//*[@id=%s]", xpathLiteral(q.Value)), nil
	case ByClass:
		return fmt.Sprintf("//*[contains(concat(' ', normalize-space(@class), ' '), %s)]", xpathLiteral(" "+q.Value+" ")), nil
	case ByText:
		tag := q.Tag
		if tag == "" {
			tag = "*"
		}
		return fmt.Sprintf("//%s[normalize-space(.)=%s]", tag, xpathLiteral(strings.TrimSpace(q.Value))), nil
	default:
		return "", fmt.Errorf("locator strategy %q has no xpath form", q.By)
	}
}

// xpathLiteral quotes s for use inside an XPath 1.0 expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// ActionKind is the user intent a Step performs.
type ActionKind string

const (
	ActionNavigate        ActionKind = "navigate"
	ActionClick           ActionKind = "click"
	ActionHover           ActionKind = "hover"
	ActionType            ActionKind = "type"
	ActionSelect          ActionKind = "select"
	ActionScroll          ActionKind = "scroll"
	ActionAssertAttribute ActionKind = "assert-attribute"
	ActionAssertText      ActionKind = "assert-text"
	ActionAssertCount     ActionKind = "assert-count"
	ActionAssertTexts     ActionKind = "assert-texts"
	ActionCheckLinks      ActionKind = "check-links"
	ActionSolveCaptcha    ActionKind = "solve-captcha"
)

// NeedsElement reports whether the action operates on located elements.
func (a ActionKind) NeedsElement() bool {
	switch a {
	case ActionNavigate, ActionSolveCaptcha:
		return false
	default:
		return true
	}
}

// ToleratesList reports whether the action works on every match of its
// locator instead of exactly one element.
func (a ActionKind) ToleratesList() bool {
	switch a {
	case ActionAssertCount, ActionAssertTexts, ActionCheckLinks:
		return true
	default:
		return false
	}
}

// MatchMode defines how assertions compare expected and actual strings.
type MatchMode string

const (
	MatchEquals   MatchMode = "equals"
	MatchContains MatchMode = "contains"
)

// Matches compares actual against expected. The zero mode is MatchEquals.
func (m MatchMode) Matches(expected, actual string) bool {
	if m == MatchContains {
		return strings.Contains(actual, expected)
	}
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

// Step is one locate, wait, act and assert unit of a Scenario.
type Step struct {
	Name      string        `yaml:"name,omitempty" json:"name,omitempty"`
	Action    ActionKind    `yaml:"action" json:"action"`
	Locate    ElementQuery  `yaml:"locate,omitempty" json:"locate,omitempty"`
	Text      string        `yaml:"text,omitempty" json:"text,omitempty"`           // type
	Value     string        `yaml:"value,omitempty" json:"value,omitempty"`         // select
	Attribute string        `yaml:"attribute,omitempty" json:"attribute,omitempty"` // assert-attribute
	Expected  string        `yaml:"expected,omitempty" json:"expected,omitempty"`   // assert-attribute, assert-text
	Match     MatchMode     `yaml:"match,omitempty" json:"match,omitempty"`         // assert-attribute, assert-text
	Count     *int          `yaml:"count,omitempty" json:"count,omitempty"`         // assert-count
	Values    []string      `yaml:"values,omitempty" json:"values,omitempty"`       // assert-texts
	Status    int           `yaml:"status,omitempty" json:"status,omitempty"`       // check-links
	SiteKey   string        `yaml:"site_key,omitempty" json:"site_key,omitempty"`   // solve-captcha
	URL       string        `yaml:"url,omitempty" json:"url,omitempty"`             // navigate
	Timeout   time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Optional  bool          `yaml:"optional,omitempty" json:"optional,omitempty"`
}

func Navigate(url string) Step {
	return Step{Action: ActionNavigate, URL: url}
}

func Click(q ElementQuery) Step {
	return Step{Action: ActionClick, Locate: q}
}

func Hover(q ElementQuery) Step {
	return Step{Action: ActionHover, Locate: q}
}

func ScrollTo(q ElementQuery) Step {
	return Step{Action: ActionScroll, Locate: q}
}

func SolveCaptcha(siteKey string) Step {
	return Step{Action: ActionSolveCaptcha, SiteKey: siteKey}
}

func TypeText(q ElementQuery, text string) Step {
	return Step{Action: ActionType, Locate: q, Text: text}
}

func Select(q ElementQuery, value string) Step {
	return Step{Action: ActionSelect, Locate: q, Value: value}
}

func AssertAttribute(q ElementQuery, name, expected string, m MatchMode) Step {
	return Step{Action: ActionAssertAttribute, Locate: q, Attribute: name, Expected: expected, Match: m}
}

func AssertText(q ElementQuery, expected string, m MatchMode) Step {
	return Step{Action: ActionAssertText, Locate: q, Expected: expected, Match: m}
}

func AssertCount(q ElementQuery, n int) Step {
	return Step{Action: ActionAssertCount, Locate: q, Count: &n}
}

// AssertTexts checks that every match has one of values as its text. Without
// values the configured expected countries are used.
func AssertTexts(q ElementQuery, values ...string) Step {
	return Step{Action: ActionAssertTexts, Locate: q, Values: values}
}

func CheckLinks(q ElementQuery, status int) Step {
	return Step{Action: ActionCheckLinks, Locate: q, Status: status}
}

// Named returns a copy of s with the given name.
func (s Step) Named(name string) Step {
	s.Name = name
	return s
}

// AsOptional returns a non-fatal copy of s.
func (s Step) AsOptional() Step {
	s.Optional = true
	return s
}

// WithTimeout returns a copy of s that overrides the standard timeout.
func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

// Label is a human readable identification of the step for logs and reports.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Action == ActionNavigate {
		return fmt.Sprintf("%s %s", s.Action, s.URL)
	}
	if q := s.Locate.String(); q != "" {
		return fmt.Sprintf("%s %s", s.Action, q)
	}
	return string(s.Action)
}

func (s Step) Validate() error {
	switch s.Action {
	case ActionNavigate:
		if s.URL == "" {
			return errors.New("navigate needs a url")
		}
		return nil
	case ActionSolveCaptcha:
		if s.SiteKey == "" {
			return errors.New("solve-captcha needs a site_key")
		}
		if !s.Locate.IsZero() {
			return s.Locate.Validate()
		}
		return nil
	case ActionClick, ActionHover, ActionScroll, ActionCheckLinks, ActionAssertTexts:
	case ActionType:
		if s.Text == "" {
			return errors.New("type needs a text")
		}
	case ActionSelect:
		if s.Value == "" {
			return errors.New("select needs a value")
		}
	case ActionAssertAttribute:
		if s.Attribute == "" {
			return errors.New("assert-attribute needs an attribute")
		}
	case ActionAssertText:
	case ActionAssertCount:
		if s.Count != nil && *s.Count < 0 {
			return errors.New("assert-count needs a non-negative count")
		}
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	switch s.Match {
	case "", MatchEquals, MatchContains:
	default:
		return fmt.Errorf("unknown match mode %q", s.Match)
	}
	if s.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return s.Locate.Validate()
}

// Expectation is the terminal condition of a Scenario. URL is a glob pattern
// (eg. *automation*) or a regular expression prefixed with "re:".
type Expectation struct {
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
}

func (e Expectation) IsZero() bool {
	return e.URL == "" && e.Text == ""
}

// Scenario is a named ordered sequence of Steps.
type Scenario struct {
	Name     string      `yaml:"name" json:"name"`
	StartURL string      `yaml:"start_url,omitempty" json:"start_url,omitempty"`
	Steps    []Step      `yaml:"steps" json:"steps"`
	Expect   Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`
}

func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name cannot be empty")
	}
	var errs []error
	for i, st := range s.Steps {
		if err := st.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scenario %s: step %d (%s): %w", s.Name, i, st.Label(), err))
		}
	}
	return errors.Join(errs...)
}
