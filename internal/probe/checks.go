package probe

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antchfx/jsonquery"
	"github.com/antchfx/xpath"
)

// BodyCheck is a declarative check on a JSON body. Query is an XPath
// expression over the document, keys containing spaces are selected with
// name(), eg. //places/*/*[name()='place name']. The check passes when one of
// the matched values equals Equals or contains Contains. Exists only checks
// for the presence or absence of matches.
type BodyCheck struct {
	Query    string `yaml:"query" json:"query"`
	Equals   string `yaml:"equals,omitempty" json:"equals,omitempty"`
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`
	Exists   *bool  `yaml:"exists,omitempty" json:"exists,omitempty"`
}

func (c BodyCheck) Validate() error {
	if c.Query == "" {
		return errors.New("body check needs a query")
	}
	if _, err := xpath.Compile(c.Query); err != nil {
		return fmt.Errorf("invalid body query %q: %w", c.Query, err)
	}
	if c.Equals == "" && c.Contains == "" && c.Exists == nil {
		return fmt.Errorf("body check %q needs one of equals, contains or exists", c.Query)
	}
	return nil
}

func (c BodyCheck) check(doc *jsonquery.Node) error {
	nodes, err := jsonquery.QueryAll(doc, c.Query)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Query, err)
	}
	if c.Exists != nil {
		if *c.Exists && len(nodes) == 0 {
			return fmt.Errorf("%s: expected a match, found none", c.Query)
		}
		if !*c.Exists && len(nodes) > 0 {
			return fmt.Errorf("%s: expected no match, found %d", c.Query, len(nodes))
		}
	}
	if c.Equals == "" && c.Contains == "" {
		return nil
	}
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		values = append(values, n.InnerText())
	}
	if c.Equals != "" && !slices.Contains(values, c.Equals) {
		return fmt.Errorf("%s: expected %q, got %s", c.Query, c.Equals, quoteAll(values))
	}
	if c.Contains != "" && !slices.ContainsFunc(values, func(v string) bool { return strings.Contains(v, c.Contains) }) {
		return fmt.Errorf("%s: expected a value containing %q, got %s", c.Query, c.Contains, quoteAll(values))
	}
	return nil
}

func quoteAll(values []string) string {
	if len(values) == 0 {
		return "nothing"
	}
	q := make([]string, len(values))
	for i, v := range values {
		q[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

// Checks returns a body predicate that evaluates every check and reports all
// failed ones.
func Checks(checks ...BodyCheck) func(*jsonquery.Node) error {
	return func(doc *jsonquery.Node) error {
		var errs []error
		for _, c := range checks {
			if err := c.check(doc); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
