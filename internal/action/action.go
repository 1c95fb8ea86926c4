// Package action performs single user intents against located elements.
package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
	"github.com/jakopako/sitecheckr/internal/wait"
)

// Executor is the only component mutating a page. Every action first waits
// for the element state it requires.
type Executor struct {
	page     browser.Page
	interval time.Duration
}

func NewExecutor(p browser.Page, pollInterval time.Duration) *Executor {
	return &Executor{page: p, interval: pollInterval}
}

// Navigate loads url in the page.
func (x *Executor) Navigate(ctx context.Context, url string) error {
	if err := x.page.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &types.Error{Kind: types.ErrTransport, Op: "navigate", Locator: url, Err: err}
	}
	return nil
}

// Perform executes step on el. timeout bounds every wait of the action.
func (x *Executor) Perform(ctx context.Context, el browser.Element, step types.Step, timeout time.Duration) error {
	logger := log.LoggerFromContext(ctx)
	logger.Debug(fmt.Sprintf("performing %s on %s", step.Action, el.Describe()))

	var err error
	switch step.Action {
	case types.ActionClick:
		err = x.precondition(ctx, "clickable", wait.ElementClickable(x.page, el), timeout)
		if err == nil {
			err = x.page.Click(ctx, el)
		}
	case types.ActionHover:
		err = x.precondition(ctx, "visible", wait.ElementVisible(x.page, el), timeout)
		if err == nil {
			err = x.page.Hover(ctx, el)
		}
	case types.ActionScroll:
		err = x.precondition(ctx, "visible", wait.ElementVisible(x.page, el), timeout)
		if err == nil {
			err = x.page.ScrollIntoView(ctx, el)
		}
	case types.ActionType:
		err = x.precondition(ctx, "editable", wait.ElementEditable(x.page, el), timeout)
		if err == nil {
			err = x.page.SendKeys(ctx, el, step.Text)
		}
	case types.ActionSelect:
		err = x.selectValue(ctx, el, step.Value, timeout)
	case types.ActionAssertAttribute:
		err = x.assert(ctx, step, timeout, func(ctx context.Context) (string, error) {
			v, ok, err := x.page.Attribute(ctx, el, step.Attribute)
			if err == nil && !ok {
				err = fmt.Errorf("attribute %s is absent", step.Attribute)
			}
			return v, err
		})
	case types.ActionAssertText:
		err = x.assert(ctx, step, timeout, func(ctx context.Context) (string, error) {
			return x.page.Text(ctx, el)
		})
	default:
		return &types.Error{
			Kind:    types.ErrActionFailed,
			Op:      string(step.Action),
			Locator: step.Locate.String(),
			Err:     errors.New("action does not operate on a single element"),
		}
	}
	return x.classify(ctx, step, err)
}

// PerformAll executes a list tolerant step on every match of its locator.
func (x *Executor) PerformAll(ctx context.Context, els []browser.Element, step types.Step) error {
	var err error
	switch step.Action {
	case types.ActionAssertCount:
		want := 0
		if step.Count != nil {
			want = *step.Count
		}
		if len(els) != want {
			err = &types.Error{
				Kind:     types.ErrAssertionFailed,
				Op:       "count",
				Expected: strconv.Itoa(want),
				Actual:   strconv.Itoa(len(els)),
			}
		}
	case types.ActionAssertTexts:
		err = x.assertTexts(ctx, els, step.Values)
	default:
		return &types.Error{
			Kind:    types.ErrActionFailed,
			Op:      string(step.Action),
			Locator: step.Locate.String(),
			Err:     errors.New("action does not operate on a list of elements"),
		}
	}
	return x.classify(ctx, step, err)
}

// Texts returns the texts of els in order.
func (x *Executor) Texts(ctx context.Context, els []browser.Element) ([]string, error) {
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := x.page.Text(ctx, el)
		if err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, nil
}

// Attributes returns the value of attribute name for each of els, in order.
// The value of an element without the attribute is empty.
func (x *Executor) Attributes(ctx context.Context, els []browser.Element, name string) ([]string, error) {
	values := make([]string, 0, len(els))
	for _, el := range els {
		v, _, err := x.page.Attribute(ctx, el, name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Inject sets the value of el without waiting for it to be editable. Hidden
// fields like the reCAPTCHA response are filled this way.
func (x *Executor) Inject(ctx context.Context, el browser.Element, step types.Step, value string) error {
	return x.classify(ctx, step, x.page.SetValue(ctx, el, value))
}

func (x *Executor) precondition(ctx context.Context, state string, cond wait.Condition, timeout time.Duration) error {
	return wait.For(ctx, "element to be "+state, cond, timeout, x.interval)
}

func (x *Executor) selectValue(ctx context.Context, el browser.Element, value string, timeout time.Duration) error {
	if err := x.precondition(ctx, "visible", wait.ElementVisible(x.page, el), timeout); err != nil {
		return err
	}
	options, err := x.page.Options(ctx, el)
	if errors.Is(err, browser.ErrNotSelectable) {
		s, _ := x.page.State(ctx, el)
		return &types.Error{Kind: types.ErrActionFailed, Op: "select", Expected: "select", Actual: s.Tag, Err: err}
	}
	if err != nil {
		return err
	}
	if !slices.Contains(options, value) {
		return &types.Error{
			Kind:     types.ErrActionFailed,
			Op:       "select",
			Expected: value,
			Actual:   strings.Join(options, ","),
			Err:      errors.New("value is not one of the options"),
		}
	}
	return x.page.SetValue(ctx, el, value)
}

// assert polls get until its result matches the expectation of step. When it
// never does the last actual value is reported.
func (x *Executor) assert(ctx context.Context, step types.Step, timeout time.Duration, get func(context.Context) (string, error)) error {
	var actual string
	outcome, err := wait.Until(ctx, func(ctx context.Context) (bool, error) {
		v, err := get(ctx)
		if err != nil {
			return false, err
		}
		actual = v
		return step.Match.Matches(step.Expected, actual), nil
	}, timeout, x.interval)
	if outcome == wait.Satisfied {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	op := "text"
	if step.Action == types.ActionAssertAttribute {
		op = "attribute " + step.Attribute
	}
	if step.Match == types.MatchContains {
		op += " contains"
	}
	// err is the failure of the last evaluation, nil when it merely mismatched
	return &types.Error{Kind: types.ErrAssertionFailed, Op: op, Expected: step.Expected, Actual: actual, Err: err}
}

func (x *Executor) assertTexts(ctx context.Context, els []browser.Element, values []string) error {
	texts, err := x.Texts(ctx, els)
	if err != nil {
		return err
	}
	var unexpected, missing []string
	for _, t := range texts {
		if !slices.Contains(values, t) {
			unexpected = append(unexpected, t)
		}
	}
	for _, v := range values {
		if !slices.Contains(texts, v) {
			missing = append(missing, v)
		}
	}
	if len(unexpected) == 0 && len(missing) == 0 {
		return nil
	}
	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		problems = append(problems, "unexpected "+strings.Join(unexpected, ", "))
	}
	return &types.Error{
		Kind:     types.ErrAssertionFailed,
		Op:       "texts",
		Expected: strings.Join(values, ","),
		Actual:   strings.Join(texts, ","),
		Err:      errors.New(strings.Join(problems, "; ")),
	}
}

// classify makes sure every error leaving the executor carries a kind and
// the locator of the step.
func (x *Executor) classify(ctx context.Context, step types.Step, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var e *types.Error
	if !errors.As(err, &e) {
		e = &types.Error{Kind: types.ErrActionFailed, Op: string(step.Action), Err: err}
	}
	if e.Locator == "" {
		e.Locator = step.Locate.String()
	}
	return e
}
