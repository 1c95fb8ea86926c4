package action

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/browser/browsertest"
	"github.com/jakopako/sitecheckr/internal/types"
)

const (
	shortTimeout = 50 * time.Millisecond
	pollInterval = 10 * time.Millisecond
)

func setup(t *testing.T, url string) (*Executor, browser.Page) {
	t.Helper()
	p, err := browsertest.NewProvider().Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	x := NewExecutor(p, pollInterval)
	if err := x.Navigate(context.Background(), url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return x, p
}

func one(t *testing.T, p browser.Page, q types.ElementQuery) browser.Element {
	t.Helper()
	els, err := p.Query(context.Background(), q)
	if err != nil || len(els) != 1 {
		t.Fatalf("expected one match for %s, got %d (%v)", q, len(els), err)
	}
	return els[0]
}

func all(t *testing.T, p browser.Page, q types.ElementQuery) []browser.Element {
	t.Helper()
	els, err := p.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return els
}

func TestNavigateFailure(t *testing.T) {
	x, _ := setup(t, browsertest.HomeURL)
	err := x.Navigate(context.Background(), "https://www.sogeti.com/missing/")
	if types.KindOf(err) != types.ErrTransport {
		t.Fatalf("expected a transport error, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	x, p := setup(t, browsertest.ContactURL)
	ctx := context.Background()
	country := types.ID("country")

	if err := x.Perform(ctx, one(t, p, country), types.Select(country, "Germany"), shortTimeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	selected := one(t, p, types.XPath("//select[@id='country']/option[@selected]"))
	if v, _, _ := p.Attribute(ctx, selected, "value"); v != "Germany" {
		t.Fatalf("expected Germany to be selected, got %s", v)
	}

	err := x.Perform(ctx, one(t, p, country), types.Select(country, "Atlantis"), shortTimeout)
	if types.KindOf(err) != types.ErrActionFailed {
		t.Fatalf("expected an action failure for an absent option, got %v", err)
	}
	if !strings.Contains(err.Error(), "Atlantis") || !strings.Contains(err.Error(), "id=country") {
		t.Fatalf("expected the value and the locator in the message, got %s", err)
	}

	name := types.ID("first-name")
	err = x.Perform(ctx, one(t, p, name), types.Select(name, "Germany"), shortTimeout)
	if types.KindOf(err) != types.ErrActionFailed || !errors.Is(err, browser.ErrNotSelectable) {
		t.Fatalf("expected an action failure for a control that is not a select, got %v", err)
	}
}

func TestClickPrecondition(t *testing.T) {
	x, p := setup(t, browsertest.HomeURL)
	ctx := context.Background()
	automation := types.Text("a", "Automation")

	err := x.Perform(ctx, one(t, p, automation), types.Click(automation), shortTimeout)
	if types.StatusFromError(err) != types.StatusTimedOut {
		t.Fatalf("expected clicking a hidden link to time out, got %v", err)
	}

	services := types.Text("span", "Services")
	if err := x.Perform(ctx, one(t, p, services), types.Hover(services), shortTimeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := x.Perform(ctx, one(t, p, automation), types.Click(automation), shortTimeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u, _ := p.URL(ctx); u != browsertest.AutomationURL {
		t.Fatalf("expected to be on %s, got %s", browsertest.AutomationURL, u)
	}
}

func TestTypeAndScroll(t *testing.T) {
	x, p := setup(t, browsertest.ContactURL)
	ctx := context.Background()
	name := types.ID("first-name")
	el := one(t, p, name)
	if err := x.Perform(ctx, el, types.ScrollTo(name), shortTimeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := x.Perform(ctx, el, types.TypeText(name, "Ada"), shortTimeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := x.Perform(ctx, el, types.AssertAttribute(name, "value", "Ada", types.MatchEquals), shortTimeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	readonly := types.ID("customer-number")
	err := x.Perform(ctx, one(t, p, readonly), types.TypeText(readonly, "C-2"), shortTimeout)
	if types.StatusFromError(err) != types.StatusTimedOut {
		t.Fatalf("expected typing into a readonly field to time out, got %v", err)
	}
}

func TestAssertions(t *testing.T) {
	x, p := setup(t, browsertest.AutomationURL)
	ctx := context.Background()
	selected := types.XPath("//li[a[normalize-space(.)='Automation']]")
	services := types.XPath("//li[span[@id='services-menu']]")
	heading := types.XPath("//h1")

	tests := []struct {
		step types.Step
		kind types.ErrorKind
	}{
		{step: types.AssertAttribute(selected, "class", "selected", types.MatchEquals)},
		{step: types.AssertAttribute(services, "class", "selected", types.MatchContains)},
		{step: types.AssertAttribute(services, "class", "selected", types.MatchEquals), kind: types.ErrAssertionFailed},
		{step: types.AssertAttribute(heading, "class", "x", types.MatchEquals), kind: types.ErrAssertionFailed},
		{step: types.AssertText(heading, "Automation", types.MatchEquals)},
		{step: types.AssertText(heading, "Auto", types.MatchContains)},
		{step: types.AssertText(heading, "Testing", types.MatchEquals), kind: types.ErrAssertionFailed},
	}
	for _, tt := range tests {
		err := x.Perform(ctx, one(t, p, tt.step.Locate), tt.step, shortTimeout)
		if got := types.KindOf(err); got != tt.kind {
			t.Errorf("%s: expected kind '%s', got '%s' (%v)", tt.step.Label(), tt.kind, got, err)
		}
	}

	err := x.Perform(ctx, one(t, p, heading), types.AssertText(heading, "Testing", types.MatchEquals), shortTimeout)
	var e *types.Error
	if !errors.As(err, &e) || e.Expected != "Testing" || e.Actual != "Automation" {
		t.Fatalf("expected expected vs actual in the error, got %v", err)
	}
	if e.Err != nil {
		t.Fatalf("a plain mismatch should not carry a cause, got %v", e.Err)
	}

	// the failure of the last evaluation is kept as the cause
	err = x.Perform(ctx, one(t, p, heading), types.AssertAttribute(heading, "data-x", "x", types.MatchEquals), shortTimeout)
	if !errors.As(err, &e) || e.Err == nil || !strings.Contains(e.Err.Error(), "attribute data-x is absent") {
		t.Fatalf("expected the absent attribute as the cause, got %v", err)
	}
}

func TestPerformAll(t *testing.T) {
	x, p := setup(t, browsertest.HomeURL)
	ctx := context.Background()
	links := types.XPath("//div[@id='country-list-id']/ul/li/a")
	els := all(t, p, links)

	if err := x.PerformAll(ctx, els, types.AssertCount(links, len(browsertest.Countries))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := x.PerformAll(ctx, els, types.AssertCount(links, 3)); types.KindOf(err) != types.ErrAssertionFailed {
		t.Fatalf("expected an assertion failure, got %v", err)
	}
	if err := x.PerformAll(ctx, els, types.AssertTexts(links, browsertest.Countries...)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := x.PerformAll(ctx, els, types.AssertTexts(links, append([]string{"Atlantis"}, browsertest.Countries[1:]...)...))
	if types.KindOf(err) != types.ErrAssertionFailed {
		t.Fatalf("expected an assertion failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing Atlantis") || !strings.Contains(err.Error(), "unexpected Belgium") {
		t.Fatalf("expected missing and unexpected texts in the message, got %s", err)
	}

	hrefs, err := x.Attributes(ctx, els, "href")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hrefs) != len(browsertest.Countries) || hrefs[0] != browsertest.CountryURL("Belgium") {
		t.Fatalf("unexpected hrefs %v", hrefs)
	}
}

func TestPerformCancelled(t *testing.T) {
	x, p := setup(t, browsertest.HomeURL)
	automation := types.Text("a", "Automation")
	el := one(t, p, automation)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := x.Perform(ctx, el, types.Click(automation), time.Minute)
	if types.StatusFromError(err) != types.StatusAborted {
		t.Fatalf("expected an aborted status, got %v", err)
	}
}
