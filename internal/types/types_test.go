package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestElementQueryXPath(t *testing.T) {
	tests := []struct {
		query    ElementQuery
		expected string
	}{
		{ID("CookieConsent"), "//*[@id='CookieConsent']"},
		{XPath("//span[text()='Services']"), "//span[text()='Services']"},
		{Class("page-heading"), "//*[contains(concat(' ', normalize-space(@class), ' '), ' page-heading ')]"},
		{Text("a", "Automation"), "//a[normalize-space(.)='Automation']"},
		{Text("", "Worldwide"), "//*[normalize-space(.)='Worldwide']"},
		{Text("a", "Don't"), `//a[normalize-space(.)="Don't"]`},
		{Text("a", `It's "x"`), `//a[normalize-space(.)=concat('It', "'", 's "x"')]`},
	}
	for _, tt := range tests {
		x, err := tt.query.XPath()
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.query, err)
		}
		if x != tt.expected {
			t.Errorf("XPath(%s) = %q; want %q", tt.query, x, tt.expected)
		}
	}
}

func TestElementQueryXPathCSS(t *testing.T) {
	if _, err := CSS("div.form").XPath(); err == nil {
		t.Fatal("expected an error for a css query")
	}
}

func TestElementQueryValidate(t *testing.T) {
	if err := (ElementQuery{By: "name", Value: "q"}).Validate(); err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
	if err := ID(" ").Validate(); err == nil {
		t.Fatal("expected an error for an empty value")
	}
	if err := Class("Form__MainBody").Validate(); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
}

func TestStepValidate(t *testing.T) {
	tests := []struct {
		step  Step
		valid bool
	}{
		{Click(ID("submit")), true},
		{Click(ElementQuery{}), false},
		{TypeText(ID("first-name"), ""), false},
		{TypeText(ID("first-name"), "John"), true},
		{Select(ID("country"), ""), false},
		{Select(ID("country"), "Germany"), true},
		{AssertAttribute(ID("x"), "", "selected", MatchContains), false},
		{AssertAttribute(ID("x"), "class", "selected", MatchContains), true},
		{AssertAttribute(ID("x"), "class", "selected", "like"), false},
		{AssertCount(XPath("//li/a"), 12), true},
		{AssertCount(XPath("//li/a"), -1), false},
		{Navigate(""), false},
		{Navigate("https://www.sogeti.com/"), true},
		{SolveCaptcha(""), false},
		{SolveCaptcha("6LexQgoa"), true},
		{Click(ID("submit")).WithTimeout(-1), false},
		{Step{Action: "drag", Locate: ID("x")}, false},
	}
	for i, tt := range tests {
		err := tt.step.Validate()
		if tt.valid && err != nil {
			t.Errorf("test %d: expected %s to be valid, got %v", i, tt.step.Label(), err)
		}
		if !tt.valid && err == nil {
			t.Errorf("test %d: expected %s to be invalid", i, tt.step.Label())
		}
	}
}

func TestStepCopiesAreIndependent(t *testing.T) {
	s := Click(ID("accept"))
	o := s.AsOptional().Named("accept cookies")
	if s.Optional || s.Name != "" {
		t.Fatal("modifying a copy must not change the original step")
	}
	if !o.Optional || o.Label() != "accept cookies" {
		t.Fatalf("unexpected copy %+v", o)
	}
}

func TestStepLabel(t *testing.T) {
	if l := Hover(Text("span", "Services")).Label(); l != "hover text=<span>Services" {
		t.Fatalf("unexpected label %q", l)
	}
	if l := Navigate("https://x.test").Label(); l != "navigate https://x.test" {
		t.Fatalf("unexpected label %q", l)
	}
}

func TestScenarioValidate(t *testing.T) {
	sc := Scenario{
		Name:  "contact",
		Steps: []Step{Click(ID("a")), TypeText(ID("b"), ""), Select(ID("c"), "")},
	}
	err := sc.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "step 1") || !strings.Contains(err.Error(), "step 2") {
		t.Fatalf("expected every invalid step to be reported, got %v", err)
	}
	if err := (Scenario{Steps: []Step{Click(ID("a"))}}).Validate(); err == nil {
		t.Fatal("expected an error for a missing name")
	}
}

func TestMatchMode(t *testing.T) {
	if !MatchContains.Matches("selected", "menu-item selected") {
		t.Fatal("expected contains to match")
	}
	if MatchEquals.Matches("selected", "menu-item selected") {
		t.Fatal("expected equals not to match")
	}
	if !MatchMode("").Matches("Automation", " Automation ") {
		t.Fatal("expected the default mode to compare trimmed strings")
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("step 2: %w", &Error{Kind: ErrElementNotFound, Locator: "id=x"})
	if k := KindOf(wrapped); k != ErrElementNotFound {
		t.Fatalf("expected %s, got %s", ErrElementNotFound, k)
	}
	if k := KindOf(context.Canceled); k != ErrAborted {
		t.Fatalf("expected %s, got %s", ErrAborted, k)
	}
	if k := KindOf(errors.New("boom")); k != ErrActionFailed {
		t.Fatalf("expected %s, got %s", ErrActionFailed, k)
	}
	if KindOf(nil) != "" {
		t.Fatal("expected no kind for a nil error")
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err      error
		expected Status
	}{
		{nil, StatusSuccess},
		{NewError(ErrElementNotFound, "resolve", nil), StatusNotFound},
		{NewError(ErrElementAmbiguous, "resolve", nil), StatusAmbiguous},
		{NewError(ErrTimeout, "wait", nil), StatusTimedOut},
		{NewError(ErrAssertionFailed, "assert", nil), StatusAssertionFailed},
		{NewError(ErrTransport, "get", nil), StatusTransportError},
		{context.Canceled, StatusAborted},
		{errors.New("cdp: node not found"), StatusActionFailed},
	}
	for _, tt := range tests {
		if s := StatusFromError(tt.err); s != tt.expected {
			t.Errorf("StatusFromError(%v) = %s; want %s", tt.err, s, tt.expected)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: ErrAssertionFailed, Op: "assert-attribute class", Locator: "id=menu", Expected: "selected", Actual: "menu-item"}
	expected := `assertion-failed: assert-attribute class [id=menu]: expected "selected", got "menu-item"`
	if err.Error() != expected {
		t.Fatalf("expected '%s', but got '%s'", expected, err.Error())
	}
}

func TestScenarioReport(t *testing.T) {
	r := &ScenarioReport{Steps: []StepResult{
		{Index: 0, Status: StatusNotFound, Optional: true},
		{Index: 1, Status: StatusSuccess},
		{Index: 2, Status: StatusAssertionFailed},
		{Index: 3, Status: StatusSkipped},
	}}
	s, ok := r.FailedStep()
	if !ok || s.Index != 2 {
		t.Fatalf("expected step 2 to be the first fatal step, got %+v", s)
	}
	if len(r.Statuses()) != 4 {
		t.Fatalf("expected 4 statuses, got %d", len(r.Statuses()))
	}
}
