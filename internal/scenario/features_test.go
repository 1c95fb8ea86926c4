package scenario

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/browser/browsertest"
	"github.com/jakopako/sitecheckr/internal/types"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "scenario-runner",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "progress",
			Paths:    []string{"features"},
			Output:   io.Discard,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("feature tests failed")
	}
}

// featureState holds the state of one feature scenario.
type featureState struct {
	provider *browser.MockProvider
	scenario types.Scenario
	report   *types.ScenarioReport
}

func initializeScenario(ctx *godog.ScenarioContext) {
	state := &featureState{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		*state = featureState{}
		return ctx, nil
	})

	ctx.Step(`^the mock site$`, state.theMockSite)
	ctx.Step(`^a scenario "([^"]+)" with steps:$`, state.aScenarioWithSteps)
	ctx.Step(`^a scenario "([^"]+)" starting at "([^"]+)" with steps:$`, state.aScenarioStartingAtWithSteps)
	ctx.Step(`^the scenario expects the url "([^"]+)"$`, state.theScenarioExpectsTheURL)
	ctx.Step(`^the scenario runs$`, state.theScenarioRuns)
	ctx.Step(`^the step statuses are "([^"]+)"$`, state.theStepStatusesAre)
	ctx.Step(`^the scenario status is "([^"]+)"$`, state.theScenarioStatusIs)
	ctx.Step(`^no page is left open$`, state.noPageIsLeftOpen)
}

func (s *featureState) theMockSite() error {
	s.provider = browsertest.NewProvider()
	return nil
}

func (s *featureState) aScenarioWithSteps(name string, table *godog.Table) error {
	return s.aScenarioStartingAtWithSteps(name, "", table)
}

func (s *featureState) aScenarioStartingAtWithSteps(name, startURL string, table *godog.Table) error {
	steps, err := stepsFromTable(table)
	if err != nil {
		return err
	}
	s.scenario = types.Scenario{Name: name, StartURL: startURL, Steps: steps}
	return s.scenario.Validate()
}

// stepsFromTable reads steps from a table with the columns action, by,
// value, tag and input. input is the text to type, the value to select or
// the expected count.
func stepsFromTable(table *godog.Table) ([]types.Step, error) {
	if len(table.Rows) < 2 {
		return nil, fmt.Errorf("expected a header and at least one step")
	}
	cols := map[string]int{}
	for i, c := range table.Rows[0].Cells {
		cols[c.Value] = i
	}
	var steps []types.Step
	for _, row := range table.Rows[1:] {
		cell := map[string]string{}
		for name, i := range cols {
			cell[name] = strings.TrimSpace(row.Cells[i].Value)
		}
		q := types.ElementQuery{
			By:    types.Strategy(cell["by"]),
			Value: cell["value"],
			Tag:   cell["tag"],
		}
		input := cell["input"]
		var st types.Step
		switch action := types.ActionKind(cell["action"]); action {
		case types.ActionType:
			st = types.TypeText(q, input)
		case types.ActionSelect:
			st = types.Select(q, input)
		case types.ActionAssertCount:
			n, err := strconv.Atoi(input)
			if err != nil {
				return nil, fmt.Errorf("invalid count %q: %w", input, err)
			}
			st = types.AssertCount(q, n)
		default:
			st = types.Step{Action: action, Locate: q}
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func (s *featureState) theScenarioExpectsTheURL(pattern string) error {
	s.scenario.Expect.URL = pattern
	return nil
}

func (s *featureState) theScenarioRuns() error {
	r := NewRunner(s.provider, testSite())
	s.report = r.Run(context.Background(), s.scenario)
	return nil
}

func (s *featureState) theStepStatusesAre(list string) error {
	var got []string
	for _, st := range s.report.Statuses() {
		got = append(got, string(st))
	}
	if want := strings.Join(strings.Fields(strings.ReplaceAll(list, ",", " ")), ", "); strings.Join(got, ", ") != want {
		return fmt.Errorf("expected step statuses %s, got %s (%s)", want, strings.Join(got, ", "), s.report.Message)
	}
	return nil
}

func (s *featureState) theScenarioStatusIs(status string) error {
	if string(s.report.Status) != status {
		return fmt.Errorf("expected scenario status %s, got %s (%s)", status, s.report.Status, s.report.Message)
	}
	return nil
}

func (s *featureState) noPageIsLeftOpen() error {
	if n := s.provider.Open(); n != 0 {
		return fmt.Errorf("expected every page to be closed, %d still open", n)
	}
	return nil
}
