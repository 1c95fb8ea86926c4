// Package scenario runs scenarios step by step on an exclusively owned page.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/sitecheckr/internal/action"
	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/locate"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
	"github.com/jakopako/sitecheckr/internal/utils"
	"github.com/jakopako/sitecheckr/internal/wait"
	"golang.org/x/sync/errgroup"
)

// RecaptchaResponseID is the id of the textarea a solved reCAPTCHA token is
// injected into.
const RecaptchaResponseID = "g-recaptcha-response"

const linkCheckConcurrency = 4

// LinkChecker verifies that a url answers with the given status code.
type LinkChecker interface {
	CheckLink(ctx context.Context, url string, status int) error
}

// Solver solves a CAPTCHA challenge of a page.
type Solver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
}

// Recorder observes finished steps and scenarios.
type Recorder interface {
	ObserveStep(scenario string, r types.StepResult)
	ObserveScenario(r *types.ScenarioReport)
}

// Runner runs scenarios. Every Run acquires its own page, so a Runner may be
// used by several goroutines at once.
type Runner struct {
	provider browser.Provider
	site     types.SiteConfig
	links    LinkChecker
	solver   Solver
	recorder Recorder
	debugDir string
}

type Option func(*Runner)

func WithLinkChecker(lc LinkChecker) Option {
	return func(r *Runner) { r.links = lc }
}

func WithSolver(s Solver) Option {
	return func(r *Runner) { r.solver = s }
}

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithDebugDir makes the runner dump the html and a screenshot of the page
// to dir when a scenario fails.
func WithDebugDir(dir string) Option {
	return func(r *Runner) { r.debugDir = dir }
}

func NewRunner(p browser.Provider, site types.SiteConfig, opts ...Option) *Runner {
	r := &Runner{provider: p, site: site}
	for _, o := range opts {
		o(r)
	}
	return r
}

// run is the state of a single scenario run.
type run struct {
	*Runner
	page     browser.Page
	resolver *locate.Resolver
	executor *action.Executor
	logger   *slog.Logger
}

// Run executes the steps of sc in order. It never retries: a failed fatal step
// halts the scenario and the remaining steps are reported as skipped. The
// report always holds one result per declared step.
func (r *Runner) Run(ctx context.Context, sc types.Scenario) *types.ScenarioReport {
	report := &types.ScenarioReport{
		ID:       uuid.NewString(),
		Scenario: sc.Name,
		Started:  time.Now(),
		Steps:    make([]types.StepResult, len(sc.Steps)),
	}
	for i, st := range sc.Steps {
		report.Steps[i] = types.StepResult{
			Index:    i,
			Name:     st.Label(),
			Action:   st.Action,
			Locator:  st.Locate.String(),
			Status:   types.StatusSkipped,
			Optional: st.Optional,
		}
	}
	logger := log.LoggerFromContext(ctx).With(slog.String("scenario", sc.Name), slog.String("run", report.ID))
	ctx = log.ContextWithLogger(ctx, logger)
	defer func() {
		report.Finished = time.Now()
		if r.recorder != nil {
			r.recorder.ObserveScenario(report)
		}
		logger.Info("scenario finished", slog.String("status", string(report.Status)), slog.Duration("took", report.Finished.Sub(report.Started)))
	}()

	page, err := r.provider.Acquire(ctx)
	if err != nil {
		report.Status = types.StatusTransportError
		if ctx.Err() != nil {
			report.Status = types.StatusAborted
		}
		report.Message = err.Error()
		return report
	}
	defer page.Close()

	ru := &run{
		Runner:   r,
		page:     page,
		resolver: locate.NewResolver(page),
		executor: action.NewExecutor(page, r.site.PollInterval),
		logger:   logger,
	}

	startURL := sc.StartURL
	if startURL == "" {
		startURL = r.site.HomepageURL
	}
	if err := ru.executor.Navigate(ctx, startURL); err != nil {
		report.Status = types.StatusFromError(err)
		report.Message = err.Error()
		logger.Error("failed to open start page", slog.String("url", startURL), slog.String("err", err.Error()))
		return report
	}

	for i, st := range sc.Steps {
		if ctx.Err() != nil {
			report.Status = types.StatusAborted
			report.Message = fmt.Sprintf("aborted before step %d (%s)", i, st.Label())
			return report
		}
		res := &report.Steps[i]
		start := time.Now()
		err := ru.step(ctx, st)
		res.Elapsed = time.Since(start)
		res.Status = types.StatusFromError(err)
		if err != nil {
			res.Message = err.Error()
		}
		// a run deadline ending the step is an abort, not a step timeout
		if err != nil && ctx.Err() != nil {
			res.Status = types.StatusAborted
		}
		if r.recorder != nil {
			r.recorder.ObserveStep(sc.Name, *res)
		}

		switch {
		case res.Status == types.StatusAborted:
			logger.Warn("step aborted", slog.Int("step", i), slog.String("label", res.Name))
			report.Status = types.StatusAborted
			report.Message = fmt.Sprintf("step %d (%s) aborted", i, res.Name)
			return report
		case res.Fatal():
			logger.Error("step failed", slog.Int("step", i), slog.String("label", res.Name), slog.String("status", string(res.Status)), slog.String("err", res.Message))
			report.Status = res.Status
			report.Message = fmt.Sprintf("step %d (%s) failed: %s", i, res.Name, res.Message)
			ru.dumpDebug(ctx, sc.Name, report.ID)
			return report
		case res.Status.Failed():
			logger.Warn("optional step failed", slog.Int("step", i), slog.String("label", res.Name), slog.String("err", res.Message))
		default:
			logger.Debug("step succeeded", slog.Int("step", i), slog.String("label", res.Name), slog.Duration("took", res.Elapsed))
		}
	}

	report.Status = types.StatusSuccess
	if !sc.Expect.IsZero() {
		report.Terminal = ru.terminal(ctx, sc.Expect)
		if report.Terminal.Status != types.StatusSuccess {
			report.Status = report.Terminal.Status
			report.Message = "terminal check failed: " + report.Terminal.Message
			if report.Status != types.StatusAborted {
				ru.dumpDebug(ctx, sc.Name, report.ID)
			}
		}
	}
	return report
}

func (ru *run) step(ctx context.Context, st types.Step) error {
	timeout := ru.site.TimeoutFor(st)
	switch st.Action {
	case types.ActionNavigate:
		return ru.executor.Navigate(ctx, st.URL)
	case types.ActionSolveCaptcha:
		return ru.solveCaptcha(ctx, st, timeout)
	}

	if err := locate.Check(st.Locate); err != nil {
		return err
	}
	present := wait.For(ctx, "element "+st.Locate.String(), wait.Present(ru.page, st.Locate), timeout, ru.site.PollInterval)
	if present != nil && !wait.IsTimeout(present) {
		return present
	}
	if st.Action.ToleratesList() {
		els, err := ru.resolver.ResolveAll(ctx, st.Locate)
		if err != nil {
			return err
		}
		if st.Action == types.ActionCheckLinks {
			return ru.checkLinks(ctx, els, st)
		}
		return ru.executor.PerformAll(ctx, els, ru.withDefaults(st))
	}
	// after a timed out wait the resolver tells a missing element from a broken query
	el, err := ru.resolver.Resolve(ctx, st.Locate)
	if err != nil {
		return err
	}
	return ru.executor.Perform(ctx, el, st, timeout)
}

// withDefaults fills in the configured expected countries for list
// assertions declared without explicit expectations.
func (ru *run) withDefaults(st types.Step) types.Step {
	switch st.Action {
	case types.ActionAssertTexts:
		if len(st.Values) == 0 {
			st.Values = ru.site.ExpectedCountries
		}
	case types.ActionAssertCount:
		if st.Count == nil {
			n := len(ru.site.ExpectedCountries)
			st.Count = &n
		}
	}
	return st
}

func (ru *run) checkLinks(ctx context.Context, els []browser.Element, st types.Step) error {
	if ru.links == nil {
		return &types.Error{Kind: types.ErrActionFailed, Op: "check links", Err: errors.New("no link checker configured")}
	}
	if len(els) == 0 {
		return &types.Error{Kind: types.ErrAssertionFailed, Op: "check links", Expected: "links", Actual: "none"}
	}
	hrefs, err := ru.executor.Attributes(ctx, els, "href")
	if err != nil {
		return err
	}
	base, err := ru.page.URL(ctx)
	if err != nil {
		return err
	}
	status := st.Status
	if status == 0 {
		status = 200
	}

	errs := make([]error, len(els))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(linkCheckConcurrency)
	for i, href := range hrefs {
		if strings.TrimSpace(href) == "" {
			text, _ := ru.page.Text(ctx, els[i])
			errs[i] = &types.Error{
				Kind:    types.ErrAssertionFailed,
				Op:      "check links",
				Locator: st.Locate.String(),
				Err:     fmt.Errorf("link '%s' has no href", text),
			}
			continue
		}
		g.Go(func() error {
			target, err := resolveURL(base, href)
			if err == nil {
				ru.logger.Debug("checking link", slog.String("url", target))
				err = ru.links.CheckLink(gctx, target, status)
			}
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", href, err)
			}
			return nil
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var failed []error
	transportOnly := true
	for _, err := range errs {
		if err == nil {
			continue
		}
		failed = append(failed, err)
		if types.KindOf(err) != types.ErrTransport {
			transportOnly = false
		}
	}
	if len(failed) == 0 {
		return nil
	}
	kind := types.ErrAssertionFailed
	if transportOnly {
		kind = types.ErrTransport
	}
	return &types.Error{
		Kind:     kind,
		Op:       "check links",
		Expected: fmt.Sprintf("%d links answering %d", len(els), status),
		Actual:   fmt.Sprintf("%d failing", len(failed)),
		Err:      errors.Join(failed...),
	}
}

func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

func (ru *run) solveCaptcha(ctx context.Context, st types.Step, timeout time.Duration) error {
	if ru.solver == nil {
		return &types.Error{Kind: types.ErrActionFailed, Op: "solve captcha", Err: errors.New("no captcha solver configured")}
	}
	target := st.Locate
	if target.IsZero() {
		target = types.ID(RecaptchaResponseID)
	}
	if err := wait.For(ctx, "element "+target.String(), wait.Present(ru.page, target), timeout, ru.site.PollInterval); err != nil {
		if wait.IsTimeout(err) {
			return &types.Error{Kind: types.ErrElementNotFound, Op: "resolve", Locator: target.String(), Err: err}
		}
		return err
	}
	el, err := ru.resolver.Resolve(ctx, target)
	if err != nil {
		return err
	}
	pageURL, err := ru.page.URL(ctx)
	if err != nil {
		return err
	}
	token, err := ru.solver.Solve(ctx, st.SiteKey, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var e *types.Error
		if errors.As(err, &e) {
			return err
		}
		return &types.Error{Kind: types.ErrActionFailed, Op: "solve captcha", Err: err}
	}
	ru.logger.Debug("captcha solved, injecting token")
	return ru.executor.Inject(ctx, el, st, token)
}

// terminal waits for the expected terminal condition of a scenario.
func (ru *run) terminal(ctx context.Context, exp types.Expectation) *types.CheckResult {
	var conds []wait.Condition
	if exp.URL != "" {
		re, err := wait.CompilePattern(exp.URL)
		if err != nil {
			return &types.CheckResult{Status: types.StatusActionFailed, Message: err.Error()}
		}
		conds = append(conds, wait.URLMatches(ru.page, re))
	}
	if exp.Text != "" {
		conds = append(conds, wait.TextPresent(ru.page, exp.Text))
	}
	all := func(ctx context.Context) (bool, error) {
		for _, c := range conds {
			if ok, err := c(ctx); !ok || err != nil {
				return false, err
			}
		}
		return true, nil
	}
	outcome, err := wait.Until(ctx, all, ru.site.StandardTimeout, ru.site.PollInterval)
	if outcome == wait.Satisfied {
		return &types.CheckResult{Status: types.StatusSuccess}
	}
	if ctx.Err() != nil {
		return &types.CheckResult{Status: types.StatusAborted, Message: ctx.Err().Error()}
	}
	var problems []string
	if exp.URL != "" {
		u, _ := ru.page.URL(ctx)
		problems = append(problems, fmt.Sprintf("expected url %q, got %q", exp.URL, u))
	}
	if exp.Text != "" {
		problems = append(problems, fmt.Sprintf("expected text %q on the page", exp.Text))
	}
	if err != nil {
		problems = append(problems, err.Error())
	}
	return &types.CheckResult{Status: types.StatusAssertionFailed, Message: strings.Join(problems, "; ")}
}

// dumpDebug writes the html and a screenshot of the page to the debug
// directory.
func (ru *run) dumpDebug(ctx context.Context, scenario, id string) {
	if ru.debugDir == "" {
		return
	}
	if err := os.MkdirAll(ru.debugDir, os.ModePerm); err != nil {
		ru.logger.Warn(fmt.Sprintf("failed to create debug directory: %v", err))
		return
	}
	base := filepath.Join(ru.debugDir, fmt.Sprintf("%s-%s", utils.Slug(scenario), id[:8]))
	if body, err := ru.page.HTML(ctx); err == nil {
		ru.logger.Debug(fmt.Sprintf("writing html to file %s.html", base))
		if err := os.WriteFile(base+".html", []byte(body), 0644); err != nil {
			ru.logger.Warn(fmt.Sprintf("failed to write html file: %v", err))
		}
	}
	buf, err := ru.page.Screenshot(ctx)
	if err != nil {
		ru.logger.Debug(fmt.Sprintf("no screenshot taken: %v", err))
		return
	}
	ru.logger.Debug(fmt.Sprintf("writing screenshot to file %s.png", base))
	if err := os.WriteFile(base+".png", buf, 0644); err != nil {
		ru.logger.Warn(fmt.Sprintf("failed to write screenshot: %v", err))
	}
}
