package types

import (
	"time"
)

// Status is the outcome of a Step, a terminal check or a whole Scenario.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusTimedOut        Status = "timed-out"
	StatusNotFound        Status = "element-not-found"
	StatusAmbiguous       Status = "element-ambiguous"
	StatusActionFailed    Status = "action-failed"
	StatusAssertionFailed Status = "assertion-failed"
	StatusTransportError  Status = "transport-error"
	StatusAborted         Status = "aborted"
	StatusSkipped         Status = "skipped"
)

// Failed reports whether the status denotes a failure. Skipped steps did not
// fail, they never ran.
func (s Status) Failed() bool {
	return s != StatusSuccess && s != StatusSkipped
}

// StatusFromError maps an error to the status reported for the step it
// occurred in. A nil error is a success.
func StatusFromError(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	switch KindOf(err) {
	case ErrElementNotFound:
		return StatusNotFound
	case ErrElementAmbiguous:
		return StatusAmbiguous
	case ErrTimeout:
		return StatusTimedOut
	case ErrAssertionFailed, ErrProbeFailed:
		return StatusAssertionFailed
	case ErrTransport:
		return StatusTransportError
	case ErrAborted:
		return StatusAborted
	default:
		return StatusActionFailed
	}
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Action   ActionKind    `json:"action"`
	Locator  string        `json:"locator,omitempty"`
	Status   Status        `json:"status"`
	Elapsed  time.Duration `json:"elapsed"`
	Message  string        `json:"message,omitempty"`
	Optional bool          `json:"optional,omitempty"`
}

// Fatal reports whether the result halts its scenario.
func (r StepResult) Fatal() bool {
	return r.Status.Failed() && !r.Optional
}

// CheckResult is the outcome of the terminal expectation of a Scenario.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// ScenarioReport collects the results of one Scenario run.
type ScenarioReport struct {
	ID       string       `json:"id"`
	Scenario string       `json:"scenario"`
	Status   Status       `json:"status"`
	Message  string       `json:"message,omitempty"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Steps    []StepResult `json:"steps"`
	Terminal *CheckResult `json:"terminal,omitempty"`
}

// Passed reports whether no fatal failure occurred.
func (r *ScenarioReport) Passed() bool {
	return r.Status == StatusSuccess
}

// FailedStep returns the first fatal step result, if any.
func (r *ScenarioReport) FailedStep() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Fatal() {
			return s, true
		}
	}
	return StepResult{}, false
}

// Statuses lists the step statuses in declaration order.
func (r *ScenarioReport) Statuses() []Status {
	st := make([]Status, 0, len(r.Steps))
	for _, s := range r.Steps {
		st = append(st, s.Status)
	}
	return st
}

// ProbeReport is the outcome of one named HTTP probe.
type ProbeReport struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	StatusCode  int           `json:"statusCode"`
	ContentType string        `json:"contentType,omitempty"`
	Latency     time.Duration `json:"latency"`
	OK          bool          `json:"ok"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Error       string        `json:"error,omitempty"`
	Checked     time.Time     `json:"checked"`
}
