package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jakopako/sitecheckr/internal/types"
	"github.com/jakopako/sitecheckr/internal/utils"
	"github.com/olekukonko/tablewriter"
)

const summaryCellWidth = 60

// PrintScenarioSummary renders one table row per scenario report and a
// closing row with the totals.
func PrintScenarioSummary(w io.Writer, reports []types.ScenarioReport) error {
	table := tablewriter.NewWriter(w)
	table.Header("Scenario", "Status", "Steps", "Failed step", "Duration")

	rows := [][]string{}
	passed := 0
	var total time.Duration
	for _, r := range reports {
		ok := 0
		for _, s := range r.Steps {
			if s.Status == types.StatusSuccess {
				ok++
			}
		}
		failed := ""
		if fs, found := r.FailedStep(); found {
			failed = utils.ShortenString(fmt.Sprintf("%d %s: %s", fs.Index, fs.Name, fs.Message), summaryCellWidth)
		} else if r.Terminal != nil && r.Terminal.Status.Failed() {
			failed = utils.ShortenString("terminal: "+r.Terminal.Message, summaryCellWidth)
		} else if r.Message != "" && r.Status.Failed() {
			failed = utils.ShortenString(r.Message, summaryCellWidth)
		}
		if r.Passed() {
			passed++
		}
		d := r.Finished.Sub(r.Started)
		total += d
		rows = append(rows, []string{
			utils.ShortenString(r.Scenario, summaryCellWidth),
			string(r.Status),
			fmt.Sprintf("%d/%d", ok, len(r.Steps)),
			failed,
			d.Round(time.Millisecond).String(),
		})
	}
	rows = append(rows, []string{"total", fmt.Sprintf("%d/%d passed", passed, len(reports)), "", "", total.Round(time.Millisecond).String()})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// PrintProbeSummary renders one table row per probe report.
func PrintProbeSummary(w io.Writer, reports []types.ProbeReport) error {
	table := tablewriter.NewWriter(w)
	table.Header("Probe", "Status", "Latency", "OK", "Diagnostics")

	rows := [][]string{}
	for _, r := range reports {
		diag := r.Error
		if diag == "" && len(r.Diagnostics) > 0 {
			diag = r.Diagnostics[0]
			if len(r.Diagnostics) > 1 {
				diag = fmt.Sprintf("%s (+%d more)", diag, len(r.Diagnostics)-1)
			}
		}
		rows = append(rows, []string{
			utils.ShortenString(r.Name, summaryCellWidth),
			strconv.Itoa(r.StatusCode),
			r.Latency.Round(time.Millisecond).String(),
			strconv.FormatBool(r.OK),
			utils.ShortenString(diag, summaryCellWidth),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
