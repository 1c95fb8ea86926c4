/*
sitecheckr runs declarative browser scenarios against a web site and probes
http apis, and reports which of them failed.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"sync"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/browser/browsertest"
	"github.com/jakopako/sitecheckr/internal/captcha"
	"github.com/jakopako/sitecheckr/internal/config"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/metrics"
	"github.com/jakopako/sitecheckr/internal/output"
	"github.com/jakopako/sitecheckr/internal/probe"
	"github.com/jakopako/sitecheckr/internal/scenario"
	"github.com/jakopako/sitecheckr/internal/types"
	"gopkg.in/yaml.v3"
)

var version = "dev"

const defaultDebugDir = "debug"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug' and store the html and a screenshot of pages where a scenario failed."`

	Run   RunCmd   `cmd:"" help:"Run the configured browser scenarios."`
	Probe ProbeCmd `cmd:"" help:"Run the configured http probes."`
	List  ListCmd  `cmd:"" help:"List the scenarios and probes in the given configuration file(s)."`
}

type ConfigFlags struct {
	Config  string `short:"c" default:"./config.yaml" help:"The location of the configuration. Can be a directory containing config files or a single config file." type:"path"`
	EnvFile string `short:"e" default:".env" help:"A file with environment variables that is loaded before reading the configuration, if it exists." type:"path"`
}

func (cf *ConfigFlags) load() (*config.Config, error) {
	if err := config.LoadEnv(cf.EnvFile); err != nil {
		return nil, err
	}
	return config.NewConfig(cf.Config)
}

type ReportFlags struct {
	Stdout      bool   `short:"o" help:"If set to true the reports will be written to stdout despite any other existing writer configurations."`
	DryRun      bool   `short:"D" help:"If set to true the reports will not be persisted (currently only has an effect on the APIWriter)."`
	Summary     bool   `short:"s" help:"Print a summary table once all reports are written."`
	MetricsFile string `help:"Write prometheus metrics of the run to this file in the textfile collector format." type:"path"`
}

func (rf *ReportFlags) writer(wc *output.WriterConfig) (output.Writer, error) {
	if rf.Stdout {
		wc.Type = output.STDOUT_WRITER_TYPE
	}
	if rf.DryRun {
		wc.DryRun = true
	}
	return output.NewWriter(wc)
}

func (rf *ReportFlags) writeMetrics(m *metrics.Metrics) {
	if rf.MetricsFile == "" {
		return
	}
	if err := m.WriteToTextfile(rf.MetricsFile); err != nil {
		slog.Error(fmt.Sprintf("error while writing metrics: %v", err))
		return
	}
	slog.Info(fmt.Sprintf("wrote metrics to file %s", rf.MetricsFile))
}

// signalContext is cancelled on SIGINT or SIGTERM. Scenarios that are running
// at that moment are reported as aborted.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type RunCmd struct {
	ConfigFlags `embed:""`
	ReportFlags `embed:""`
	Name string `short:"n" help:"The name of the scenario to be run, if only one of the configured ones should be run."`
	Mock bool   `short:"m" help:"Run against the built-in mock of the site instead of a real browser."`
}

func (rc *RunCmd) Run() error {
	config, err := rc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	scenarios := config.Scenarios
	if rc.Name != "" {
		s, found := config.Scenario(rc.Name)
		if !found {
			err := fmt.Errorf("no scenario found for name %s", rc.Name)
			slog.Error(err.Error())
			return err
		}
		scenarios = []types.Scenario{s}
	}
	if len(scenarios) == 0 {
		slog.Warn("no scenarios configured")
		return nil
	}

	if rc.Mock {
		config.Browser.Type = browser.MOCK_PROVIDER_TYPE
		if len(config.Browser.MockPages) == 0 {
			config.Browser.MockPages = browsertest.Pages()
		}
	}
	provider, err := browser.NewProvider(&config.Browser)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer provider.Cancel()

	writer, err := rc.writer(&config.Writer)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	m := metrics.New()
	opts := []scenario.Option{
		scenario.WithLinkChecker(probe.NewProber(&config.Probe)),
		scenario.WithRecorder(m),
	}
	debugDir := config.Runner.DebugDir
	if debugDir == "" && log.Debug {
		debugDir = defaultDebugDir
	}
	if debugDir != "" {
		opts = append(opts, scenario.WithDebugDir(debugDir))
	}
	if config.Captcha.Enabled() {
		slog.Info("captcha solving enabled")
		opts = append(opts, scenario.WithSolver(captcha.NewTwoCaptcha(&config.Captcha)))
	}
	runner := scenario.NewRunner(provider, config.Site, opts...)

	ctx, stop := signalContext()
	defer stop()

	// fill worker queue
	scenarioChan := make(chan types.Scenario)
	go func() {
		slog.Info(fmt.Sprintf("queueing %d scenarios", len(scenarios)))
		for _, s := range scenarios {
			scenarioChan <- s
		}
		close(scenarioChan)
	}()

	// start workers
	nrWorkers := min(config.Runner.Parallel, len(scenarios))
	slog.Info(fmt.Sprintf("running with %d threads", nrWorkers))

	workerWg := sync.WaitGroup{}
	workerWg.Add(nrWorkers)
	reportChan := make(chan types.ScenarioReport)
	slog.Debug("starting workers")
	for i := range nrWorkers {
		go func(j int) {
			defer workerWg.Done()
			worker(ctx, runner, scenarioChan, reportChan, j)
		}(i)
	}

	// start collector
	var reports []types.ScenarioReport
	collectorWg := sync.WaitGroup{}
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		slog.Debug("starting collector")
		reports = collect(reportChan, writer.WriteScenarios)
	}()

	workerWg.Wait()
	slog.Debug("all workers finished, closing report channel")
	close(reportChan)
	collectorWg.Wait()

	rc.writeMetrics(m)
	if rc.Summary {
		if err := output.PrintScenarioSummary(os.Stdout, reports); err != nil {
			slog.Error(fmt.Sprintf("error while printing summary: %v", err))
		}
	}

	failed := 0
	for _, r := range reports {
		if !r.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(reports))
	}
	return nil
}

func worker(ctx context.Context, runner *scenario.Runner, sc <-chan types.Scenario, rc chan<- types.ScenarioReport, threadNr int) {
	workerLogger := slog.With(slog.Int("thread", threadNr))
	for s := range sc {
		workerLogger.Info(fmt.Sprintf("starting scenario '%s'", s.Name))
		// the runner adds the scenario name and run id to the logger
		report := runner.Run(log.ContextWithLogger(ctx, workerLogger), s)
		if !report.Passed() {
			workerLogger.Error(fmt.Sprintf("%s: %s", s.Name, report.Message))
		}
		rc <- *report
	}
	workerLogger.Info("done working")
}

// collect passes every report on to write and returns all of them once
// reportChan is closed and write returned.
func collect[T any](reportChan <-chan T, write func(<-chan T)) []T {
	collectorLogger := slog.With(slog.String("collector", "main"))
	writerChan := make(chan T)
	writerWg := sync.WaitGroup{}
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		collectorLogger.Debug("starting writing reports")
		write(writerChan)
	}()

	var all []T
	for r := range reportChan {
		all = append(all, r)
		writerChan <- r
	}
	close(writerChan)
	writerWg.Wait()
	collectorLogger.Debug("done writing reports")
	return all
}

type ProbeCmd struct {
	ConfigFlags `embed:""`
	ReportFlags `embed:""`
	Name  string `short:"n" help:"The name of the probe to be run, if only one of the configured ones should be run."`
	Cases string `help:"A csv file with the columns Country, Postal Code and Place Name. Every row becomes a probe." type:"path"`
}

func (pc *ProbeCmd) Run() error {
	config, err := pc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	specs, err := config.ProbeSpecs(pc.Cases)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if pc.Name != "" {
		specs = slices.DeleteFunc(specs, func(s probe.Spec) bool { return s.Name != pc.Name })
		if len(specs) == 0 {
			err := fmt.Errorf("no probe found for name %s", pc.Name)
			slog.Error(err.Error())
			return err
		}
	}
	if len(specs) == 0 {
		slog.Warn("no probes configured")
		return nil
	}

	writer, err := pc.writer(&config.Writer)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	m := metrics.New()
	batch := probe.NewBatch(probe.NewProber(&config.Probe), &config.Probe, m)
	slog.Info(fmt.Sprintf("probing %d urls with up to %d requests in flight", len(specs), config.Probe.Concurrency))

	reportChan := make(chan types.ProbeReport)
	var batchErr error
	go func() {
		batchErr = batch.Run(ctx, specs, reportChan)
		close(reportChan)
	}()
	reports := collect(reportChan, writer.WriteProbes)

	pc.writeMetrics(m)
	if pc.Summary {
		if err := output.PrintProbeSummary(os.Stdout, reports); err != nil {
			slog.Error(fmt.Sprintf("error while printing summary: %v", err))
		}
	}

	if batchErr != nil {
		slog.Error(fmt.Sprintf("probing was interrupted: %v", batchErr))
		return batchErr
	}
	failed := 0
	for _, r := range reports {
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d probes failed", failed, len(reports))
	}
	return nil
}

type ListCmd struct {
	ConfigFlags `embed:""`
	Yaml bool `short:"y" help:"Print the resolved scenarios and probes as yaml instead of their names."`
}

func (lc *ListCmd) Run() error {
	config, err := lc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	specs, err := config.ProbeSpecs("")
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	if lc.Yaml {
		out := struct {
			Scenarios []types.Scenario `yaml:"scenarios"`
			Probes    []probe.Spec     `yaml:"probes"`
		}{config.Scenarios, specs}
		yamlData, err := yaml.Marshal(&out)
		if err != nil {
			slog.Error(fmt.Sprintf("error while marshalling. %v", err))
			return err
		}
		fmt.Print(string(yamlData))
		return nil
	}

	names := make([]string, 0, len(config.Scenarios))
	for _, s := range config.Scenarios {
		names = append(names, s.Name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("scenario\t%s\n", name)
	}
	names = names[:0]
	for _, s := range specs {
		names = append(names, s.Name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("probe\t%s\n", name)
	}
	return nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Name("sitecheckr"),
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	// not very nice that the log package contains global state,
	// and that the following function relies on the log.Debug variable being set
	log.InitializeDefaultLogger()

	err := ctx.Run()
	if errors.Is(err, context.Canceled) {
		slog.Warn("interrupted")
	}
	ctx.FatalIfErrorf(err)
}
