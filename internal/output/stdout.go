package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jakopako/sitecheckr/internal/types"
)

// StdoutWriter represents a writer that writes to stdout
type StdoutWriter struct {
	out    io.Writer
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		out:    os.Stdout,
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) WriteScenarios(reportChan <-chan types.ScenarioReport) {
	for r := range reportChan {
		b, err := encodeIndented(r)
		if err != nil {
			w.logger.Error(fmt.Sprintf("error while writing report of scenario '%s': %v", r.Scenario, err))
			continue
		}
		fmt.Fprint(w.out, string(b))
	}
}

func (w *StdoutWriter) WriteProbes(reportChan <-chan types.ProbeReport) {
	for r := range reportChan {
		b, err := encodeIndented(r)
		if err != nil {
			w.logger.Error(fmt.Sprintf("error while writing report of probe '%s': %v", r.Name, err))
			continue
		}
		fmt.Fprint(w.out, string(b))
	}
}
