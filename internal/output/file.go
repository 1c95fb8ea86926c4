package output

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/jakopako/sitecheckr/internal/types"
)

const (
	scenariosFilename = "scenarios.json"
	probesFilename    = "probes.json"
)

// FileWriter represents a writer that writes all reports of a run to
// one json file per report kind.
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.FileDir == "" {
		return nil, errors.New("filedir needs to be specified for the FileWriter")
	}

	if err := os.MkdirAll(wc.FileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.FileDir, err)
	}

	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) WriteScenarios(reportChan <-chan types.ScenarioReport) {
	all := []types.ScenarioReport{}
	for r := range reportChan {
		all = append(all, r)
	}
	w.writeFile(scenariosFilename, all, len(all))
}

func (w *FileWriter) WriteProbes(reportChan <-chan types.ProbeReport) {
	all := []types.ProbeReport{}
	for r := range reportChan {
		all = append(all, r)
	}
	w.writeFile(probesFilename, all, len(all))
}

func (w *FileWriter) writeFile(name string, v any, n int) {
	filepath := path.Join(w.FileDir, name)
	b, err := encodeIndented(v)
	if err != nil {
		w.logger.Error(fmt.Sprintf("error while encoding reports: %v", err))
		return
	}
	if err := os.WriteFile(filepath, b, 0644); err != nil {
		w.logger.Error(fmt.Sprintf("error while writing reports to file: %v", err))
		return
	}
	w.logger.Info(fmt.Sprintf("wrote %d reports to file %s", n, filepath))
}
