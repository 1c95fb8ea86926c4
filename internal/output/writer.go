// Package output provides the interface and configuration and implementation for writers
package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jakopako/sitecheckr/internal/types"
)

// Writer defines the interface for all writers that are responsible
// for writing scenario and probe reports to a specific output.
type Writer interface {
	// WriteScenarios consumes reportChan until it is closed.
	WriteScenarios(reportChan <-chan types.ScenarioReport)
	// WriteProbes consumes reportChan until it is closed.
	WriteProbes(reportChan <-chan types.ProbeReport)
}

// WriterConfig defines the necessary paramters to make a new writer
// which is responsible for writing the reports to a specific output
// eg. stdout.
type WriterConfig struct {
	Type      WriterType `yaml:"type" env:"WRITER_TYPE" env-default:"stdout"`
	Uri       string     `yaml:"uri" env:"WRITER_URI"`
	UriProbes string     `yaml:"uri_probes" env:"WRITER_URI_PROBES"`
	User      string     `yaml:"user" env:"WRITER_USER"`         // we want to be able to pass credentials via env vars
	Password  string     `yaml:"password" env:"WRITER_PASSWORD"` // we want to be able to pass credentials via env vars
	FileDir   string     `yaml:"filedir" env:"WRITER_FILEDIR"`
	DryRun    bool       `yaml:"dryrun"`
	BatchSize int        `yaml:"batch_size,omitempty"`
}

// WriterType encapsulates the type of a writer
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE, "":
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}

// encodeIndented marshals v without escaping html characters.
// json.MarshalIndent would replace characters like '<' in step messages
// (which often contain locators) with their unicode escapes.
func encodeIndented(v any) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("error while indenting json: %w", err)
	}
	return indentBuffer.Bytes(), nil
}

func drain[T any](c <-chan T) int {
	n := 0
	for range c {
		n++
	}
	return n
}
