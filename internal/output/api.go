package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jakopako/sitecheckr/internal/types"
)

// APIWriter represents a writer that posts reports in batches to a
// collecting API. Scenario reports go to Uri, probe reports to UriProbes.
type APIWriter struct {
	*WriterConfig
	client *http.Client
	logger *slog.Logger
}

// NewAPIWriter returns a new APIWriter
func NewAPIWriter(wc *WriterConfig) (*APIWriter, error) {
	if wc.Uri == "" {
		return nil, errors.New("uri needs to be specified for the APIWriter")
	}
	if wc.BatchSize == 0 {
		wc.BatchSize = 100 // default
	}
	return &APIWriter{
		WriterConfig: wc,
		client: &http.Client{
			Timeout: time.Second * 60,
		},
		logger: slog.With(slog.String("writer", string(API_WRITER_TYPE))),
	}, nil
}

func (w *APIWriter) WriteScenarios(reportChan <-chan types.ScenarioReport) {
	n := writeBatches(w, w.Uri, reportChan)
	if !w.DryRun {
		w.logger.Info(fmt.Sprintf("wrote %d scenario reports to the api", n))
	}
}

func (w *APIWriter) WriteProbes(reportChan <-chan types.ProbeReport) {
	if w.UriProbes == "" {
		n := drain(reportChan)
		w.logger.Warn(fmt.Sprintf("uri_probes is not set, dropped %d probe reports", n))
		return
	}
	n := writeBatches(w, w.UriProbes, reportChan)
	if !w.DryRun {
		w.logger.Info(fmt.Sprintf("wrote %d probe reports to the api", n))
	}
}

func writeBatches[T any](w *APIWriter, uri string, reportChan <-chan T) int {
	nrWritten := 0
	batch := []T{}
	for r := range reportChan {
		batch = append(batch, r)
		if len(batch) == w.BatchSize {
			nrWritten += w.writeBatch(uri, batch, len(batch))
			batch = []T{}
		}
	}
	if len(batch) > 0 {
		nrWritten += w.writeBatch(uri, batch, len(batch))
	}
	return nrWritten
}

func (w *APIWriter) writeBatch(uri string, batch any, size int) int {
	if w.DryRun {
		b, err := encodeIndented(batch)
		if err != nil {
			w.logger.Error(fmt.Sprintf("error while encoding batch: %v", err))
		} else {
			w.logger.Info(fmt.Sprintf("dry run, not posting %d reports to %s", size, uri))
			w.logger.Debug(string(b))
		}
		// in dry run mode we do not write anything to the api
		return 0
	}
	if err := w.persistBatch(uri, batch); err != nil {
		w.logger.Error(fmt.Sprintf("error while posting batch: %v", err))
		return 0
	}
	return size
}

func (w *APIWriter) persistBatch(uri string, batch any) error {
	reportsJSON, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", uri, bytes.NewBuffer(reportsJSON))
	if err != nil {
		return err
	}
	req.Header = map[string][]string{
		"Content-Type": {"application/json"},
	}
	req.SetBasicAuth(w.User, w.Password)
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug(fmt.Sprintf("post request body %s", reportsJSON))
		return fmt.Errorf("error while sending post request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error while reading post request response: %v", err)
		}
		return fmt.Errorf("error while adding new reports. Status Code: %d Response: %s", resp.StatusCode, body)
	}
	return nil
}
