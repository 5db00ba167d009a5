// Package task implements the queue-delivered task payload contract. The
// transport itself is an external at-least-once channel; this package only
// decodes messages and routes them to the pipeline.
package task

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

// ScrapeNewData loads newer scraped rows into the applicants table.
const ScrapeNewData = "scrape_new_data"

var ErrUnsupportedKind = errors.New("unsupported task kind")

// Message is the wire shape of one task request.
type Message struct {
	Kind    string  `json:"kind"`
	Payload Payload `json:"payload"`
}

// Payload carries the scrape_new_data arguments. When Records is omitted the
// records are read from DataFile (or the configured default file).
type Payload struct {
	Since    *string            `json:"since,omitempty"`
	Records  []domain.RawRecord `json:"records,omitempty"`
	DataFile string             `json:"data_file,omitempty"`
}

// Ingestor is the pipeline surface the dispatcher drives.
type Ingestor interface {
	IngestRecords(ctx context.Context, records []domain.RawRecord, since *string) (int, error)
}

// Dispatcher decodes task messages and routes them to their handlers.
type Dispatcher struct {
	ingestor        Ingestor
	defaultDataFile string
	logger          *zap.Logger
}

func NewDispatcher(ingestor Ingestor, defaultDataFile string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ingestor:        ingestor,
		defaultDataFile: defaultDataFile,
		logger:          logger,
	}
}

// Handle processes one raw task message body. Returns the number of rows
// inserted for ingestion tasks.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) (int, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return 0, fmt.Errorf("decode task message: %w", err)
	}
	if msg.Kind == "" {
		return 0, errors.New("task message is missing kind")
	}

	switch msg.Kind {
	case ScrapeNewData:
		return d.handleScrapeNewData(ctx, msg.Payload)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, msg.Kind)
	}
}

func (d *Dispatcher) handleScrapeNewData(ctx context.Context, payload Payload) (int, error) {
	records := payload.Records
	if records == nil {
		dataFile := payload.DataFile
		if dataFile == "" {
			dataFile = d.defaultDataFile
		}
		loaded, err := LoadRecordsFile(dataFile)
		if err != nil {
			return 0, err
		}
		records = loaded
	}

	d.logger.Info("dispatching scrape_new_data task",
		zap.Int("records", len(records)),
		zap.Stringp("since", payload.Since))
	return d.ingestor.IngestRecords(ctx, records, payload.Since)
}

// LoadRecordsFile reads scraper rows from a file holding either a JSON array
// or newline-delimited JSON objects.
func LoadRecordsFile(path string) ([]domain.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []domain.RawRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode data file %s: %w", path, err)
		}
		return records, nil
	}

	var records []domain.RawRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record domain.RawRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("decode data file %s: %w", path, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read data file %s: %w", path, err)
	}
	return records, nil
}
