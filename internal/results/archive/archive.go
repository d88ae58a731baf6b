package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/storage"
)

type parquetResponse struct {
	RunID            string `parquet:"run_id"`
	RunLabel         string `parquet:"run_label"`
	Name             string `parquet:"name"`
	Kind             string `parquet:"kind"`
	Severity         string `parquet:"severity"`
	Result           bool   `parquet:"result"`
	Message          string `parquet:"message"`
	InputJSON        string `parquet:"input_json"`
	DetailsJSON      string `parquet:"details_json"`
	ExecutedAtUnixMs int64  `parquet:"executed_at_unix_ms"`
}

// Archive buffers the responses of one run and uploads them as a single
// parquet object when closed.
type Archive struct {
	store     storage.ObjectStore
	label     string
	runID     string
	startedAt time.Time

	mu     sync.Mutex
	rows   []parquetResponse
	closed bool
}

func New(store storage.ObjectStore, label, runID string, startedAt time.Time) (*Archive, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if _, err := storage.BuildResultArchivePath(label, runID, startedAt); err != nil {
		return nil, err
	}
	return &Archive{store: store, label: label, runID: runID, startedAt: startedAt}, nil
}

func (a *Archive) Append(_ context.Context, response expectation.Response) error {
	input, err := json.Marshal(response.Input)
	if err != nil {
		return fmt.Errorf("encode input for %q: %w", response.Name, err)
	}
	details, err := json.Marshal(response.Details)
	if err != nil {
		return fmt.Errorf("encode details for %q: %w", response.Name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("archive for run %s is closed", a.runID)
	}
	a.rows = append(a.rows, parquetResponse{
		RunID:            response.RunID,
		RunLabel:         response.RunLabel,
		Name:             response.Name,
		Kind:             string(response.Kind),
		Severity:         string(response.Severity),
		Result:           response.Result,
		Message:          response.Message,
		InputJSON:        string(input),
		DetailsJSON:      string(details),
		ExecutedAtUnixMs: response.ExecutedAt.UnixMilli(),
	})
	return nil
}

// Close encodes the buffered responses and uploads them. An archive with no
// responses uploads nothing and returns an empty key.
func (a *Archive) Close(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", nil
	}
	a.closed = true
	if len(a.rows) == 0 {
		return "", nil
	}

	data, err := encodeResponses(a.rows)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildResultArchivePath(a.label, a.runID, a.startedAt)
	if err != nil {
		return "", err
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		return "", fmt.Errorf("upload result archive: %w", err)
	}
	return info.Key, nil
}

func encodeResponses(rows []parquetResponse) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetResponse](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
