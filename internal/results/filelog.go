package results

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
)

const maxLogLine = 64 << 20

// FileLog writes one JSON document per line to <dir>/<label>/<run-id>.jsonl.
type FileLog struct {
	dir string
	mu  sync.Mutex
}

func NewFileLog(dir string) (*FileLog, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("results dir is required")
	}
	return &FileLog{dir: dir}, nil
}

func (l *FileLog) Path(label, runID string) (string, error) {
	if err := validateComponent("label", label); err != nil {
		return "", err
	}
	if err := validateComponent("run id", runID); err != nil {
		return "", err
	}
	return filepath.Join(l.dir, label, runID+".jsonl"), nil
}

func (l *FileLog) Append(ctx context.Context, response expectation.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.Path(response.RunLabel, response.RunID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response %q: %w", response.Name, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results log: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("write results log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close results log: %w", err)
	}
	return nil
}

// ReadLog loads the responses written by FileLog. Input and Details come back
// as generic JSON values.
func ReadLog(path string) ([]expectation.Response, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results log: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	responses := make([]expectation.Response, 0)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var response expectation.Response
		if err := json.Unmarshal([]byte(line), &response); err != nil {
			return nil, fmt.Errorf("decode results log line %d: %w", lineNo, err)
		}
		responses = append(responses, response)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}
	return responses, nil
}

func validateComponent(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidPath, name)
	}
	if value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%w: %s %q", ErrInvalidPath, name, value)
	}
	return nil
}
