package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildResultArchivePath returns the key of the parquet archive for one run:
// results/<label>/date=YYYY-MM-DD/<run-id>.parquet.
func BuildResultArchivePath(label, runID string, startedAt time.Time) (string, error) {
	if err := validatePathComponent(label, "run label"); err != nil {
		return "", err
	}
	if err := validatePathComponent(runID, "run id"); err != nil {
		return "", err
	}

	ts := startedAt.UTC()
	return path.Join(
		"results",
		label,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		runID+".parquet",
	), nil
}

// ExpandParquetKeys resolves dataset object references. A reference ending in
// "/" is a prefix and expands to every .parquet object below it; anything else
// is taken as an object key.
func ExpandParquetKeys(ctx context.Context, store ObjectStore, refs []string) ([]string, error) {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if !strings.HasSuffix(ref, "/") {
			keys = append(keys, ref)
			continue
		}
		objects, err := store.List(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", ref, err)
		}
		matched := 0
		for _, object := range objects {
			if strings.HasSuffix(object.Key, ".parquet") {
				keys = append(keys, object.Key)
				matched++
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("no parquet objects under %q: %w", ref, ErrObjectNotFound)
		}
	}
	return keys, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
