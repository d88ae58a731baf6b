package query

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const nullKey = "\x00null"

// NormalizeValue converts driver values into the scalar forms results carry:
// string, int64, float64, bool, nil, or a list of those.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(typed)
	case string, int64, float64, bool:
		return typed
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed > math.MaxInt64 {
			return float64(typed)
		}
		return int64(typed)
	case uint:
		return NormalizeValue(uint64(typed))
	case float32:
		return float64(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = NormalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func NormalizeRow(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = NormalizeValue(value)
	}
	return normalized
}

// ValueKey is the canonical text form used for set membership. Integers,
// integral floats and their decimal strings share one key.
func ValueKey(value any) string {
	switch typed := NormalizeValue(value).(type) {
	case nil:
		return nullKey
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1<<53 {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case []any:
		parts := make([]string, len(typed))
		for i, item := range typed {
			parts[i] = ValueKey(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(typed)
	}
}

// ValuesEqual compares two scalars, treating numbers by value.
func ValuesEqual(a, b any) bool {
	a = NormalizeValue(a)
	b = NormalizeValue(b)
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return ValueKey(a) == ValueKey(b) && isNil(a) == isNil(b)
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

func isNil(value any) bool {
	return value == nil
}

// AsInt64 reads a count-like value coming back from any of the drivers.
func AsInt64(value any) (int64, error) {
	switch typed := NormalizeValue(value).(type) {
	case int64:
		return typed, nil
	case float64:
		return int64(typed), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse integer %q: %w", typed, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("value %#v is not an integer", value)
	}
}

// ValueSet is an unordered set of scalar values.
type ValueSet struct {
	items map[string]any
}

func NewValueSet(values ...any) ValueSet {
	set := ValueSet{items: make(map[string]any, len(values))}
	for _, value := range values {
		set.Add(value)
	}
	return set
}

func NewStringSet(values ...string) ValueSet {
	set := ValueSet{items: make(map[string]any, len(values))}
	for _, value := range values {
		set.Add(value)
	}
	return set
}

func (s *ValueSet) Add(value any) {
	if s.items == nil {
		s.items = make(map[string]any)
	}
	key := ValueKey(value)
	if _, ok := s.items[key]; !ok {
		s.items[key] = NormalizeValue(value)
	}
}

func (s ValueSet) Contains(value any) bool {
	_, ok := s.items[ValueKey(value)]
	return ok
}

func (s ValueSet) Len() int {
	return len(s.items)
}

func (s ValueSet) SubsetOf(other ValueSet) bool {
	for key := range s.items {
		if _, ok := other.items[key]; !ok {
			return false
		}
	}
	return true
}

func (s ValueSet) Equal(other ValueSet) bool {
	return s.Len() == other.Len() && s.SubsetOf(other)
}

// Difference returns the values of s that are not in other.
func (s ValueSet) Difference(other ValueSet) ValueSet {
	out := NewValueSet()
	for key, value := range s.items {
		if _, ok := other.items[key]; !ok {
			out.items[key] = value
		}
	}
	return out
}

// Values returns the members ordered by their canonical key.
func (s ValueSet) Values() []any {
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make([]any, 0, len(keys))
	for _, key := range keys {
		values = append(values, s.items[key])
	}
	return values
}

func (s ValueSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *ValueSet) UnmarshalJSON(data []byte) error {
	var values []any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewValueSet(values...)
	return nil
}

func (s ValueSet) String() string {
	parts := make([]string, 0, len(s.items))
	for _, value := range s.Values() {
		parts = append(parts, ValueKey(value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
