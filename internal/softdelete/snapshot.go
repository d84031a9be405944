package softdelete

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Snapshot is the flat JSON image of a record's business fields captured at
// delete time. It never holds the deletion bookkeeping fields.
type Snapshot map[string]any

var bookkeepingFields = []string{"is_deleted", "deleted_at"}

// Put stores value under field in its JSON-safe form. Timestamps become
// RFC 3339 strings, decimals keep their exact digits as strings, UUIDs and
// references to other records collapse to their key.
func (s Snapshot) Put(field string, value any) Snapshot {
	s[field] = jsonSafe(value)
	return s
}

// PutDate stores a calendar date as YYYY-MM-DD, or null.
func (s Snapshot) PutDate(field string, value *time.Time) Snapshot {
	if value == nil {
		s[field] = nil
		return s
	}
	s[field] = value.Format(dateLayout)
	return s
}

func jsonSafe(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return v.String()
	case *uuid.UUID:
		if v == nil {
			return nil
		}
		return v.String()
	case decimal.Decimal:
		return v.String()
	case *decimal.Decimal:
		if v == nil {
			return nil
		}
		return v.String()
	case EntityRef:
		if v.IsZero() {
			return nil
		}
		if id, ok := v.IntID(); ok {
			return id
		}
		return v.Key()
	case *int64:
		if v == nil {
			return nil
		}
		return *v
	case *string:
		if v == nil {
			return nil
		}
		return *v
	default:
		return v
	}
}

// Validate rejects snapshots that would resurrect bookkeeping state on restore.
func (s Snapshot) Validate() error {
	for _, field := range bookkeepingFields {
		if _, exists := s[field]; exists {
			return fmt.Errorf("%w: snapshot carries bookkeeping field %q", ErrInconsistentState, field)
		}
	}
	return nil
}

// Clone copies the top-level fields; nested values are shared.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Snapshot) lookup(field string) (any, bool, error) {
	value, exists := s[field]
	if !exists {
		return nil, false, fmt.Errorf("%w: snapshot field %q missing", ErrInconsistentState, field)
	}
	return value, value != nil, nil
}

func (s Snapshot) Text(field string) (string, error) {
	value, present, err := s.lookup(field)
	if err != nil || !present {
		return "", err
	}
	text, ok := value.(string)
	if !ok {
		return "", fieldTypeError(field, "string", value)
	}
	return text, nil
}

func (s Snapshot) OptText(field string) (*string, error) {
	value, present, err := s.lookup(field)
	if err != nil || !present {
		return nil, err
	}
	text, ok := value.(string)
	if !ok {
		return nil, fieldTypeError(field, "string", value)
	}
	return &text, nil
}

func (s Snapshot) Time(field string) (time.Time, error) {
	text, err := s.Text(field)
	if err != nil {
		return time.Time{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, fieldTypeError(field, "timestamp", text)
	}
	return parsed, nil
}

func (s Snapshot) OptDate(field string) (*time.Time, error) {
	text, err := s.OptText(field)
	if err != nil || text == nil {
		return nil, err
	}
	parsed, err := time.Parse(dateLayout, *text)
	if err != nil {
		return nil, fieldTypeError(field, "date", *text)
	}
	return &parsed, nil
}

func (s Snapshot) Int64(field string) (int64, error) {
	value, err := s.OptInt64(field)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, fieldTypeError(field, "integer", nil)
	}
	return *value, nil
}

// OptInt64 accepts the number shapes a snapshot takes before and after a
// JSON round trip.
func (s Snapshot) OptInt64(field string) (*int64, error) {
	value, present, err := s.lookup(field)
	if err != nil || !present {
		return nil, err
	}

	var out int64
	switch v := value.(type) {
	case int64:
		out = v
	case int:
		out = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fieldTypeError(field, "integer", value)
		}
		out = int64(v)
	case json.Number:
		parsed, parseErr := strconv.ParseInt(v.String(), 10, 64)
		if parseErr != nil {
			return nil, fieldTypeError(field, "integer", value)
		}
		out = parsed
	default:
		return nil, fieldTypeError(field, "integer", value)
	}
	return &out, nil
}

func (s Snapshot) UUID(field string) (uuid.UUID, error) {
	value, err := s.OptUUID(field)
	if err != nil {
		return uuid.Nil, err
	}
	if value == nil {
		return uuid.Nil, fieldTypeError(field, "uuid", nil)
	}
	return *value, nil
}

func (s Snapshot) OptUUID(field string) (*uuid.UUID, error) {
	text, err := s.OptText(field)
	if err != nil || text == nil {
		return nil, err
	}
	parsed, err := uuid.Parse(*text)
	if err != nil {
		return nil, fieldTypeError(field, "uuid", *text)
	}
	return &parsed, nil
}

func (s Snapshot) Decimal(field string) (decimal.Decimal, error) {
	text, err := s.Text(field)
	if err != nil {
		return decimal.Zero, err
	}
	parsed, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fieldTypeError(field, "decimal", text)
	}
	return parsed, nil
}

func fieldTypeError(field string, want string, got any) error {
	return fmt.Errorf("%w: snapshot field %q is not a %s (%v)", ErrInconsistentState, field, want, got)
}
