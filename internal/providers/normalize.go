package providers

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
)

// Layouts accepted for vendor timestamps. Layouts without a zone are read in
// the deployment's local zone.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z0700",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// ParseISOTime parses an ISO-8601 timestamp and returns it in loc.
func ParseISOTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// FromEpochMillis converts a Unix timestamp in milliseconds to a time in loc.
func FromEpochMillis(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc)
}

// parseTimestamp accepts either an ISO-8601 string or epoch milliseconds.
func parseTimestamp(v any, loc *time.Location) (*time.Time, error) {
	switch ts := v.(type) {
	case nil:
		return nil, nil
	case string:
		if ts == "" {
			return nil, nil
		}
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			t := FromEpochMillis(ms, loc)
			return &t, nil
		}
		t, err := ParseISOTime(ts, loc)
		if err != nil {
			return nil, err
		}
		return &t, nil
	case float64:
		t := FromEpochMillis(int64(ts), loc)
		return &t, nil
	case json.Number:
		ms, err := ts.Int64()
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", ts, err)
		}
		t := FromEpochMillis(ms, loc)
		return &t, nil
	case int64:
		t := FromEpochMillis(ts, loc)
		return &t, nil
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// statusTable maps raw vendor values to the internal vocabulary. Values
// missing from the table are Unprocessed.
type statusTable map[string]payment.TransactionStatus

func (t statusTable) lookup(raw string) payment.TransactionStatus {
	if s, ok := t[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return payment.Unprocessed
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func mapField(m map[string]any, key string) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key].(map[string]any)
	return v, ok
}

// normalizedData copies the vendor data object and overwrites the canonical
// keys so callers can read them from either the result or the data map.
func normalizedData(data map[string]any, status payment.TransactionStatus, reference string, paidAt *time.Time) map[string]any {
	out := make(map[string]any, len(data)+2)
	maps.Copy(out, data)
	out[payment.KeyStatus] = status
	if reference != "" {
		out[payment.KeyReference] = reference
	}
	if paidAt != nil {
		out[payment.KeyPaymentDate] = *paidAt
	}
	return out
}
