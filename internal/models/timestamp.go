package models

import (
	"fmt"
	"math"
	"time"
)

// ParseTime normalizes the heterogeneous timestamp shapes that arrive
// from external persistence layers (native times, ISO strings, unix
// seconds or milliseconds) into a single comparable time.Time.
//
// Supported inputs:
//   - time.Time / *time.Time
//   - string / []byte: RFC 3339 (with or without fractional seconds),
//     "2006-01-02 15:04:05", or a bare "2006-01-02" date
//   - int64 / int / float64: unix seconds or unix milliseconds,
//     disambiguated by magnitude
//   - nil: the zero time (treated as watermark = -inf by callers)
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	case int64:
		return fromUnix(t), nil
	case int:
		return fromUnix(int64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, fmt.Errorf("invalid numeric timestamp: %v", t)
		}
		return fromUnix(int64(t)), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// timestampLayouts are tried in order when parsing string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// fromUnix interprets n as unix milliseconds when it is too large to be
// a plausible unix-seconds value (anything past the year 33658 in
// seconds is certainly milliseconds).
func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	const millisCutoff = int64(1e12)
	if n >= millisCutoff || n <= -millisCutoff {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
