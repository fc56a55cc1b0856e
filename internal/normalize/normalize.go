package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/model"
)

// ObservationFields is the loosely-typed form a transport hands over before
// normalization. Identity is required; everything else has fallbacks.
type ObservationFields struct {
	Timestamp string
	Identity  string
	Name      string
	Extras    map[string]string
	Raw       string
}

func Normalize(fields ObservationFields, cfg *config.Config) (model.Observation, error) {
	idStr := strings.TrimSpace(fields.Identity)
	if idStr == "" {
		return model.Observation{}, errors.New("observation missing identity")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return model.Observation{}, fmt.Errorf("parse identity %q: %w", idStr, err)
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	return model.Observation{
		Timestamp: ts,
		Identity:  model.Identity(id),
		Name:      strings.TrimSpace(fields.Name),
		Raw:       fields.Raw,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		// ParseInLocation keeps an explicit zone when the layout carries one
		// and falls back to loc when it does not.
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
