package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"rollcall/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ObservationFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap maps a loosely-keyed matcher payload onto observation fields.
// Matcher implementations disagree on key names, so common aliases are
// accepted.
func ParseJSONMap(obj map[string]interface{}) *normalize.ObservationFields {
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, "timestamp", "time", "ts")
	fields.Identity = firstNonEmpty(fields.Extras, "identity", "id", "student_id", "studentid")
	fields.Name = firstNonEmpty(fields.Extras, "name", "student", "display_name")
	return fields
}
