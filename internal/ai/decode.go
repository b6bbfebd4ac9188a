package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Upstream records are not schema-checked, so the heuristic inputs decode
// leniently: a field of the wrong JSON type becomes the zero value instead of
// failing the whole record. Only a non-object document is an error.

type fields map[string]any

func decodeFields(data []byte) (fields, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fields{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f fields
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	if f == nil {
		f = fields{}
	}
	return f, nil
}

// text renders scalars as strings. Objects and arrays are ignored.
func (f fields) text(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// number accepts JSON numbers and numeric strings
func (f fields) number(key string) float64 {
	n, _ := f.optionalNumber(key)
	return n
}

func (f fields) optionalNumber(key string) (float64, bool) {
	switch v := f[key].(type) {
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// list returns nil when the key is absent or null and a non-nil slice
// otherwise, so callers can tell "missing" from "empty". A bare string is
// treated as a one-element list.
func (f fields) list(key string) []string {
	switch v := f[key].(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, scalarText(item))
		}
		return out
	case string:
		return []string{v}
	default:
		return []string{}
	}
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

// UnmarshalJSON decodes a threat record leniently
func (t *ThreatInput) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*t = ThreatInput{
		ID:               f.text("id"),
		Type:             f.text("type"),
		Indicators:       f.list("indicators"),
		Signatures:       f.list("signatures"),
		Severity:         f.number("severity"),
		AffectedSystems:  f.list("affectedSystems"),
		DataSensitivity:  f.text("dataSensitivity"),
		PropagationSpeed: f.text("propagationSpeed"),
		BehaviorScore:    f.number("behaviorScore"),
		SourceIP:         f.text("sourceIP"),
		TargetSystem:     f.text("targetSystem"),
		Domain:           f.text("domain"),
		FileHash:         f.text("fileHash"),
		UserAgent:        f.text("userAgent"),
	}
	return nil
}

// UnmarshalJSON decodes a traffic summary leniently
func (n *NetworkSample) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	sample := NetworkSample{
		TrafficIncrease: f.number("trafficIncrease"),
		UniqueSources:   f.number("uniqueSources"),
		RequestPattern:  f.text("requestPattern"),
		SourceIP:        f.text("sourceIP"),
		AffectedDevices: f.list("affectedDevices"),
	}
	if d, ok := f.optionalNumber("scanDuration"); ok {
		sample.ScanDuration = &d
	}
	if ports, ok := f["portSequence"].([]any); ok {
		sample.PortSequence = make([]int, 0, len(ports))
		for _, p := range ports {
			port, _ := strconv.Atoi(scalarText(p))
			sample.PortSequence = append(sample.PortSequence, port)
		}
	}
	*n = sample
	return nil
}

// UnmarshalJSON decodes an incident record leniently
func (i *IncidentInput) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*i = IncidentInput{
		ID:                    f.text("id"),
		Severity:              f.text("severity"),
		Type:                  f.text("type"),
		Complexity:            f.text("complexity"),
		DataSensitivity:       f.text("dataSensitivity"),
		AffectedSystems:       f.list("affectedSystems"),
		EstimatedResponseTime: f.text("estimatedResponseTime"),
		Status:                f.text("status"),
	}
	return nil
}
