// Package model defines the lead record and run bookkeeping types shared by
// every pipeline step.
package model

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is a single lead. Steps mutate records in place; fields are looked
// up by name because each ingestion source produces a different shape.
type Record map[string]any

// Well-known record fields.
const (
	FieldLeadID      = "lead_id"
	FieldEmail       = "email"
	FieldLinkedIn    = "linkedin_url"
	FieldName        = "name"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldCompany     = "company"
	FieldTitle       = "job_title"
	FieldLocation    = "location"
	FieldChannel     = "segment"
	FieldDataSource  = "data_source"
	FieldLeadScore   = "lead_score"
	FieldLeadTier    = "lead_tier"
	FieldSignalScore = "signal_score"
	FieldSignalTier  = "signal_tier"
)

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every non-nil value from src into r. A new value wins over
// the old one; a nil value never erases an existing field.
func (r Record) Merge(src map[string]any) {
	for k, v := range src {
		if v == nil {
			continue
		}
		r[k] = v
	}
}

// Has reports whether field is present with a non-empty value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the field rendered as a string, or "" when absent.
func (r Record) String(field string) string {
	return ToString(r[field])
}

// Float returns the field as a float64. Numeric strings are parsed; anything
// else yields 0.
func (r Record) Float(field string) float64 {
	f, _ := ToFloat(r[field])
	return f
}

// Int returns the field truncated to an int.
func (r Record) Int(field string) int {
	return int(r.Float(field))
}

// Bool returns the field as a bool. The strings "true", "yes" and "1" count
// as true.
func (r Record) Bool(field string) bool {
	switch v := r[field].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// Time parses the field as an RFC 3339 timestamp or a YYYY-MM-DD date.
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Strings returns the field as a string slice. A single string becomes a
// one-element slice.
func (r Record) Strings(field string) []string {
	switch v := r[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, ToString(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Len returns the length of a list-valued field, or 0.
func (r Record) Len(field string) int {
	switch v := r[field].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case []map[string]any:
		return len(v)
	}
	return 0
}

// Map returns a nested object field as a Record. Missing or non-object
// fields yield an empty Record, never nil.
func (r Record) Map(field string) Record {
	switch v := r[field].(type) {
	case Record:
		return v
	case map[string]any:
		return Record(v)
	}
	return Record{}
}

var pathSegment = regexp.MustCompile(`^([^\[\]]*)((?:\[\d+\])*)$`)
var pathIndex = regexp.MustCompile(`\[(\d+)\]`)

// Path resolves a dotted path with optional bracket indexes, such as
// "organization.name" or "emails[0]".
func (r Record) Path(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m := pathSegment.FindStringSubmatch(part)
		if m == nil {
			return nil, false
		}
		if m[1] != "" {
			obj, ok := asObject(cur)
			if !ok {
				return nil, false
			}
			cur, ok = obj[m[1]]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range pathIndex.FindAllStringSubmatch(m[2], -1) {
			i, _ := strconv.Atoi(idx[1])
			list, ok := asList(cur)
			if !ok || i >= len(list) {
				return nil, false
			}
			cur = list[i]
		}
	}
	return cur, cur != nil
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Record:
		return o, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// ToString renders scalar values as text. Nested values are encoded as JSON.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	case json.Number:
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ToFloat converts numbers and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Round rounds f to the given number of decimal places.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
