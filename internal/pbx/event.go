// Package pbx represents Zadarma webhook notifications as ordered
// key-value documents with typed accessors.
package pbx

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Event types delivered by the provider. NOTIFY_INTERNAL carries a
// dial-plan code; NOTIFY_END and NOTIFY_OUT_END report call outcomes and
// are the confirmation events for pending actions.
const (
	EventNotifyStart    = "NOTIFY_START"
	EventNotifyInternal = "NOTIFY_INTERNAL"
	EventNotifyEnd      = "NOTIFY_END"
	EventNotifyOutStart = "NOTIFY_OUT_START"
	EventNotifyOutEnd   = "NOTIFY_OUT_END"
)

// Event is a parsed webhook notification as an ordered set of key-value pairs.
type Event struct {
	fields []field
}

type field struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a slice of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.fields = append(e.fields, field{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// FromValues creates an Event from form-encoded webhook data.
// Keys are sorted so repeated parses of the same payload are identical.
func FromValues(values url.Values) Event {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := Event{}
	for _, k := range keys {
		e.fields = append(e.fields, field{Key: k, Value: values.Get(k)})
	}
	return e
}

// ParseJSON creates an Event from a JSON webhook body. Non-string scalar
// values are flattened to their text form; nested values are ignored.
func ParseJSON(data []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("parsing webhook JSON: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := Event{}
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			e.fields = append(e.fields, field{Key: k, Value: v})
		case float64:
			e.fields = append(e.fields, field{Key: k, Value: strconv.FormatFloat(v, 'f', -1, 64)})
		case bool:
			e.fields = append(e.fields, field{Key: k, Value: strconv.FormatBool(v)})
		}
	}
	return e, nil
}

// Get returns the value for the given key, or empty string if not found.
func (e Event) Get(key string) string {
	for _, f := range e.fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Type returns the event field value (the notification type).
func (e Event) Type() string {
	return e.Get("event")
}

// GetInt returns the integer value for the given key, or 0 if not found/parseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}

// First returns the value of the first listed key that is present and
// non-empty. Providers report the dialled endpoint under different keys
// depending on call direction.
func (e Event) First(keys ...string) string {
	for _, k := range keys {
		if v := e.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Len returns the number of fields in the event.
func (e Event) Len() int {
	return len(e.fields)
}
