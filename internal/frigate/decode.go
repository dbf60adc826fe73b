package frigate

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// wrapperKeys lists the object keys that may hold the event array, in the
// order they are tried.
var wrapperKeys = []string{"events", "data", "results"}

// strategy decodes one payload shape. It returns an error when the payload
// does not have that shape.
type strategy struct {
	name   string
	decode func(raw []byte, v Version) ([]Event, error)
}

var strategies = []strategy{
	{name: "array", decode: decodeStrict},
	{name: "wrapped", decode: decodeWrapped},
	{name: "loose", decode: decodeLoose},
}

// Decode normalizes an /api/events payload. The shapes tried, first match
// wins, are a bare array of events, an object wrapping that array, and an
// array of loosely typed objects from which malformed elements are dropped.
//
// The version selects a schema; every supported version currently shares one.
// The zero Version is the lowest supported version.
func Decode(raw []byte, v Version) ([]Event, error) {
	events, _, err := decode(raw, v)
	return events, err
}

func decode(raw []byte, v Version) ([]Event, string, error) {
	var errs []error
	for _, s := range strategies {
		events, err := s.decode(raw, v)
		if err == nil {
			return events, s.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return nil, "", fmt.Errorf("%w: no payload shape matched: %w", ErrDecoding, errors.Join(errs...))
}

type wireEvent struct {
	ID                 *string    `json:"id"`
	Camera             *string    `json:"camera"`
	Label              *string    `json:"label"`
	StartTime          *float64   `json:"start_time"`
	EndTime            *float64   `json:"end_time"`
	HasClip            *bool      `json:"has_clip"`
	HasSnapshot        *bool      `json:"has_snapshot"`
	Zones              []string   `json:"zones"`
	Data               *Detection `json:"data"`
	SubLabel           *SubLabel  `json:"sub_label"`
	FalsePositive      *bool      `json:"false_positive"`
	PlusID             *string    `json:"plus_id"`
	RetainIndefinitely *bool      `json:"retain_indefinitely"`
}

func (w wireEvent) event() (Event, error) {
	switch {
	case w.ID == nil || *w.ID == "":
		return Event{}, errors.New("missing id")
	case w.Camera == nil:
		return Event{}, errors.New("missing camera")
	case w.Label == nil:
		return Event{}, errors.New("missing label")
	case w.StartTime == nil:
		return Event{}, errors.New("missing start_time")
	case w.HasClip == nil:
		return Event{}, errors.New("missing has_clip")
	case w.HasSnapshot == nil:
		return Event{}, errors.New("missing has_snapshot")
	}
	ev := Event{
		ID:            *w.ID,
		Camera:        *w.Camera,
		Label:         *w.Label,
		StartTime:     *w.StartTime,
		EndTime:       w.EndTime,
		HasClip:       *w.HasClip,
		HasSnapshot:   *w.HasSnapshot,
		Zones:         zoneSet(w.Zones),
		Data:          w.Data,
		FalsePositive: w.FalsePositive,
		PlusID:        w.PlusID,
	}
	if w.SubLabel != nil && w.SubLabel.Name != "" {
		ev.SubLabel = w.SubLabel
	}
	if w.RetainIndefinitely != nil {
		ev.RetainIndefinitely = *w.RetainIndefinitely
	}
	return ev, nil
}

// decodeStrict expects a JSON array whose every element is a well-typed event.
func decodeStrict(raw []byte, _ Version) ([]Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("payload is not an array")
	}
	var wire []wireEvent
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(wire))
	for i, w := range wire {
		ev, err := w.event()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// decodeWrapped unwraps {"events": [...]} style payloads. The inner array is
// decoded strictly first and loosely if that fails.
func decodeWrapped(raw []byte, v Version) ([]Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("payload is not an object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	for _, key := range wrapperKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) == 0 || inner[0] != '[' {
			continue
		}
		if events, err := decodeStrict(inner, v); err == nil {
			return events, nil
		}
		return decodeLoose(inner, v)
	}
	return nil, fmt.Errorf("no wrapper key among %s", strings.Join(wrapperKeys, ", "))
}

// decodeLoose reads an array of arbitrary objects, keeping the elements that
// carry every required field.
func decodeLoose(raw []byte, _ Version) ([]Event, error) {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, errors.New("payload is not an array")
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ev, ok := looseEvent(m)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	if len(items) > 0 && len(events) == 0 {
		return nil, fmt.Errorf("none of %d elements had the required fields", len(items))
	}
	return events, nil
}

func looseEvent(m map[string]any) (Event, bool) {
	id, ok := lookupString(m, "id")
	if !ok || id == "" {
		return Event{}, false
	}
	camera, ok := lookupString(m, "camera")
	if !ok {
		return Event{}, false
	}
	label, ok := lookupString(m, "label")
	if !ok {
		return Event{}, false
	}
	start, ok := lookupFloat(m, "start_time", "startTime")
	if !ok {
		return Event{}, false
	}
	hasClip, ok := lookupBool(m, "has_clip", "hasClip")
	if !ok {
		return Event{}, false
	}
	hasSnapshot, ok := lookupBool(m, "has_snapshot", "hasSnapshot")
	if !ok {
		return Event{}, false
	}

	ev := Event{
		ID:          id,
		Camera:      camera,
		Label:       label,
		StartTime:   start,
		HasClip:     hasClip,
		HasSnapshot: hasSnapshot,
		Zones:       zoneSet(lookupStrings(m, "zones")),
	}
	if end, ok := lookupFloat(m, "end_time", "endTime"); ok {
		ev.EndTime = &end
	}
	if retain, ok := lookupBool(m, "retain_indefinitely", "retainIndefinitely"); ok {
		ev.RetainIndefinitely = retain
	}
	if fp, ok := lookupBool(m, "false_positive", "falsePositive"); ok {
		ev.FalsePositive = &fp
	}
	if plus, ok := lookupString(m, "plus_id", "plusId"); ok && plus != "" {
		ev.PlusID = &plus
	}
	if raw, ok := lookup(m, "sub_label", "subLabel"); ok {
		if sl, ok := subLabelFromAny(raw); ok && sl.Name != "" {
			ev.SubLabel = &sl
		}
	}
	if raw, ok := lookup(m, "data"); ok {
		if dm, ok := raw.(map[string]any); ok {
			ev.Data = looseDetection(dm)
		}
	}
	return ev, true
}

func looseDetection(m map[string]any) *Detection {
	d := &Detection{}
	d.Type, _ = lookupString(m, "type")
	d.Score, _ = lookupFloat(m, "score")
	d.TopScore, _ = lookupFloat(m, "top_score", "topScore")
	if box, ok := lookup(m, "box"); ok {
		d.Box = floats(box)
	}
	if attrs, ok := lookup(m, "attributes"); ok {
		if list, ok := attrs.([]any); ok {
			for _, v := range list {
				if a, ok := attributeFromAny(v); ok {
					d.Attributes = append(d.Attributes, a)
				}
			}
		}
	}
	return d
}

func floats(v any) []float64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []float64
	for _, item := range list {
		if f, ok := asFloat(item); ok {
			out = append(out, f)
		}
	}
	return out
}

// lookup returns the first present, non-null value among keys. A single key
// also matches its camelCase spelling.
func lookup(m map[string]any, keys ...string) (any, bool) {
	if len(keys) == 1 {
		keys = append(keys, camelCase(keys[0]))
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(m map[string]any, keys ...string) (string, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}
	return "", false
}

func lookupFloat(m map[string]any, keys ...string) (float64, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func lookupBool(m map[string]any, keys ...string) (bool, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return false, false
	}
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	}
	return false, false
}

func lookupStrings(m map[string]any, keys ...string) []string {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func camelCase(key string) string {
	parts := strings.Split(key, "_")
	if len(parts) == 1 {
		return key
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
