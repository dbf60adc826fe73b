package frigate

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// Event is the normalized form of a Frigate detection event.
type Event struct {
	ID                 string
	Camera             string
	Label              string
	StartTime          float64
	EndTime            *float64
	HasClip            bool
	HasSnapshot        bool
	Zones              []string
	Data               *Detection
	SubLabel           *SubLabel
	FalsePositive      *bool
	PlusID             *string
	RetainIndefinitely bool
}

// Detection carries the nested detection metadata newer servers attach to an
// event under "data".
type Detection struct {
	Attributes []Attribute `json:"attributes"`
	Box        []float64   `json:"box"`
	Score      float64     `json:"score"`
	TopScore   float64     `json:"top_score"`
	Type       string      `json:"type"`
}

// Attribute is a secondary detection attached to an object, such as a face
// or a license plate. Older servers send bare labels, 0.13+ send objects.
type Attribute struct {
	Label string    `json:"label"`
	Score *float64  `json:"score,omitempty"`
	Box   []float64 `json:"box,omitempty"`
}

// UnmarshalJSON accepts both the bare label and the object encoding.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &a.Label)
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("attribute: %w", err)
	}
	parsed, ok := attributeFromAny(obj)
	if !ok {
		return fmt.Errorf("attribute: missing label in %s", trimmed)
	}
	*a = parsed
	return nil
}

func attributeFromAny(v any) (Attribute, bool) {
	switch val := v.(type) {
	case string:
		return Attribute{Label: val}, val != ""
	case map[string]any:
		label, ok := lookupString(val, "label")
		if !ok || label == "" {
			return Attribute{}, false
		}
		out := Attribute{Label: label}
		if score, ok := lookupFloat(val, "score"); ok {
			out.Score = &score
		}
		if box, ok := lookup(val, "box"); ok {
			out.Box = floats(box)
		}
		return out, true
	}
	return Attribute{}, false
}

// SubLabel is a recognised sub-class (face, license plate). Servers before
// 0.13 send a bare string, later ones a [name, score] pair.
type SubLabel struct {
	Name  string
	Score *float64
}

// UnmarshalJSON accepts both the string and the pair encoding.
func (s *SubLabel) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &s.Name)
	}
	var pair []any
	if err := json.Unmarshal(trimmed, &pair); err != nil {
		return fmt.Errorf("sub_label: %w", err)
	}
	parsed, ok := subLabelFromAny(pair)
	if !ok {
		return fmt.Errorf("sub_label: unsupported shape %s", trimmed)
	}
	*s = parsed
	return nil
}

func subLabelFromAny(v any) (SubLabel, bool) {
	switch val := v.(type) {
	case string:
		return SubLabel{Name: val}, true
	case []any:
		if len(val) == 0 {
			return SubLabel{}, false
		}
		name, ok := val[0].(string)
		if !ok {
			return SubLabel{}, false
		}
		out := SubLabel{Name: name}
		if len(val) > 1 {
			if score, ok := asFloat(val[1]); ok {
				out.Score = &score
			}
		}
		return out, true
	}
	return SubLabel{}, false
}

// InProgress reports whether the server has not yet closed the event. The
// authoritative in-progress signal is membership in the in_progress=1 listing;
// this is only a hint for events seen in the full list.
func (e Event) InProgress() bool {
	return e.EndTime == nil
}

// Started returns the start time as a time.Time.
func (e Event) Started() time.Time {
	return epochToTime(e.StartTime)
}

// Ended returns the end time, or the zero time while recording.
func (e Event) Ended() time.Time {
	if e.EndTime == nil {
		return time.Time{}
	}
	return epochToTime(*e.EndTime)
}

// Duration returns the event length, measured up to now for open events.
func (e Event) Duration(now time.Time) time.Duration {
	start := e.Started()
	if start.IsZero() {
		return 0
	}
	end := e.Ended()
	if end.IsZero() {
		end = now
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// HasZone reports whether the event entered the named zone.
func (e Event) HasZone(zone string) bool {
	for _, z := range e.Zones {
		if z == zone {
			return true
		}
	}
	return false
}

// IDs returns the identifiers of events in order.
func IDs(events []Event) []string {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func epochToTime(sec float64) time.Time {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// zoneSet deduplicates and sorts zone names.
func zoneSet(zones []string) []string {
	if len(zones) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(zones))
	out := make([]string, 0, len(zones))
	for _, z := range zones {
		if z == "" {
			continue
		}
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}
