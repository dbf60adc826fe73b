// Package filter narrows event lists by label, zone, and camera.
package filter

import (
	"sort"
	"strings"

	"github.com/five82/vigil/internal/frigate"
)

// Dimension names one axis of a filter Set.
type Dimension string

const (
	Labels  Dimension = "labels"
	Zones   Dimension = "zones"
	Cameras Dimension = "cameras"
)

// Set holds the selected values per dimension. An empty dimension includes
// everything.
type Set struct {
	Labels  []string
	Zones   []string
	Cameras []string
}

// New builds a Set with trimmed, deduplicated, sorted values.
func New(labels, zones, cameras []string) Set {
	return Set{
		Labels:  normalize(labels),
		Zones:   normalize(zones),
		Cameras: normalize(cameras),
	}
}

// Empty reports whether the set includes every event.
func (s Set) Empty() bool {
	return len(s.Labels) == 0 && len(s.Zones) == 0 && len(s.Cameras) == 0
}

// Values returns the selected values for one dimension.
func (s Set) Values(d Dimension) []string {
	switch d {
	case Labels:
		return s.Labels
	case Zones:
		return s.Zones
	case Cameras:
		return s.Cameras
	}
	return nil
}

// With returns a copy of s with dimension d replaced.
func (s Set) With(d Dimension, values []string) Set {
	out := s.Clone()
	switch d {
	case Labels:
		out.Labels = normalize(values)
	case Zones:
		out.Zones = normalize(values)
	case Cameras:
		out.Cameras = normalize(values)
	}
	return out
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	return Set{
		Labels:  clone(s.Labels),
		Zones:   clone(s.Zones),
		Cameras: clone(s.Cameras),
	}
}

// Match reports whether ev passes every non-empty dimension. Within a
// dimension any selected value matches; for zones the event must have
// entered at least one selected zone.
func (s Set) Match(ev frigate.Event) bool {
	if len(s.Labels) > 0 && !contains(s.Labels, ev.Label) {
		return false
	}
	if len(s.Cameras) > 0 && !contains(s.Cameras, ev.Camera) {
		return false
	}
	if len(s.Zones) > 0 {
		hit := false
		for _, z := range s.Zones {
			if ev.HasZone(z) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Apply returns the events that match, preserving order. The input is not
// modified.
func (s Set) Apply(events []frigate.Event) []frigate.Event {
	if s.Empty() {
		return append([]frigate.Event(nil), events...)
	}
	out := make([]frigate.Event, 0, len(events))
	for _, ev := range events {
		if s.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Single returns the query value for dimension d: the value itself when
// exactly one is selected, otherwise "all".
func (s Set) Single(d Dimension) string {
	values := s.Values(d)
	if len(values) == 1 {
		return values[0]
	}
	return "all"
}

// String renders the set for headers and logs.
func (s Set) String() string {
	if s.Empty() {
		return "all"
	}
	var parts []string
	if len(s.Cameras) > 0 {
		parts = append(parts, "camera="+strings.Join(s.Cameras, ","))
	}
	if len(s.Labels) > 0 {
		parts = append(parts, "label="+strings.Join(s.Labels, ","))
	}
	if len(s.Zones) > 0 {
		parts = append(parts, "zone="+strings.Join(s.Zones, ","))
	}
	return strings.Join(parts, " ")
}

// Cycle advances a single-value selection through options: all, then each
// option in order, then back to all.
func Cycle(current []string, options []string) []string {
	if len(options) == 0 {
		return nil
	}
	if len(current) != 1 {
		return []string{options[0]}
	}
	for i, opt := range options {
		if opt == current[0] {
			if i+1 < len(options) {
				return []string{options[i+1]}
			}
			return nil
		}
	}
	return []string{options[0]}
}

// Distinct collects the sorted set of values picked from events.
func Distinct(events []frigate.Event, d Dimension) []string {
	var raw []string
	for _, ev := range events {
		switch d {
		case Labels:
			raw = append(raw, ev.Label)
		case Cameras:
			raw = append(raw, ev.Camera)
		case Zones:
			raw = append(raw, ev.Zones...)
		}
	}
	return normalize(raw)
}

func normalize(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, "all") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func clone(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}
