package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
)

func TestStore_SetEventsAndSnapshotClone(t *testing.T) {
	var s Store

	at := time.Unix(1700000000, 0)
	s.SetEvents([]frigate.Event{{ID: "a"}, {ID: "b"}}, at)
	s.SetCameras([]string{"back", "front"})

	snap := s.Snapshot()
	if len(snap.Events) != 2 || snap.Events[0].ID != "a" {
		t.Fatalf("snapshot events = %#v, want 2 items", snap.Events)
	}
	if !snap.LastUpdated.Equal(at) {
		t.Fatalf("LastUpdated = %v, want %v", snap.LastUpdated, at)
	}
	if snap.LastError != nil || !snap.LastErrorAt.IsZero() {
		t.Fatalf("error state = %v at %v, want none", snap.LastError, snap.LastErrorAt)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Events[0].ID = "changed"
	snap.Cameras[0] = "changed"
	snap2 := s.Snapshot()
	if snap2.Events[0].ID != "a" || snap2.Cameras[0] != "back" {
		t.Fatalf("Snapshot should clone slices; got %q %q", snap2.Events[0].ID, snap2.Cameras[0])
	}
}

func TestStore_FailureKeepsPreviousData(t *testing.T) {
	var s Store

	s.SetEvents([]frigate.Event{{ID: "a"}}, time.Unix(1, 0))
	origErr := errors.New("boom")
	failedAt := time.Unix(2, 0)
	s.RecordFailure(origErr, failedAt, true)

	snap := s.Snapshot()
	if len(snap.Events) != 1 || snap.Events[0].ID != "a" {
		t.Fatalf("events changed on error: got %#v", snap.Events)
	}
	if !snap.LastErrorAt.Equal(failedAt) {
		t.Fatalf("LastErrorAt = %v, want %v", snap.LastErrorAt, failedAt)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if !errors.Is(snap.LastError, origErr) {
		t.Fatalf("LastError should wrap the original error")
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}

	s.SetEvents(nil, time.Unix(3, 0))
	snap = s.Snapshot()
	if snap.LastError != nil || !snap.LastErrorAt.IsZero() || snap.ConsecutiveFailures != 0 {
		t.Fatalf("successful fetch did not clear error state: %#v", snap)
	}
}

func TestStore_BackgroundFailureIsNotVisible(t *testing.T) {
	var s Store

	s.RecordFailure(errors.New("in-progress poll failed"), time.Unix(5, 0), false)
	snap := s.Snapshot()
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil for background failure", snap.LastError)
	}
	if snap.LastErrorAt.IsZero() {
		t.Fatalf("LastErrorAt should be stamped for background failure")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	if s.Snapshot().IsOffline() {
		t.Fatal("IsOffline() = true, want false with 0 failures")
	}
	s.RecordFailure(errors.New("fail 1"), time.Now(), true)
	if s.Snapshot().IsOffline() {
		t.Fatal("IsOffline() = true, want false with 1 failure")
	}
	s.RecordFailure(errors.New("fail 2"), time.Now(), true)
	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 2 || !snap.IsOffline() {
		t.Fatalf("ConsecutiveFailures = %d, want 2 and offline", snap.ConsecutiveFailures)
	}

	s.SetEvents(nil, time.Now())
	if got := s.Snapshot().ConsecutiveFailures; got != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0 after success", got)
	}
}

func TestStore_InProgressVersionLoading(t *testing.T) {
	var s Store

	s.SetInProgress([]frigate.Event{{ID: "live"}}, time.Unix(9, 0))
	s.SetVersion(frigate.Version{Major: 0, Minor: 14, Patch: 1})
	s.SetLoading(true)

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.InProgressIDs(), []string{"live"}) {
		t.Fatalf("InProgressIDs = %v, want [live]", snap.InProgressIDs())
	}
	if !snap.HasVersion || snap.Version.String() != "0.14.1" {
		t.Fatalf("Version = %s (has=%v), want 0.14.1", snap.Version, snap.HasVersion)
	}
	if !snap.Loading {
		t.Fatalf("Loading = false, want true")
	}
	s.RecordFailure(errors.New("x"), time.Now(), true)
	s.DismissError()
	if s.Snapshot().LastError != nil {
		t.Fatalf("DismissError did not clear LastError")
	}
}

func TestSettings_CopiesFilters(t *testing.T) {
	s := NewSettings(filter.New([]string{"person"}, nil, nil))
	f := s.Filters()
	f.Labels[0] = "changed"
	if got := s.Filters().Labels[0]; got != "person" {
		t.Fatalf("Filters leaked internal slice; got %q", got)
	}

	got := s.Update(func(f filter.Set) filter.Set {
		return f.With(filter.Cameras, []string{"front"})
	})
	if !reflect.DeepEqual(got.Cameras, []string{"front"}) || !reflect.DeepEqual(s.Filters().Labels, []string{"person"}) {
		t.Fatalf("Update result = %#v", got)
	}
	s.SetFilters(filter.Set{})
	if !s.Filters().Empty() {
		t.Fatalf("SetFilters did not replace filters")
	}
}

func TestSnapshotVisible_FiltersAndDedupes(t *testing.T) {
	snap := Snapshot{
		InProgress: []frigate.Event{{ID: "1", Label: "person"}, {ID: "2", Label: "car"}},
		Events: []frigate.Event{
			{ID: "1", Label: "person"},
			{ID: "3", Label: "person"},
			{ID: "4", Label: "car"},
		},
	}
	live, finished := snap.Visible(filter.New([]string{"person"}, nil, nil))
	if ids := frigate.IDs(live); !reflect.DeepEqual(ids, []string{"1"}) {
		t.Fatalf("live = %v, want [1]", ids)
	}
	if ids := frigate.IDs(finished); !reflect.DeepEqual(ids, []string{"3"}) {
		t.Fatalf("finished = %v, want [3]", ids)
	}

	live, finished = snap.Visible(filter.Set{})
	if len(live) != 2 || len(finished) != 2 {
		t.Fatalf("unfiltered = %d live, %d finished; want 2, 2", len(live), len(finished))
	}
}
