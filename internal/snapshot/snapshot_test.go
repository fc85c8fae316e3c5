package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"tinker/internal/model"
)

type fakeEvents struct {
	events []model.RawEvent
	err    error
}

func (f *fakeEvents) ListUpcomingEvents(_ context.Context, _ string, _ int64) ([]model.RawEvent, error) {
	return f.events, f.err
}

type fakeTasks struct {
	tasks []model.RawTask
	err   error
}

func (f *fakeTasks) ListOpenTasks(_ context.Context) ([]model.RawTask, error) {
	return f.tasks, f.err
}

type fakeForecast struct {
	summary *model.WeatherSummary
	err     error
}

func (f *fakeForecast) FetchForecast(_ context.Context, _, _ float64, _ string) (*model.WeatherSummary, error) {
	return f.summary, f.err
}

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func TestBuildFullSnapshot(t *testing.T) {
	events := &fakeEvents{events: []model.RawEvent{
		{Summary: "A", Start: model.Marker{Date: "2024-03-01"}, End: model.Marker{Date: "2024-03-02"}},
		{Summary: "B", Start: model.Marker{DateTime: "2024-03-01T09:00:00+00:00"}, End: model.Marker{DateTime: "2024-03-01T10:30:00+00:00"}},
	}}
	tasks := &fakeTasks{tasks: []model.RawTask{
		{Title: "X", Due: "2024-03-05T00:00:00.000Z"},
		{Title: "Y"},
	}}
	forecast := &fakeForecast{summary: &model.WeatherSummary{
		CurrentIcon: "wi wi-rain",
		CurrentTemp: 55,
		Location:    "Harvey Mudd",
		Days: []model.DayForecast{
			{Day: "Fri"}, {Day: "Sat"}, {Day: "Sun"},
		},
	}}

	b := NewBuilder(events, tasks, forecast)
	snap := b.Build(context.Background(), testNow, Params{CalendarID: "primary", MaxEvents: 10})

	if len(snap.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(snap.Events))
	}
	if snap.Events[0].Time != "Mar 01" {
		t.Errorf("all-day event time = %q, want %q", snap.Events[0].Time, "Mar 01")
	}
	if snap.Events[1].Time != "Mar 01 09:00 - 10:30" {
		t.Errorf("timed event time = %q", snap.Events[1].Time)
	}

	if len(snap.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(snap.Tasks))
	}
	if snap.Tasks[0].Title != "X" || snap.Tasks[0].DueDate != "Mar 05" {
		t.Errorf("tasks[0] = %+v", snap.Tasks[0])
	}
	if snap.Tasks[1].Title != "Y" || snap.Tasks[1].DueDate != "" {
		t.Errorf("tasks[1] = %+v", snap.Tasks[1])
	}

	if snap.Weather == nil || snap.Weather.Location != "Harvey Mudd" {
		t.Errorf("weather = %+v", snap.Weather)
	}
}

func TestBuildSectionsFailIndependently(t *testing.T) {
	upstreamErr := errors.New("boom")

	b := NewBuilder(
		&fakeEvents{err: upstreamErr},
		&fakeTasks{tasks: []model.RawTask{{Title: "Y"}}},
		&fakeForecast{err: upstreamErr},
	)
	snap := b.Build(context.Background(), testNow, Params{})

	if snap.Weather != nil {
		t.Error("weather should be nil after upstream failure")
	}
	if len(snap.Events) != 0 {
		t.Errorf("events = %d, want 0", len(snap.Events))
	}
	if len(snap.Tasks) != 1 {
		t.Errorf("tasks should still populate, got %d", len(snap.Tasks))
	}
	// The date header always populates.
	if snap.Date.Year != 2024 || snap.Date.Month != "March" {
		t.Errorf("date = %+v", snap.Date)
	}
}

func TestBuildDropsUnparseableEvents(t *testing.T) {
	events := &fakeEvents{events: []model.RawEvent{
		{Summary: "good", Start: model.Marker{Date: "2024-03-01"}, End: model.Marker{Date: "2024-03-02"}},
		{Summary: "bad", Start: model.Marker{Date: "garbage"}, End: model.Marker{Date: "2024-03-02"}},
		{Summary: "also good", Start: model.Marker{Date: "2024-03-04"}, End: model.Marker{Date: "2024-03-05"}},
	}}

	b := NewBuilder(events, nil, nil)
	snap := b.Build(context.Background(), testNow, Params{})

	if len(snap.Events) != 2 {
		t.Fatalf("events = %d, want 2 (bad one dropped)", len(snap.Events))
	}
	if snap.Events[0].Summary != "good" || snap.Events[1].Summary != "also good" {
		t.Errorf("provider order not preserved: %+v", snap.Events)
	}
}

func TestBuildEventWithoutTimeInfo(t *testing.T) {
	events := &fakeEvents{events: []model.RawEvent{
		{Summary: "mystery", Start: model.Marker{Date: "2024-03-01"}, End: model.Marker{DateTime: "2024-03-01T10:00:00Z"}},
	}}

	b := NewBuilder(events, nil, nil)
	snap := b.Build(context.Background(), testNow, Params{})

	if len(snap.Events) != 1 {
		t.Fatalf("events = %d, want 1 (mixed kinds keep the event, drop the time)", len(snap.Events))
	}
	if snap.Events[0].Time != "" {
		t.Errorf("time = %q, want empty", snap.Events[0].Time)
	}
}

func TestTaskOrdering(t *testing.T) {
	tasks := &fakeTasks{tasks: []model.RawTask{
		{Title: "undue-1"},
		{Title: "late", Due: "2024-03-20T00:00:00.000Z"},
		{Title: "undue-2"},
		{Title: "early", Due: "2024-03-05T00:00:00.000Z"},
		{Title: "middle", Due: "2024-03-10T00:00:00.000Z"},
	}}

	b := NewBuilder(nil, tasks, nil)
	snap := b.Build(context.Background(), testNow, Params{})

	want := []string{"early", "middle", "late", "undue-1", "undue-2"}
	if len(snap.Tasks) != len(want) {
		t.Fatalf("tasks = %d, want %d", len(snap.Tasks), len(want))
	}
	for i, title := range want {
		if snap.Tasks[i].Title != title {
			t.Errorf("tasks[%d] = %q, want %q", i, snap.Tasks[i].Title, title)
		}
	}
	for i, dated := range []bool{true, true, true, false, false} {
		if (snap.Tasks[i].DueDate != "") != dated {
			t.Errorf("tasks[%d].DueDate presence wrong: %+v", i, snap.Tasks[i])
		}
	}
}

func TestUnknownTimezoneFallsBack(t *testing.T) {
	b := NewBuilder(nil, nil, nil)

	// Must not panic or error; header derives from local time instead.
	snap := b.Build(context.Background(), testNow, Params{Timezone: "Not/AZone"})
	if snap.Date.Year == 0 {
		t.Error("date header missing after timezone fallback")
	}

	// A recognized zone shifts the header.
	snapNY := b.Build(context.Background(), testNow, Params{Timezone: "America/New_York"})
	if snapNY.Date.Day != 15 {
		t.Errorf("day = %d, want 15", snapNY.Date.Day)
	}
}

func TestDateInfo(t *testing.T) {
	// March 2024: starts on a Friday (weekday 5, Sunday=0), 31 days.
	d := dateInfo(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	if d.FirstWeekday != 5 {
		t.Errorf("FirstWeekday = %d, want 5", d.FirstWeekday)
	}
	if d.DaysInMonth != 31 {
		t.Errorf("DaysInMonth = %d, want 31", d.DaysInMonth)
	}
	if d.Weekday != "Friday" {
		t.Errorf("Weekday = %q, want Friday", d.Weekday)
	}

	// February 2024 is a leap month starting on a Thursday.
	feb := dateInfo(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if feb.FirstWeekday != 4 || feb.DaysInMonth != 29 {
		t.Errorf("feb = %+v", feb)
	}
}
