// Package snapshot builds the aggregated display data for one render.
package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	appLog "tinker/internal/log"
	"tinker/internal/model"
	"tinker/internal/timefmt"
)

// EventSource lists upcoming calendar events in provider order.
type EventSource interface {
	ListUpcomingEvents(ctx context.Context, calendarID string, max int64) ([]model.RawEvent, error)
}

// TaskSource lists open tasks from the primary task list.
type TaskSource interface {
	ListOpenTasks(ctx context.Context) ([]model.RawTask, error)
}

// ForecastSource fetches the display-ready weather block.
type ForecastSource interface {
	FetchForecast(ctx context.Context, lat, lon float64, label string) (*model.WeatherSummary, error)
}

// Params configures one snapshot build.
type Params struct {
	CalendarID string
	MaxEvents  int64

	Latitude      float64
	Longitude     float64
	LocationLabel string

	// Timezone is an optional IANA zone name for the date header. Unknown
	// names silently fall back to the server's local zone.
	Timezone string
}

// Builder aggregates the three upstream sources into a Snapshot.
type Builder struct {
	events   EventSource
	tasks    TaskSource
	forecast ForecastSource
}

// NewBuilder wires a Builder from its sources. Any source may be nil, in
// which case its section stays empty.
func NewBuilder(events EventSource, tasks TaskSource, forecast ForecastSource) *Builder {
	return &Builder{events: events, tasks: tasks, forecast: forecast}
}

// Build produces a Snapshot for the given instant. The three upstream calls
// run concurrently and fail independently: a dead weather API still yields a
// snapshot with calendar and tasks populated. Only the date header is
// unconditional, and it cannot fail.
func (b *Builder) Build(ctx context.Context, now time.Time, p Params) *model.Snapshot {
	loc := resolveLocation(p.Timezone)
	localNow := now.In(loc)

	snap := &model.Snapshot{
		Date:   dateInfo(localNow),
		Events: []model.EventView{},
		Tasks:  []model.TaskView{},
	}

	var wg sync.WaitGroup

	var weather *model.WeatherSummary
	var rawEvents []model.RawEvent
	var rawTasks []model.RawTask

	if b.forecast != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := b.forecast.FetchForecast(ctx, p.Latitude, p.Longitude, p.LocationLabel)
			if err != nil {
				appLog.Error("weather section degraded", err)
				return
			}
			weather = w
		}()
	}

	if b.events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evs, err := b.events.ListUpcomingEvents(ctx, p.CalendarID, p.MaxEvents)
			if err != nil {
				appLog.Error("calendar section degraded", err)
				return
			}
			rawEvents = evs
		}()
	}

	if b.tasks != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts, err := b.tasks.ListOpenTasks(ctx)
			if err != nil {
				appLog.Error("tasks section degraded", err)
				return
			}
			rawTasks = ts
		}()
	}

	wg.Wait()

	snap.Weather = weather
	snap.Events = formatEvents(rawEvents)
	snap.Tasks = orderTasks(rawTasks)
	return snap
}

// formatEvents converts raw events to display form, preserving provider
// order. An event with unparseable timestamps is dropped, not fatal.
func formatEvents(raw []model.RawEvent) []model.EventView {
	out := make([]model.EventView, 0, len(raw))
	for _, ev := range raw {
		timeStr, err := timefmt.FormatRange(ev.Start, ev.End)
		if err != nil {
			appLog.Error("event dropped", err, "summary", ev.Summary)
			continue
		}
		out = append(out, model.EventView{Summary: ev.Summary, Time: timeStr})
	}
	return out
}

// orderTasks partitions tasks into due and undue. Due tasks come first,
// sorted ascending by due instant; undue tasks follow in provider order.
// A task with an unparseable due date is treated the same as a bad event
// timestamp: dropped with a log line.
func orderTasks(raw []model.RawTask) []model.TaskView {
	type dueTask struct {
		view model.TaskView
		at   time.Time
	}

	var due []dueTask
	var undue []model.TaskView

	for _, t := range raw {
		if t.Due == "" {
			undue = append(undue, model.TaskView{Title: t.Title})
			continue
		}
		display, at, err := timefmt.FormatDue(t.Due)
		if err != nil {
			appLog.Error("task dropped", err, "title", t.Title)
			continue
		}
		due = append(due, dueTask{
			view: model.TaskView{Title: t.Title, DueDate: display},
			at:   at,
		})
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].at.Before(due[j].at)
	})

	out := make([]model.TaskView, 0, len(due)+len(undue))
	for _, d := range due {
		out = append(out, d.view)
	}
	out = append(out, undue...)
	return out
}

// resolveLocation loads the named zone, falling back to the server's local
// zone for empty or unrecognized names. Never an error.
func resolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Debug("unknown timezone, using local", "name", name)
		return time.Local
	}
	return loc
}

// dateInfo derives the calendar header block from a local instant.
func dateInfo(now time.Time) model.DateInfo {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	// Day zero of the next month is the last day of this one.
	lastOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location())

	return model.DateInfo{
		Year:         now.Year(),
		Month:        now.Month().String(),
		Day:          now.Day(),
		Weekday:      now.Weekday().String(),
		FirstWeekday: int(firstOfMonth.Weekday()),
		DaysInMonth:  lastOfMonth.Day(),
	}
}
