package model

// Marker is one endpoint of an event's time range as delivered by upstream
// calendars: either a date-only value ("2006-01-02") for all-day entries or
// an offset-qualified date-time (RFC3339) for timed entries. Exactly one of
// the two fields is set on a well-formed marker.
type Marker struct {
	Date     string
	DateTime string
}

// IsZero reports whether neither field is set.
func (m Marker) IsZero() bool {
	return m.Date == "" && m.DateTime == ""
}

// RawEvent is a calendar event as delivered by an event source, before any
// display formatting.
type RawEvent struct {
	Summary string
	Start   Marker
	End     Marker
}

// RawTask is an open task as delivered by a task source. Due, when present,
// is an RFC3339 instant (Google Tasks emits "2006-01-02T15:04:05.000Z").
type RawTask struct {
	Title string
	Due   string
}

// DateInfo is the snapshot's calendar header block, resolved against the
// display timezone. Month and Weekday carry full names; FirstWeekday is the
// weekday index of the 1st of the month, Sunday=0.
type DateInfo struct {
	Year         int    `json:"year"`
	Month        string `json:"month"`
	Day          int    `json:"day"`
	Weekday      string `json:"weekday"`
	FirstWeekday int    `json:"first_weekday"`
	DaysInMonth  int    `json:"days_in_month"`
}

// DayForecast is one of the three per-day weather entries
// (today, tomorrow, day after, in that order).
type DayForecast struct {
	Day  string `json:"day"` // weekday abbreviation
	Icon string `json:"icon"`
	High int    `json:"high"`
	Low  int    `json:"low"`
}

// WeatherSummary is the display-ready weather block.
type WeatherSummary struct {
	CurrentIcon    string        `json:"current_icon"`
	CurrentTemp    int           `json:"current_temp"`
	CurrentSummary string        `json:"current_summary"`
	Location       string        `json:"location"`
	Days           []DayForecast `json:"days"` // exactly 3 entries when populated
}

// EventView is a display-ready calendar event. Time is empty when the event
// carried no usable time information.
type EventView struct {
	Summary string `json:"summary"`
	Time    string `json:"time,omitempty"`
}

// TaskView is a display-ready task. DueDate is empty for undated tasks.
type TaskView struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty"`
}

// Snapshot is the aggregated display data for one render. It is built once
// by the aggregator and consumed once by the document renderer; nothing
// mutates it after construction.
type Snapshot struct {
	Date    DateInfo        `json:"date"`
	Weather *WeatherSummary `json:"weather,omitempty"` // nil when the upstream call failed
	Events  []EventView     `json:"events"`
	Tasks   []TaskView      `json:"tasks"`
}
