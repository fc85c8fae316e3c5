// Package ics implements an event source backed by ICS subscription feeds,
// for dashboards that do not use a Google account. Recurring events are
// expanded to single instances inside the upcoming horizon, mirroring what
// the Calendar API does with singleEvents=true.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "tinker/internal/log"
	"tinker/internal/model"
)

// ErrUpstreamUnavailable marks a feed that could not be fetched or parsed.
var ErrUpstreamUnavailable = errors.New("ics: upstream unavailable")

const (
	defaultHorizonDays = 60
	defaultFeedTTL     = 15 * time.Minute
	// Safety cap per recurring event so a runaway RRULE cannot flood the
	// dashboard.
	maxOccurrencesPerEvent = 500
)

// Source fetches and expands one or more ICS feeds.
type Source struct {
	urls        []string
	horizonDays int
	client      *http.Client

	feedMu    sync.Mutex
	feedCache map[string]cachedFeed
	feedTTL   time.Duration
}

type cachedFeed struct {
	body      []byte
	fetchedAt time.Time
}

// NewSource creates a Source over the given feed URLs. horizonDays bounds
// recurrence expansion; zero or negative selects the default.
func NewSource(urls []string, horizonDays int) *Source {
	if horizonDays <= 0 {
		horizonDays = defaultHorizonDays
	}
	return &Source{
		urls:        urls,
		horizonDays: horizonDays,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		feedCache: make(map[string]cachedFeed),
		feedTTL:   defaultFeedTTL,
	}
}

// occurrence is one concrete event instance before marker conversion.
type occurrence struct {
	summary string
	start   time.Time
	end     time.Time
	allDay  bool
}

// ListUpcomingEvents returns up to max upcoming instances across all feeds,
// ordered by start time. The calendarID parameter exists to satisfy the
// event source contract and is ignored; ICS feeds carry their own identity.
func (s *Source) ListUpcomingEvents(ctx context.Context, _ string, max int64) ([]model.RawEvent, error) {
	now := time.Now()
	horizon := now.AddDate(0, 0, s.horizonDays)

	var all []occurrence
	var fetchErrs []error

	for _, url := range s.urls {
		body, err := s.fetchFeed(ctx, url)
		if err != nil {
			fetchErrs = append(fetchErrs, err)
			appLog.Error("ics feed fetch failed", err, "url", redactURL(url))
			continue
		}

		occs, err := expandFeed(body, now, horizon)
		if err != nil {
			fetchErrs = append(fetchErrs, err)
			appLog.Error("ics feed parse failed", err, "url", redactURL(url))
			continue
		}
		all = append(all, occs...)
	}

	if len(all) == 0 && len(fetchErrs) > 0 {
		return nil, fmt.Errorf("%w: all %d feeds failed", ErrUpstreamUnavailable, len(fetchErrs))
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].start.Before(all[j].start)
	})
	if max > 0 && int64(len(all)) > max {
		all = all[:max]
	}

	out := make([]model.RawEvent, 0, len(all))
	for _, occ := range all {
		out = append(out, occ.toRawEvent())
	}

	appLog.Info("ics events expanded", "feeds", len(s.urls), "count", len(out))
	return out, nil
}

func (occ occurrence) toRawEvent() model.RawEvent {
	ev := model.RawEvent{Summary: occ.summary}
	if occ.allDay {
		// ICS DTEND for all-day events is exclusive, same as the Calendar
		// API's end.date; pass it through unchanged.
		ev.Start = model.Marker{Date: occ.start.Format("2006-01-02")}
		ev.End = model.Marker{Date: occ.end.Format("2006-01-02")}
	} else {
		ev.Start = model.Marker{DateTime: occ.start.Format(time.RFC3339)}
		ev.End = model.Marker{DateTime: occ.end.Format(time.RFC3339)}
	}
	return ev
}

func (s *Source) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	now := time.Now()

	s.feedMu.Lock()
	if c, ok := s.feedCache[url]; ok && now.Sub(c.fetchedAt) < s.feedTTL {
		s.feedMu.Unlock()
		return c.body, nil
	}
	s.feedMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Serve a stale body over nothing when the network is down.
		s.feedMu.Lock()
		c, ok := s.feedCache[url]
		s.feedMu.Unlock()
		if ok {
			appLog.Error("ics fetch failed, serving stale feed", err, "url", redactURL(url))
			return c.body, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrUpstreamUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	s.feedMu.Lock()
	s.feedCache[url] = cachedFeed{body: body, fetchedAt: now}
	s.feedMu.Unlock()

	return body, nil
}

// expandFeed parses an ICS body and expands its events into concrete
// occurrences overlapping [now, horizon]. Individual malformed events are
// skipped; only an unparseable calendar is an error.
func expandFeed(body []byte, now, horizon time.Time) ([]occurrence, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse calendar: %v", ErrUpstreamUnavailable, err)
	}

	var out []occurrence
	for _, ve := range cal.Events() {
		occs, err := expandEvent(ve, now, horizon)
		if err != nil {
			appLog.Error("ics event skipped", err, "uid", eventUID(ve))
			continue
		}
		out = append(out, occs...)
	}
	return out, nil
}

func expandEvent(ve *ical.VEvent, now, horizon time.Time) ([]occurrence, error) {
	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("event start: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil || end.Before(start) {
		// Events without DTEND are treated as one hour long; all-day
		// handling below overrides this.
		end = start.Add(time.Hour)
	}

	summary := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}

	allDay := isAllDay(ve)
	if allDay {
		start = midnight(start)
		end = midnight(end)
		// A missing or same-day DTEND still needs the exclusive next-day end.
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	}

	rawRRule := ""
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}

	if rawRRule == "" {
		if end.Before(now) || start.After(horizon) {
			return nil, nil
		}
		return []occurrence{{summary: summary, start: start, end: end, allDay: allDay}}, nil
	}

	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", rawRRule, err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)

	dur := end.Sub(start)
	times := set.Between(now.In(start.Location()).Add(-dur), horizon.In(start.Location()), true)
	if len(times) > maxOccurrencesPerEvent {
		times = times[:maxOccurrencesPerEvent]
	}

	out := make([]occurrence, 0, len(times))
	for _, t := range times {
		occStart := t
		occEnd := t.Add(dur)
		if occEnd.Before(now) {
			continue
		}
		out = append(out, occurrence{
			summary: summary,
			start:   occStart,
			end:     occEnd,
			allDay:  allDay,
		})
	}
	return out, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// isAllDay reports whether DTSTART is a date-only value (VALUE=DATE or a
// value without a time component).
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

func eventUID(ve *ical.VEvent) string {
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return "(no uid)"
}

// redactURL trims an ICS URL down to its host for logging; feed paths often
// embed private tokens.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/..."
}
