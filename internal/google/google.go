// Package google provides the Google Calendar and Google Tasks sources for
// the dashboard. Authentication uses a pre-provisioned OAuth token file; the
// interactive consent flow is out of scope and handled by external tooling.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	appLog "tinker/internal/log"
	"tinker/internal/model"
)

// ErrUpstreamUnavailable marks a failed Calendar or Tasks API call.
var ErrUpstreamUnavailable = errors.New("google: upstream unavailable")

// Credentials locates the OAuth client secret and the stored user token.
type Credentials struct {
	// CredentialsFile is the OAuth client secret JSON (from the Google
	// Cloud console, "installed app" type).
	CredentialsFile string
	// TokenFile is the stored user token JSON obtained out of band.
	TokenFile string
}

// Client wraps authenticated Calendar and Tasks services.
type Client struct {
	cal   *calendar.Service
	tasks *tasks.Service
}

// NewClient builds an authenticated client from the given credential files.
func NewClient(ctx context.Context, creds Credentials) (*Client, error) {
	b, err := os.ReadFile(creds.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google: read client secret: %w", err)
	}

	config, err := googleauth.ConfigFromJSON(b,
		calendar.CalendarReadonlyScope,
		tasks.TasksReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("google: parse client secret: %w", err)
	}

	token, err := tokenFromFile(creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("google: load token (run the auth helper first): %w", err)
	}

	httpClient := config.Client(ctx, token)

	calSvc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}
	taskSvc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("google: create tasks service: %w", err)
	}

	return &Client{cal: calSvc, tasks: taskSvc}, nil
}

// ListUpcomingEvents fetches up to max upcoming events from calendarID,
// expanded to single instances and ordered by start time. The provider
// order is preserved downstream; no re-sorting happens here.
func (c *Client) ListUpcomingEvents(ctx context.Context, calendarID string, max int64) ([]model.RawEvent, error) {
	timeMin := time.Now().UTC().Format(time.RFC3339)

	res, err := c.cal.Events.List(calendarID).
		Context(ctx).
		TimeMin(timeMin).
		MaxResults(max).
		SingleEvents(true).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", ErrUpstreamUnavailable, err)
	}

	out := make([]model.RawEvent, 0, len(res.Items))
	for _, item := range res.Items {
		start := markerFrom(item.Start)
		if start.IsZero() {
			// Cancelled instances carry no start; nothing to display.
			appLog.Debug("skipping event without start", "summary", item.Summary)
			continue
		}
		out = append(out, model.RawEvent{
			Summary: item.Summary,
			Start:   start,
			End:     markerFrom(item.End),
		})
	}

	appLog.Info("calendar events fetched", "calendar_id", calendarID, "count", len(out))
	return out, nil
}

// ListOpenTasks fetches all incomplete tasks from the account's first task
// list. A missing task list yields an empty slice, not an error.
func (c *Client) ListOpenTasks(ctx context.Context) ([]model.RawTask, error) {
	lists, err := c.tasks.Tasklists.List().Context(ctx).MaxResults(1).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list task lists: %v", ErrUpstreamUnavailable, err)
	}
	if len(lists.Items) == 0 {
		appLog.Info("no task lists found")
		return nil, nil
	}

	listID := lists.Items[0].Id
	res, err := c.tasks.Tasks.List(listID).Context(ctx).ShowCompleted(false).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", ErrUpstreamUnavailable, err)
	}

	out := make([]model.RawTask, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, model.RawTask{
			Title: item.Title,
			Due:   item.Due,
		})
	}

	appLog.Info("tasks fetched", "list_id", listID, "count", len(out))
	return out, nil
}

func markerFrom(edt *calendar.EventDateTime) model.Marker {
	if edt == nil {
		return model.Marker{}
	}
	return model.Marker{
		Date:     edt.Date,
		DateTime: edt.DateTime,
	}
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// SaveToken writes a token to path with owner-only permissions. Exposed for
// provisioning tooling.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
