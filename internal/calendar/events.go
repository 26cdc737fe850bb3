package calendar

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/logging"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
	"google.golang.org/api/calendar/v3"
)

const (
	defaultMaxResults = 20
	maxMaxResults     = 250
	defaultWindow     = 7 * 24 * time.Hour
)

// TimeRange is a time window after conversion to RFC3339.
type TimeRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// CalendarError reports a calendar that could not be read in a
// multi-calendar request.
type CalendarError struct {
	CalendarID string `json:"calendarId"`
	Error      string `json:"error"`
}

func clampMaxResults(n int64) int64 {
	if n <= 0 {
		return defaultMaxResults
	}
	return min(n, maxMaxResults)
}

// hasOffset reports whether value is a full RFC3339 timestamp.
func hasOffset(value string) bool {
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

// conversionZone picks the zone naive time arguments are interpreted in: the
// explicit zone when given, else the default zone of calendarID. The
// calendar is only consulted when some value actually lacks an offset.
func (t *tools) conversionZone(ctx context.Context, svc *calendar.Service, explicit, calendarID string, values ...string) (string, error) {
	if explicit != "" {
		if !t.tz.Valid(explicit) {
			return "", invalidZone(explicit)
		}
		return explicit, nil
	}
	for _, v := range values {
		if v != "" && !hasOffset(v) {
			return t.calendarZone(ctx, svc, calendarID), nil
		}
	}
	return "UTC", nil
}

func invalidZone(zone string) error {
	return apierr.Errorf(apierr.InvalidInput,
		"Invalid timezone: %s. Use IANA timezone format like 'America/Los_Angeles' or 'UTC'.", zone)
}

// --- list_events ---

type listEventsInput struct {
	Account     string   `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
	CalendarIDs []string `json:"calendar_ids,omitempty" jsonschema:"Calendar IDs or display names to read from (default: ['primary'])"`
	TimeMin     string   `json:"time_min,omitempty" jsonschema:"Start of time range, RFC3339 (e.g. '2024-01-15T00:00:00Z') or local time without offset (e.g. '2024-01-15T09:00:00'). Default: now"`
	TimeMax     string   `json:"time_max,omitempty" jsonschema:"End of time range, same formats as time_min. Default: 7 days after time_min"`
	TimeZone    string   `json:"time_zone,omitempty" jsonschema:"IANA timezone for local times and the response (default: the calendar's timezone)"`
	Query       string   `json:"query,omitempty" jsonschema:"Free text search query"`
	MaxResults  int64    `json:"max_results,omitempty" jsonschema:"Maximum number of events per calendar (default 20, max 250)"`
}

type listEventsOutput struct {
	Events     []Event         `json:"events"`
	TotalCount int             `json:"totalCount"`
	Calendars  []string        `json:"calendars"`
	TimeRange  TimeRange       `json:"timeRange"`
	Errors     []CalendarError `json:"errors,omitempty"`
}

func (t *tools) registerListEvents(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "list_events",
		Description: "List events from one or more Google Calendars within a time range, merged and ordered by start time. Calendars can be given by ID or display name. Defaults to upcoming events in the next 7 days of the primary calendar.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input listEventsInput) (*mcp.CallToolResult, listEventsOutput, error) {
		out := listEventsOutput{Events: []Event{}, Calendars: []string{}}

		svc, account, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		raws := input.CalendarIDs
		if len(raws) == 0 {
			raws = []string{PrimaryCalendar}
		}
		calendarIDs, err := NewResolver(serviceLister{svc}).ResolveMany(ctx, raws)
		if err != nil {
			return nil, out, err
		}
		out.Calendars = calendarIDs

		zone, err := t.conversionZone(ctx, svc, input.TimeZone, calendarIDs[0], input.TimeMin, input.TimeMax)
		if err != nil {
			return nil, out, err
		}
		timeMin, timeMax, err := t.resolveTimeRange(input.TimeMin, input.TimeMax, zone)
		if err != nil {
			return nil, out, err
		}
		if timeMin == "" {
			timeMin = t.now().UTC().Format(time.RFC3339)
		}
		if timeMax == "" {
			start, err := time.Parse(time.RFC3339, timeMin)
			if err != nil {
				return nil, out, apierr.Wrap(apierr.InvalidInput, fmt.Errorf("time_min: %w", err))
			}
			timeMax = start.Add(defaultWindow).Format(time.RFC3339)
		}
		out.TimeRange = TimeRange{Start: timeMin, End: timeMax}

		maxResults := clampMaxResults(input.MaxResults)

		var failures []*apierr.Error
		for _, calendarID := range calendarIDs {
			call := svc.Events.List(calendarID).
				TimeMin(timeMin).
				TimeMax(timeMax).
				MaxResults(maxResults).
				SingleEvents(true).
				OrderBy("startTime")
			if input.TimeZone != "" {
				call = call.TimeZone(input.TimeZone)
			}
			if input.Query != "" {
				call = call.Q(input.Query)
			}

			resp, err := call.Context(ctx).Do()
			if err != nil {
				cerr := apierr.Classify(fmt.Errorf("listing events: %w", err))
				if len(calendarIDs) == 1 {
					return nil, out, cerr
				}
				t.logger.Warn("listing events failed", logging.Calendar(calendarID), logging.Err(cerr))
				out.Errors = append(out.Errors, CalendarError{CalendarID: calendarID, Error: cerr.Error()})
				failures = append(failures, cerr)
				continue
			}
			out.Events = append(out.Events, convertEvents(resp.Items, calendarID)...)
		}
		if len(out.Errors) == len(calendarIDs) {
			return nil, out, allCalendarsFailed(failures, out.Errors)
		}

		slices.SortStableFunc(out.Events, compareStart)
		out.TotalCount = len(out.Events)

		return textResult(formatEventList(out.Events, account, out.Errors)), out, nil
	})
}

// allCalendarsFailed reports a list_events call in which every calendar
// failed. The category of the individual failures is kept when they agree;
// mixed categories are reported as Internal.
func allCalendarsFailed(failures []*apierr.Error, errs []CalendarError) *apierr.Error {
	msg := "Failed to list events from all calendars: " + joinCalendarErrors(errs)
	if len(failures) == 0 {
		return apierr.Errorf(apierr.Internal, "%s", msg)
	}
	category := failures[0].Category
	for _, f := range failures[1:] {
		if f.Category != category {
			category = apierr.Internal
			break
		}
	}
	return &apierr.Error{Category: category, Message: msg, Cause: failures[0]}
}

func joinCalendarErrors(errs []CalendarError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = fmt.Sprintf("%s: %s", e.CalendarID, e.Error)
	}
	return strings.Join(parts, "; ")
}

func formatEventList(events []Event, account string, errs []CalendarError) string {
	var sb strings.Builder
	if len(events) == 0 {
		sb.WriteString("No events found in the specified time range.\n")
	} else {
		fmt.Fprintf(&sb, "Found %d events:\n\n", len(events))
		for _, e := range events {
			sb.WriteString(formatEvent(e, account))
			sb.WriteString("\n")
		}
	}
	for _, e := range errs {
		fmt.Fprintf(&sb, "Error reading calendar %s: %s\n", e.CalendarID, e.Error)
	}
	return sb.String()
}

// --- search_events ---

type searchEventsInput struct {
	Account                   string   `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
	CalendarID                string   `json:"calendar_id,omitempty" jsonschema:"Calendar ID or display name (default: 'primary')"`
	Query                     string   `json:"query" jsonschema:"Free text search query (matches summary, description, location, attendees)"`
	TimeMin                   string   `json:"time_min,omitempty" jsonschema:"Start of time range, RFC3339 or local time without offset"`
	TimeMax                   string   `json:"time_max,omitempty" jsonschema:"End of time range, RFC3339 or local time without offset"`
	TimeZone                  string   `json:"time_zone,omitempty" jsonschema:"IANA timezone for local times (default: the calendar's timezone)"`
	MaxResults                int64    `json:"max_results,omitempty" jsonschema:"Maximum number of events (default 20, max 250)"`
	PrivateExtendedProperties []string `json:"private_extended_properties,omitempty" jsonschema:"Private extended property filters as 'key=value'"`
	SharedExtendedProperties  []string `json:"shared_extended_properties,omitempty" jsonschema:"Shared extended property filters as 'key=value'"`
}

type searchEventsOutput struct {
	Events     []Event    `json:"events"`
	TotalCount int        `json:"totalCount"`
	Query      string     `json:"query"`
	CalendarID string     `json:"calendarId"`
	TimeRange  *TimeRange `json:"timeRange,omitempty"`
}

func (t *tools) registerSearchEvents(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "search_events",
		Description: "Search events in a calendar by free text, optionally within a time range and filtered by extended properties.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input searchEventsInput) (*mcp.CallToolResult, searchEventsOutput, error) {
		out := searchEventsOutput{Events: []Event{}, Query: input.Query}

		if strings.TrimSpace(input.Query) == "" {
			return nil, out, apierr.Errorf(apierr.InvalidInput, "query is required")
		}
		if err := validateProperties(input.PrivateExtendedProperties); err != nil {
			return nil, out, err
		}
		if err := validateProperties(input.SharedExtendedProperties); err != nil {
			return nil, out, err
		}

		svc, account, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		raw := input.CalendarID
		if raw == "" {
			raw = PrimaryCalendar
		}
		calendarID, err := NewResolver(serviceLister{svc}).Resolve(ctx, raw)
		if err != nil {
			return nil, out, err
		}
		out.CalendarID = calendarID

		zone, err := t.conversionZone(ctx, svc, input.TimeZone, calendarID, input.TimeMin, input.TimeMax)
		if err != nil {
			return nil, out, err
		}
		timeMin, timeMax, err := t.resolveTimeRange(input.TimeMin, input.TimeMax, zone)
		if err != nil {
			return nil, out, err
		}

		call := svc.Events.List(calendarID).
			Q(input.Query).
			MaxResults(clampMaxResults(input.MaxResults)).
			SingleEvents(true).
			OrderBy("startTime")
		if timeMin != "" {
			call = call.TimeMin(timeMin)
		}
		if timeMax != "" {
			call = call.TimeMax(timeMax)
		}
		if timeMin != "" || timeMax != "" {
			out.TimeRange = &TimeRange{Start: timeMin, End: timeMax}
		}
		if input.TimeZone != "" {
			call = call.TimeZone(input.TimeZone)
		}
		if len(input.PrivateExtendedProperties) > 0 {
			call = call.PrivateExtendedProperty(input.PrivateExtendedProperties...)
		}
		if len(input.SharedExtendedProperties) > 0 {
			call = call.SharedExtendedProperty(input.SharedExtendedProperties...)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, out, apierr.Classify(fmt.Errorf("searching events: %w", err))
		}

		out.Events = convertEvents(resp.Items, calendarID)
		out.TotalCount = len(out.Events)

		text := formatEventList(out.Events, account, nil)
		if out.TotalCount == 0 {
			text = fmt.Sprintf("No events found matching %q.\n", input.Query)
		}
		return textResult(text), out, nil
	})
}

func validateProperties(props []string) error {
	for _, p := range props {
		key, _, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return apierr.Errorf(apierr.InvalidInput, "Invalid extended property filter %q: expected 'key=value'", p)
		}
	}
	return nil
}

// --- get_event ---

type getEventInput struct {
	Account    string `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"Calendar ID or display name (default: 'primary')"`
	EventID    string `json:"event_id" jsonschema:"Event ID to retrieve"`
}

type getEventOutput struct {
	Event Event `json:"event"`
}

func (t *tools) registerGetEvent(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "get_event",
		Description: "Get full details of a specific calendar event by ID.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input getEventInput) (*mcp.CallToolResult, getEventOutput, error) {
		var out getEventOutput

		if input.EventID == "" {
			return nil, out, apierr.Errorf(apierr.InvalidInput, "event_id is required")
		}

		svc, _, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		calendarID, err := t.resolveOne(ctx, svc, input.CalendarID)
		if err != nil {
			return nil, out, err
		}

		event, err := svc.Events.Get(calendarID, input.EventID).Context(ctx).Do()
		if err != nil {
			return nil, out, apierr.Classify(fmt.Errorf("getting event: %w", err))
		}

		out.Event = convertEvent(event, calendarID)
		return textResult(formatEventDetailed(event)), out, nil
	})
}

// resolveOne resolves an optional calendar argument, defaulting to primary.
func (t *tools) resolveOne(ctx context.Context, svc *calendar.Service, raw string) (string, error) {
	if raw == "" {
		return PrimaryCalendar, nil
	}
	return NewResolver(serviceLister{svc}).Resolve(ctx, raw)
}

// --- delete_event ---

type deleteEventInput struct {
	Account     string `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
	CalendarID  string `json:"calendar_id,omitempty" jsonschema:"Calendar ID or display name (default: 'primary')"`
	EventID     string `json:"event_id" jsonschema:"Event ID to delete"`
	SendUpdates string `json:"send_updates,omitempty" jsonschema:"Who to notify: 'all' (default), 'externalOnly' or 'none'"`
}

type deleteEventOutput struct {
	Success    bool   `json:"success"`
	EventID    string `json:"eventId"`
	CalendarID string `json:"calendarId"`
	Message    string `json:"message"`
}

var sendUpdatesValues = []string{"all", "externalOnly", "none"}

func (t *tools) registerDeleteEvent(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name: "delete_event",
		Annotations: &mcp.ToolAnnotations{
			DestructiveHint: server.BoolPtr(true),
		},
		Description: "Delete a calendar event by ID. The event is kept in trash for 30 days before permanent removal.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input deleteEventInput) (*mcp.CallToolResult, deleteEventOutput, error) {
		var out deleteEventOutput

		if input.EventID == "" {
			return nil, out, apierr.Errorf(apierr.InvalidInput, "event_id is required")
		}
		sendUpdates := input.SendUpdates
		if sendUpdates == "" {
			sendUpdates = "all"
		}
		if !slices.Contains(sendUpdatesValues, sendUpdates) {
			return nil, out, apierr.Errorf(apierr.InvalidInput,
				"Invalid send_updates %q: must be one of %s", input.SendUpdates, strings.Join(sendUpdatesValues, ", "))
		}

		svc, _, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		calendarID, err := t.resolveOne(ctx, svc, input.CalendarID)
		if err != nil {
			return nil, out, err
		}

		if err := svc.Events.Delete(calendarID, input.EventID).SendUpdates(sendUpdates).Context(ctx).Do(); err != nil {
			return nil, out, apierr.Classify(fmt.Errorf("deleting event: %w", err))
		}

		out = deleteEventOutput{
			Success:    true,
			EventID:    input.EventID,
			CalendarID: calendarID,
			Message:    "Event deleted successfully",
		}
		return textResult(fmt.Sprintf("Event %s deleted.", input.EventID)), out, nil
	})
}
