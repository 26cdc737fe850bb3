package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
	"google.golang.org/api/calendar/v3"
)

// maxFreeBusyWindow is the longest window the free/busy endpoint accepts.
const maxFreeBusyWindow = 3 * 30 * 24 * time.Hour

// --- query_free_busy ---

type queryFreeBusyInput struct {
	Account              string   `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
	Calendars            []string `json:"calendars" jsonschema:"Calendar IDs, display names or email addresses to check availability for"`
	TimeMin              string   `json:"time_min" jsonschema:"Start of time range, RFC3339 (e.g. '2024-01-15T00:00:00Z') or local time without offset"`
	TimeMax              string   `json:"time_max" jsonschema:"End of time range, same formats as time_min. At most 3 months after time_min"`
	TimeZone             string   `json:"time_zone,omitempty" jsonschema:"IANA timezone for local times and the response (default: the primary calendar's timezone)"`
	GroupExpansionMax    int64    `json:"group_expansion_max,omitempty" jsonschema:"Maximum number of calendars to return for a single group (max 100)"`
	CalendarExpansionMax int64    `json:"calendar_expansion_max,omitempty" jsonschema:"Maximum number of calendars to return information for (max 50)"`
}

// BusySlot is one busy period.
type BusySlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FreeBusyError explains why a calendar's availability could not be read.
type FreeBusyError struct {
	Domain string `json:"domain,omitempty"`
	Reason string `json:"reason"`
}

// FreeBusyCalendar is the availability of one calendar.
type FreeBusyCalendar struct {
	Busy   []BusySlot      `json:"busy"`
	Errors []FreeBusyError `json:"errors,omitempty"`
}

type queryFreeBusyOutput struct {
	TimeMin   string                      `json:"timeMin"`
	TimeMax   string                      `json:"timeMax"`
	TimeZone  string                      `json:"timeZone"`
	Calendars map[string]FreeBusyCalendar `json:"calendars"`
}

func (t *tools) registerQueryFreeBusy(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "query_free_busy",
		Description: "Check availability (free/busy) for one or more users or calendars within a time range of at most 3 months. Useful for finding open slots before scheduling meetings.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input queryFreeBusyInput) (*mcp.CallToolResult, queryFreeBusyOutput, error) {
		out := queryFreeBusyOutput{Calendars: map[string]FreeBusyCalendar{}}

		if input.TimeMin == "" {
			return nil, out, apierr.Errorf(apierr.InvalidInput, "time_min is required")
		}
		if input.TimeMax == "" {
			return nil, out, apierr.Errorf(apierr.InvalidInput, "time_max is required")
		}
		if input.TimeZone != "" && !t.tz.Valid(input.TimeZone) {
			return nil, out, invalidZone(input.TimeZone)
		}

		svc, _, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		calendarIDs, err := NewResolver(serviceLister{svc}).ResolveMany(ctx, input.Calendars)
		if err != nil {
			return nil, out, err
		}

		zone := input.TimeZone
		if zone == "" {
			zone = t.calendarZone(ctx, svc, PrimaryCalendar)
		}
		timeMin, timeMax, err := t.resolveTimeRange(input.TimeMin, input.TimeMax, zone)
		if err != nil {
			return nil, out, err
		}
		if err := checkFreeBusyWindow(timeMin, timeMax); err != nil {
			return nil, out, err
		}

		items := make([]*calendar.FreeBusyRequestItem, len(calendarIDs))
		for i, id := range calendarIDs {
			items[i] = &calendar.FreeBusyRequestItem{Id: id}
		}

		fbReq := &calendar.FreeBusyRequest{
			TimeMin:              timeMin,
			TimeMax:              timeMax,
			TimeZone:             zone,
			Items:                items,
			GroupExpansionMax:    input.GroupExpansionMax,
			CalendarExpansionMax: input.CalendarExpansionMax,
		}

		resp, err := svc.Freebusy.Query(fbReq).Context(ctx).Do()
		if err != nil {
			return nil, out, apierr.Classify(fmt.Errorf("querying free/busy: %w", err))
		}

		out.TimeMin = resp.TimeMin
		out.TimeMax = resp.TimeMax
		out.TimeZone = zone

		var sb strings.Builder
		fmt.Fprintf(&sb, "Free/Busy results (%s to %s, %s):\n\n", resp.TimeMin, resp.TimeMax, zone)

		// Sort calendar IDs for deterministic output.
		calIDs := make([]string, 0, len(resp.Calendars))
		for id := range resp.Calendars {
			calIDs = append(calIDs, id)
		}
		sort.Strings(calIDs)

		for _, calID := range calIDs {
			fbCal := resp.Calendars[calID]
			result := FreeBusyCalendar{Busy: make([]BusySlot, 0, len(fbCal.Busy))}
			fmt.Fprintf(&sb, "Calendar: %s\n", calID)

			if len(fbCal.Errors) > 0 {
				for _, e := range fbCal.Errors {
					result.Errors = append(result.Errors, FreeBusyError{Domain: e.Domain, Reason: e.Reason})
					fmt.Fprintf(&sb, "  Error: %s - %s\n", e.Domain, e.Reason)
				}
				out.Calendars[calID] = result
				sb.WriteString("\n")
				continue
			}

			if len(fbCal.Busy) == 0 {
				out.Calendars[calID] = result
				sb.WriteString("  Status: Free (no busy periods)\n\n")
				continue
			}

			fmt.Fprintf(&sb, "  Busy periods (%d):\n", len(fbCal.Busy))
			for _, period := range fbCal.Busy {
				start := period.Start
				end := period.End
				result.Busy = append(result.Busy, BusySlot{Start: start, End: end})
				if ts, err := time.Parse(time.RFC3339, start); err == nil {
					if te, err := time.Parse(time.RFC3339, end); err == nil {
						fmt.Fprintf(&sb, "  - %s to %s (%s)\n", start, end, formatDuration(te.Sub(ts)))
						continue
					}
				}
				fmt.Fprintf(&sb, "  - %s to %s\n", start, end)
			}
			out.Calendars[calID] = result
			sb.WriteString("\n")
		}

		return textResult(sb.String()), out, nil
	})
}

// checkFreeBusyWindow rejects empty, inverted and over-long windows before
// they reach the API.
func checkFreeBusyWindow(timeMin, timeMax string) error {
	start, err := time.Parse(time.RFC3339, timeMin)
	if err != nil {
		return apierr.Wrap(apierr.InvalidInput, fmt.Errorf("time_min: %w", err))
	}
	end, err := time.Parse(time.RFC3339, timeMax)
	if err != nil {
		return apierr.Wrap(apierr.InvalidInput, fmt.Errorf("time_max: %w", err))
	}
	if !end.After(start) {
		return apierr.Errorf(apierr.InvalidInput, "time_max must be after time_min")
	}
	if end.Sub(start) > maxFreeBusyWindow {
		return apierr.Errorf(apierr.InvalidInput, "The time gap between timeMin and timeMax must be less than 3 months")
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
