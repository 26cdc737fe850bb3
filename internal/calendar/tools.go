// Package calendar provides MCP tools for reading Google Calendar data:
// calendars, events, free/busy and the current time in a calendar's zone.
// Calendar arguments accept IDs or display names; names are resolved with
// Resolver.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/auth"
	"github.com/thegrumpylion/calendar-mcp/internal/logging"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
	"github.com/thegrumpylion/calendar-mcp/internal/tzmath"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const dateLayout = "2006-01-02"

// Scopes required by the Calendar tools. The full calendar scope is needed
// for delete_event; everything else only reads.
var Scopes = []string{
	calendar.CalendarScope,
}

// AccountScopes returns the scopes requested when an account is added.
func AccountScopes() []string {
	return slices.Clone(Scopes)
}

// Accounts resolves the account argument of a tool call.
type Accounts interface {
	ResolveAccounts(account string) ([]string, error)
	ResolveAccount(account string) (string, error)
}

// ServiceFactory builds a Calendar API client for a configured account.
type ServiceFactory func(ctx context.Context, account string) (*calendar.Service, error)

// AuthServices returns a ServiceFactory backed by the auth manager's stored
// tokens.
func AuthServices(mgr *auth.Manager) ServiceFactory {
	return func(ctx context.Context, account string) (*calendar.Service, error) {
		opts, err := mgr.ClientOptions(ctx, account, Scopes)
		if err != nil {
			return nil, err
		}
		return calendar.NewService(ctx, opts...)
	}
}

// EndpointServices returns a ServiceFactory that talks to a fixed endpoint
// with a fixed HTTP client, whatever the account. It is used to point the
// tools at a local fake of the Calendar API.
func EndpointServices(endpoint string, client option.ClientOption) ServiceFactory {
	return func(ctx context.Context, _ string) (*calendar.Service, error) {
		return calendar.NewService(ctx, option.WithEndpoint(endpoint), client)
	}
}

// Options configures the calendar tools.
type Options struct {
	Accounts Accounts
	Services ServiceFactory
	// TZ defaults to a tzmath.Math over the Go zone database.
	TZ *tzmath.Math
	// Now defaults to time.Now.
	Now func() time.Time
	// SystemZone defaults to the zone of the host process.
	SystemZone func() string
	Logger     *slog.Logger
}

// tools holds what every handler needs.
type tools struct {
	accounts   Accounts
	services   ServiceFactory
	tz         *tzmath.Math
	now        func() time.Time
	systemZone func() string
	logger     *slog.Logger
}

// RegisterTools registers all Calendar MCP tools on the given server, backed
// by the accounts of mgr.
func RegisterTools(srv *server.Server, mgr *auth.Manager) {
	Register(srv, Options{Accounts: mgr, Services: AuthServices(mgr)})
	server.RegisterAccountsListTool(srv, mgr)
}

// Register registers the calendar tools with explicit dependencies.
func Register(srv *server.Server, opts Options) {
	t := &tools{
		accounts:   opts.Accounts,
		services:   opts.Services,
		tz:         opts.TZ,
		now:        opts.Now,
		systemZone: opts.SystemZone,
		logger:     opts.Logger,
	}
	if t.tz == nil {
		t.tz = tzmath.New(nil)
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.systemZone == nil {
		t.systemZone = systemZone
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	// calendars.go
	t.registerListCalendars(srv)
	// events.go
	t.registerListEvents(srv)
	t.registerSearchEvents(srv)
	t.registerGetEvent(srv)
	t.registerDeleteEvent(srv)
	// freebusy.go
	t.registerQueryFreeBusy(srv)
	// currenttime.go
	t.registerGetCurrentTime(srv)
	// colors.go
	t.registerListColors(srv)
	// acl.go
	t.registerListCalendarSharing(srv)
}

// service resolves a single account and builds its client.
func (t *tools) service(ctx context.Context, account string) (*calendar.Service, string, error) {
	name, err := t.accounts.ResolveAccount(account)
	if err != nil {
		return nil, "", apierr.Wrap(apierr.InvalidInput, err)
	}
	svc, err := t.services(ctx, name)
	if err != nil {
		return nil, "", apierr.Wrap(apierr.Auth, fmt.Errorf("creating Calendar service for account %q: %w", name, err))
	}
	return svc, name, nil
}

// calendarZone returns the default zone of calendarID, or UTC when it cannot
// be read.
func (t *tools) calendarZone(ctx context.Context, svc *calendar.Service, calendarID string) string {
	if zone, ok := t.lookupZone(ctx, svc, calendarID); ok {
		return zone
	}
	return "UTC"
}

func (t *tools) lookupZone(ctx context.Context, svc *calendar.Service, calendarID string) (string, bool) {
	entry, err := svc.CalendarList.Get(calendarID).Fields("timeZone").Context(ctx).Do()
	if err != nil {
		t.logger.Debug("reading calendar zone failed", logging.Calendar(calendarID), logging.Err(err))
		return "", false
	}
	return entry.TimeZone, entry.TimeZone != ""
}

// resolveTimeRange converts optional time_min/time_max arguments to RFC3339
// in zone.
func (t *tools) resolveTimeRange(timeMin, timeMax, zone string) (string, string, error) {
	var err error
	if timeMin != "" {
		if timeMin, err = t.tz.ToRFC3339(timeMin, zone); err != nil {
			return "", "", apierr.Wrap(apierr.InvalidInput, fmt.Errorf("time_min: %w", err))
		}
	}
	if timeMax != "" {
		if timeMax, err = t.tz.ToRFC3339(timeMax, zone); err != nil {
			return "", "", apierr.Wrap(apierr.InvalidInput, fmt.Errorf("time_max: %w", err))
		}
	}
	return timeMin, timeMax, nil
}

// textResult wraps human-readable text; the structured output travels
// alongside it.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// formatEvent formats an event for brief display.
func formatEvent(event Event, account string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s\n", event.Summary)
	fmt.Fprintf(&sb, "  Event ID: %s\n", event.ID)
	if event.CalendarID != "" {
		fmt.Fprintf(&sb, "  Calendar: %s\n", event.CalendarID)
	}
	fmt.Fprintf(&sb, "  Account: %s\n", account)

	if event.Start.DateTime != "" {
		fmt.Fprintf(&sb, "  Start: %s\n", event.Start.DateTime)
	} else if event.Start.Date != "" {
		fmt.Fprintf(&sb, "  Start: %s (all day)\n", event.Start.Date)
	}
	if event.End.DateTime != "" {
		fmt.Fprintf(&sb, "  End: %s\n", event.End.DateTime)
	} else if event.End.Date != "" {
		fmt.Fprintf(&sb, "  End: %s\n", event.End.Date)
	}

	if event.Location != "" {
		fmt.Fprintf(&sb, "  Location: %s\n", event.Location)
	}
	if event.Status != "" {
		fmt.Fprintf(&sb, "  Status: %s\n", event.Status)
	}

	return sb.String()
}

// formatEventDetailed formats an event with full details.
func formatEventDetailed(event *calendar.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Event: %s\n", event.Summary)
	fmt.Fprintf(&sb, "Event ID: %s\n", event.Id)

	if event.Start != nil {
		if event.Start.DateTime != "" {
			fmt.Fprintf(&sb, "Start: %s\n", event.Start.DateTime)
		} else if event.Start.Date != "" {
			fmt.Fprintf(&sb, "Start: %s (all day)\n", event.Start.Date)
		}
	}
	if event.End != nil {
		if event.End.DateTime != "" {
			fmt.Fprintf(&sb, "End: %s\n", event.End.DateTime)
		} else if event.End.Date != "" {
			fmt.Fprintf(&sb, "End: %s\n", event.End.Date)
		}
	}

	if event.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", event.Location)
	}
	if event.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", event.Description)
	}
	if event.Status != "" {
		fmt.Fprintf(&sb, "Status: %s\n", event.Status)
	}
	if event.HtmlLink != "" {
		fmt.Fprintf(&sb, "Link: %s\n", event.HtmlLink)
	}
	if event.Creator != nil {
		fmt.Fprintf(&sb, "Creator: %s\n", event.Creator.Email)
	}
	if event.Organizer != nil {
		fmt.Fprintf(&sb, "Organizer: %s\n", event.Organizer.Email)
	}
	if len(event.Attendees) > 0 {
		sb.WriteString("Attendees:\n")
		for _, a := range event.Attendees {
			name := a.DisplayName
			if name == "" {
				name = a.Email
			}
			fmt.Fprintf(&sb, "  - %s (%s)\n", name, a.ResponseStatus)
		}
	}
	if len(event.Recurrence) > 0 {
		fmt.Fprintf(&sb, "Recurrence: %s\n", strings.Join(event.Recurrence, "; "))
	}
	if len(event.Attachments) > 0 {
		sb.WriteString("Attachments:\n")
		for _, att := range event.Attachments {
			title := att.Title
			if title == "" {
				title = att.FileUrl
			}
			fmt.Fprintf(&sb, "  - %s", title)
			if att.MimeType != "" {
				fmt.Fprintf(&sb, " (%s)", att.MimeType)
			}
			if att.FileUrl != "" {
				fmt.Fprintf(&sb, "\n    URL: %s", att.FileUrl)
			}
			sb.WriteString("\n")
		}
	}
	if event.ConferenceData != nil && len(event.ConferenceData.EntryPoints) > 0 {
		sb.WriteString("Conference:\n")
		for _, ep := range event.ConferenceData.EntryPoints {
			fmt.Fprintf(&sb, "  - %s: %s\n", ep.EntryPointType, ep.Uri)
		}
	}

	return sb.String()
}
