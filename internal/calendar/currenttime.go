package calendar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/logging"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
)

// --- get_current_time ---

type getCurrentTimeInput struct {
	Account  string `json:"account,omitempty" jsonschema:"Account whose primary calendar timezone is used when time_zone is not given"`
	TimeZone string `json:"time_zone,omitempty" jsonschema:"IANA timezone (e.g. 'America/Los_Angeles'). Default: the primary calendar's timezone, else the system timezone"`
}

type getCurrentTimeOutput struct {
	CurrentTime string `json:"currentTime"`
	LocalTime   string `json:"localTime"`
	TimeZone    string `json:"timezone"`
	Offset      string `json:"offset"`
	IsDST       bool   `json:"isDST"`
}

func (t *tools) registerGetCurrentTime(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time, in UTC and in a timezone, with the UTC offset and whether daylight saving time is in effect. Use this before building relative time ranges like 'tomorrow' or 'next week'.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input getCurrentTimeInput) (*mcp.CallToolResult, getCurrentTimeOutput, error) {
		var out getCurrentTimeOutput

		zone := strings.TrimSpace(input.TimeZone)
		if zone != "" && !t.tz.Valid(zone) {
			return nil, out, invalidZone(zone)
		}
		if zone == "" {
			zone = t.defaultZone(ctx, input.Account)
		}

		now := t.now()
		out = getCurrentTimeOutput{
			CurrentTime: now.UTC().Format(time.RFC3339),
			LocalTime:   t.tz.FormatInstant(now, zone),
			TimeZone:    zone,
			Offset:      t.tz.Offset(now, zone),
			IsDST:       t.tz.IsDST(now, zone),
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Current time: %s\n", out.CurrentTime)
		fmt.Fprintf(&sb, "Local time: %s\n", out.LocalTime)
		fmt.Fprintf(&sb, "Timezone: %s (UTC%s)\n", out.TimeZone, displayOffset(out.Offset))
		if out.IsDST {
			sb.WriteString("Daylight saving time is in effect.\n")
		}
		return textResult(sb.String()), out, nil
	})
}

// defaultZone is the primary calendar's zone of account, falling back to the
// system zone when no account is usable or the calendar cannot be read.
func (t *tools) defaultZone(ctx context.Context, account string) string {
	svc, name, err := t.service(ctx, account)
	if err != nil {
		t.logger.Debug("no account for calendar timezone, using system timezone", logging.Err(err))
		return t.systemZone()
	}
	if zone, ok := t.lookupZone(ctx, svc, PrimaryCalendar); ok && t.tz.Valid(zone) {
		return zone
	}
	t.logger.Debug("primary calendar timezone unavailable, using system timezone", logging.Account(name))
	return t.systemZone()
}

func displayOffset(offset string) string {
	if offset == "Z" {
		return "+00:00"
	}
	return offset
}

// systemZone names the zone of the host process: $TZ when it is a zone name,
// else the name of time.Local, else UTC.
func systemZone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" && !strings.HasPrefix(tz, "/") {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
