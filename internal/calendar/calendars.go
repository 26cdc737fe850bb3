package calendar

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/logging"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
	"google.golang.org/api/calendar/v3"
)

// --- list_calendars ---

type listCalendarsInput struct {
	Account string `json:"account,omitempty" jsonschema:"Account name or 'all' for all accounts (optional when only one account is configured)"`
}

// AccountError reports an account that could not be listed when several
// accounts were queried.
type AccountError struct {
	Account string `json:"account"`
	Error   string `json:"error"`
}

type listCalendarsOutput struct {
	Calendars []CalendarInfo `json:"calendars"`
	Errors    []AccountError `json:"errors,omitempty"`
}

func (t *tools) registerListCalendars(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "list_calendars",
		Description: "List all calendars accessible by the account. Set account to 'all' to list calendars from all accounts. Returns calendar IDs, names, personal display names (summaryOverride) and time zones.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input listCalendarsInput) (*mcp.CallToolResult, listCalendarsOutput, error) {
		out := listCalendarsOutput{Calendars: []CalendarInfo{}}

		accounts, err := t.accounts.ResolveAccounts(input.Account)
		if err != nil {
			return nil, out, apierr.Wrap(apierr.InvalidInput, err)
		}

		var sb strings.Builder
		multiAccount := len(accounts) > 1

		for _, account := range accounts {
			items, err := t.listCalendars(ctx, account)
			if err != nil {
				if multiAccount {
					cerr := apierr.Classify(err)
					t.logger.Warn("listing calendars failed", logging.Account(account), logging.Category(string(cerr.Category)))
					out.Errors = append(out.Errors, AccountError{Account: account, Error: cerr.Message})
					fmt.Fprintf(&sb, "=== Account: %s ===\nError: %s\n\n", account, cerr.Message)
					continue
				}
				return nil, out, err
			}

			if multiAccount {
				fmt.Fprintf(&sb, "=== Account: %s ===\n", account)
			}

			fmt.Fprintf(&sb, "Found %d calendars:\n\n", len(items))
			for _, cal := range items {
				out.Calendars = append(out.Calendars, convertCalendar(cal, account))

				fmt.Fprintf(&sb, "- %s\n", cal.Summary)
				if cal.SummaryOverride != "" && cal.SummaryOverride != cal.Summary {
					fmt.Fprintf(&sb, "  Display name: %s\n", cal.SummaryOverride)
				}
				fmt.Fprintf(&sb, "  Calendar ID: %s\n  Account: %s\n  Access: %s\n", cal.Id, account, cal.AccessRole)
				if cal.TimeZone != "" {
					fmt.Fprintf(&sb, "  Time zone: %s\n", cal.TimeZone)
				}
				if cal.Description != "" {
					fmt.Fprintf(&sb, "  Description: %s\n", cal.Description)
				}
				if cal.Primary {
					sb.WriteString("  (Primary)\n")
				}
				sb.WriteString("\n")
			}
		}

		return textResult(sb.String()), out, nil
	})
}

// listCalendars returns every calendar list entry of account, following
// pagination.
func (t *tools) listCalendars(ctx context.Context, account string) ([]*calendar.CalendarListEntry, error) {
	svc, _, err := t.service(ctx, account)
	if err != nil {
		return nil, err
	}

	var items []*calendar.CalendarListEntry
	err = svc.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, apierr.Classify(fmt.Errorf("listing calendars: %w", err))
	}
	return items, nil
}
