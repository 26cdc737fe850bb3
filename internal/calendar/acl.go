package calendar

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
	"google.golang.org/api/calendar/v3"
)

// --- list_calendar_sharing ---

type listCalendarSharingInput struct {
	Account    string `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"Calendar ID or display name (default: 'primary')"`
}

// SharingRule is one access control rule of a calendar.
type SharingRule struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	ScopeType  string `json:"scopeType"`
	ScopeValue string `json:"scopeValue,omitempty"`
}

type listCalendarSharingOutput struct {
	CalendarID string        `json:"calendarId"`
	Rules      []SharingRule `json:"rules"`
}

func (t *tools) registerListCalendarSharing(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "list_calendar_sharing",
		Description: "List all sharing rules (ACL) for a calendar. Shows who has access and their role.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input listCalendarSharingInput) (*mcp.CallToolResult, listCalendarSharingOutput, error) {
		out := listCalendarSharingOutput{Rules: []SharingRule{}}

		svc, _, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		calendarID, err := t.resolveOne(ctx, svc, input.CalendarID)
		if err != nil {
			return nil, out, err
		}
		out.CalendarID = calendarID

		err = svc.Acl.List(calendarID).Pages(ctx, func(page *calendar.Acl) error {
			for _, rule := range page.Items {
				r := SharingRule{ID: rule.Id, Role: rule.Role}
				if rule.Scope != nil {
					r.ScopeType = rule.Scope.Type
					r.ScopeValue = rule.Scope.Value
				}
				out.Rules = append(out.Rules, r)
			}
			return nil
		})
		if err != nil {
			return nil, out, apierr.Classify(fmt.Errorf("listing calendar sharing: %w", err))
		}

		var sb strings.Builder
		if len(out.Rules) == 0 {
			sb.WriteString("No sharing rules found.")
		} else {
			fmt.Fprintf(&sb, "Found %d sharing rules:\n\n", len(out.Rules))
			for _, rule := range out.Rules {
				scope := rule.ScopeValue
				if scope == "" {
					scope = "(public)"
				}
				fmt.Fprintf(&sb, "- Rule ID: %s\n  Role: %s\n  Scope: %s (%s)\n\n",
					rule.ID, rule.Role, scope, rule.ScopeType)
			}
		}

		return textResult(sb.String()), out, nil
	})
}
