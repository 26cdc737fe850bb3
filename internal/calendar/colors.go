package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
)

// --- list_colors ---

type listColorsInput struct {
	Account string `json:"account,omitempty" jsonschema:"Account name (optional when only one account is configured)"`
}

// Color is a background/foreground hex pair.
type Color struct {
	Background string `json:"background"`
	Foreground string `json:"foreground"`
}

type listColorsOutput struct {
	Calendar map[string]Color `json:"calendar"`
	Event    map[string]Color `json:"event"`
}

func (t *tools) registerListColors(srv *server.Server) {
	server.AddTool(srv, &mcp.Tool{
		Name:        "list_colors",
		Description: "Get the available color palette for calendars and events. Returns color IDs with their background and foreground hex values, as referenced by the colorId of calendars and events.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input listColorsInput) (*mcp.CallToolResult, listColorsOutput, error) {
		out := listColorsOutput{Calendar: map[string]Color{}, Event: map[string]Color{}}

		svc, _, err := t.service(ctx, input.Account)
		if err != nil {
			return nil, out, err
		}

		colors, err := svc.Colors.Get().Context(ctx).Do()
		if err != nil {
			return nil, out, apierr.Classify(fmt.Errorf("getting colors: %w", err))
		}

		for id, c := range colors.Calendar {
			out.Calendar[id] = Color{Background: c.Background, Foreground: c.Foreground}
		}
		for id, c := range colors.Event {
			out.Event[id] = Color{Background: c.Background, Foreground: c.Foreground}
		}

		var sb strings.Builder
		writePalette(&sb, "Calendar colors:\n", out.Calendar)
		if len(out.Event) > 0 && sb.Len() > 0 {
			sb.WriteString("\n")
		}
		writePalette(&sb, "Event colors:\n", out.Event)

		return textResult(sb.String()), out, nil
	})
}

func writePalette(sb *strings.Builder, title string, palette map[string]Color) {
	if len(palette) == 0 {
		return
	}
	sb.WriteString(title)
	ids := make([]string, 0, len(palette))
	for id := range palette {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := palette[id]
		fmt.Fprintf(sb, "  %s: background=%s foreground=%s\n", id, c.Background, c.Foreground)
	}
}
